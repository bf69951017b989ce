package errs

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeString(t *testing.T) {
	tests := []struct {
		want string
		code Code
	}{
		{want: "ENOENT", code: ENOENT},
		{want: "ENOTDIR", code: ENOTDIR},
		{want: "EEXIST", code: EEXIST},
		{want: "ECONFLICT", code: ECONFLICT},
		{want: "EINCONSISTENCE", code: EINCONSISTENCE},
		{want: "ECOMMITFAIL", code: ECOMMITFAIL},
		{want: "EINVAL", code: EINVAL},
		{want: "EDIRTY", code: EDIRTY},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
	assert.Equal(t, "Unknown", Code(999).String())
}

func TestIsMatchesSecondaryCode(t *testing.T) {
	err := New(EEXIST, "mkdir", "/a/b", "target exists").WithX(ECONFLICT)
	wrapped := fmt.Errorf("vfs: %w", err)

	assert.True(t, Is(wrapped, EEXIST))
	assert.True(t, Is(wrapped, ECONFLICT))
	assert.False(t, Is(wrapped, ENOENT))
	assert.Equal(t, EEXIST, CodeOf(wrapped))
	assert.Equal(t, ECONFLICT, XCodeOf(wrapped))
	assert.Contains(t, err.Error(), "EEXIST+ECONFLICT")
}

func TestIsNestedErrors(t *testing.T) {
	inner := New(ENOENT, "read", "/x", "gone")
	outer := Wrap(EINCONSISTENCE, "mvdir", "/x", inner)

	assert.True(t, Is(outer, EINCONSISTENCE))
	assert.True(t, Is(outer, ENOENT))
	assert.False(t, Is(nil, ENOENT))
	assert.False(t, Is(assert.AnError, ENOENT))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, 503, Status(New(EINCONSISTENCE, "", "", "x")))
	assert.Equal(t, 404, Status(New(ENOENT, "", "", "x")))
	assert.Equal(t, 400, Status(New(EINVAL, "", "", "x")))
	assert.Equal(t, 409, Status(New(ECOMMITFAIL, "", "", "x")))
	assert.Equal(t, 500, Status(assert.AnError))
}

func TestFromOS(t *testing.T) {
	dir := t.TempDir()

	_, err := os.Lstat(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, ENOENT, CodeOf(FromOS("lstat", "missing", err)))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	err = os.Mkdir(filepath.Join(file, "sub"), 0o755)
	require.Error(t, err)
	assert.Equal(t, ENOTDIR, CodeOf(FromOS("mkdir", file, err)))

	err = os.Mkdir(dir, 0o755)
	require.Error(t, err)
	assert.Equal(t, EEXIST, CodeOf(FromOS("mkdir", dir, err)))

	assert.NoError(t, FromOS("noop", "", nil))
	assert.Equal(t, OK, CodeOf(FromOS("other", "", assert.AnError)))
}
