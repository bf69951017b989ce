package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/xstat"
)

func file(size int64) xstat.XStat { return xstat.XStat{Type: xstat.File, Size: size} }

var dir = xstat.XStat{Type: xstat.Directory}

func TestEmptyChainAdmitsAll(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Admit("photos/img.jpg", file(1024)))
	assert.True(t, c.Admit("photos", dir))
	assert.True(t, c.Empty())
	assert.Empty(t, c.String())
}

func TestExcludePattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.log"))

	assert.False(t, c.Admit("app.log", file(100)))
	assert.False(t, c.Admit("sub/debug.log", file(100)))
	assert.True(t, c.Admit("app.txt", file(100)))
}

func TestIncludeOverridesExclude(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("important.log"))
	require.NoError(t, c.AddExclude("*.log"))

	assert.True(t, c.Admit("important.log", file(100)))
	assert.False(t, c.Admit("debug.log", file(100)))
}

func TestFirstMatchWins(t *testing.T) {
	// --exclude '*.log' --include 'important.log': the exclude comes first.
	c := NewChain()
	require.NoError(t, c.AddExclude("*.log"))
	require.NoError(t, c.AddInclude("important.log"))

	assert.False(t, c.Admit("important.log", file(100)))
	assert.False(t, c.Admit("debug.log", file(100)))
}

func TestDirOnlyPattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude(".thumbnails/"))

	assert.False(t, c.Admit(".thumbnails", dir))
	assert.False(t, c.Admit("photos/.thumbnails", dir))
	assert.True(t, c.Admit(".thumbnails", file(100)))
}

func TestAnchoredPattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("/notes.txt"))

	assert.False(t, c.Admit("notes.txt", file(100)))
	assert.True(t, c.Admit("sub/notes.txt", file(100)))
}

func TestDoubleStar(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("**/*.jpg"))
	require.NoError(t, c.AddInclude("*/"))
	require.NoError(t, c.AddExclude("*"))

	assert.True(t, c.Admit("img.jpg", file(100)))
	assert.True(t, c.Admit("photos/2024/img.jpg", file(100)))
	assert.True(t, c.Admit("photos", dir))
	assert.False(t, c.Admit("readme.md", file(100)))
}

func TestSizeBounds(t *testing.T) {
	c := NewChain()
	c.SetMinSize(100)
	c.SetMaxSize(10000)

	assert.False(t, c.Admit("tiny.txt", file(50)))
	assert.True(t, c.Admit("medium.txt", file(500)))
	assert.False(t, c.Admit("huge.bin", file(50000)))

	// Directories ignore size bounds.
	assert.True(t, c.Admit("somedir", dir))
}

func TestMinSizeOnly(t *testing.T) {
	c := NewChain()
	c.SetMinSize(1024 * 1024)

	assert.False(t, c.Admit("small.txt", file(512)))
	assert.True(t, c.Admit("big.bin", file(2*1024*1024)))
}

func TestMaxSizeOnly(t *testing.T) {
	c := NewChain()
	c.SetMaxSize(1024 * 1024)

	assert.True(t, c.Admit("small.txt", file(512)))
	assert.False(t, c.Admit("big.bin", file(2*1024*1024)))
}

func TestChainString(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.log"))
	require.NoError(t, c.AddInclude("keep/"))
	c.SetMinSize(1024)

	assert.Equal(t, "- *.log, + keep/, min-size 1.0 KiB", c.String())
}

func TestEmptyPatternRejected(t *testing.T) {
	c := NewChain()
	err := c.AddExclude("/")
	assert.True(t, errs.Is(err, errs.EINVAL))
	assert.True(t, c.Empty())
}
