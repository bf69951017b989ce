package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "TaskCreated", typ: TaskCreated},
		{want: "TaskConflict", typ: TaskConflict},
		{want: "TaskFailed", typ: TaskFailed},
		{want: "TaskFinished", typ: TaskFinished},
		{want: "TaskDestroyed", typ: TaskDestroyed},
		{want: "DirCreated", typ: DirCreated},
		{want: "DirMoved", typ: DirMoved},
		{want: "DirRemoved", typ: DirRemoved},
		{want: "FileCopied", typ: FileCopied},
		{want: "FileMoved", typ: FileMoved},
		{want: "EntrySkipped", typ: EntrySkipped},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
	assert.Equal(t, "Unknown", Type(-1).String())
}

func TestEventZeroValue(t *testing.T) {
	var e Event
	assert.Equal(t, Type(0), e.Type)
	assert.True(t, e.Timestamp.IsZero())
	assert.Empty(t, e.TaskID)
	assert.Empty(t, e.Path)
	assert.Zero(t, e.Size)
	require.NoError(t, e.Error)
}

func TestEventFields(t *testing.T) {
	now := time.Now()
	e := Event{
		Type:      FileCopied,
		Timestamp: now,
		TaskID:    "t1",
		Kind:      "file",
		Path:      "dir/file.txt",
		Size:      1024,
	}
	assert.Equal(t, FileCopied, e.Type)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, "dir/file.txt", e.Path)
	assert.Equal(t, int64(1024), e.Size)
}
