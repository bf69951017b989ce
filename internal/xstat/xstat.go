// Package xstat reads and writes the durable identity tag of a directory
// entry. The tag, not the path, is the identity of an entry: a uuid that
// survives rename plus an optional content fingerprint.
package xstat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hxsam/appifi/internal/errs"
)

// AttrName is the extended attribute holding the identity tag.
const AttrName = "user.fruitmix"

// Kind is the type of a tagged entry.
type Kind string

const (
	File      Kind = "file"
	Directory Kind = "directory"
)

// XStat is the identity record of an entry.
type XStat struct {
	UUID  string `json:"uuid"`
	Type  Kind   `json:"type"`
	Name  string `json:"name"`
	Hash  string `json:"hash,omitempty"`
	Size  int64  `json:"size,omitempty"`
	Mtime int64  `json:"mtime"` // unix milliseconds
}

// IsDir reports whether x describes a directory.
func (x XStat) IsDir() bool { return x.Type == Directory }

// Tag is the persisted form of an identity. Hash is only trusted while
// Htime equals the entry's mtime.
type Tag struct {
	UUID  string `json:"uuid"`
	Hash  string `json:"hash,omitempty"`
	Htime int64  `json:"htime,omitempty"`
}

// Read returns the identity of the entry at path, assigning a fresh uuid if
// the entry carries no valid tag. Symbolic links and special files are never
// followed and report ENOENT.
func Read(store Store, path string) (XStat, error) {
	info, err := lstatEntry(path)
	if err != nil {
		return XStat{}, err
	}

	tag, ok := readTag(store, path)
	if !ok {
		tag = Tag{UUID: uuid.New().String()}
		if err := writeTag(store, path, tag); err != nil {
			return XStat{}, err
		}
	}
	return toXStat(path, info, tag), nil
}

// Force overwrites the identity tag of the entry at path.
func Force(store Store, path string, tag Tag) (XStat, error) {
	info, err := lstatEntry(path)
	if err != nil {
		return XStat{}, err
	}
	if _, err := uuid.Parse(tag.UUID); err != nil {
		return XStat{}, errs.Wrap(errs.EINVAL, "xstat", path, fmt.Errorf("invalid uuid %q: %w", tag.UUID, err))
	}
	if tag.Hash != "" && tag.Htime == 0 {
		tag.Htime = info.ModTime().UnixMilli()
	}
	if err := writeTag(store, path, tag); err != nil {
		return XStat{}, err
	}
	return toXStat(path, info, tag), nil
}

// SetHash records hash as the fingerprint of the file at path, after
// asserting that it still carries fileUUID.
func SetHash(store Store, path, fileUUID, hash string) (XStat, error) {
	x, err := AssertFile(store, path, fileUUID)
	if err != nil {
		return XStat{}, err
	}
	return Force(store, path, Tag{UUID: x.UUID, Hash: hash, Htime: x.Mtime})
}

// AssertDir verifies that path is a directory carrying dirUUID.
func AssertDir(store Store, path, dirUUID string) (XStat, error) {
	return assertKind(store, path, dirUUID, Directory)
}

// AssertFile verifies that path is a regular file carrying fileUUID.
func AssertFile(store Store, path, fileUUID string) (XStat, error) {
	return assertKind(store, path, fileUUID, File)
}

func assertKind(store Store, path, want string, kind Kind) (XStat, error) {
	x, err := Read(store, path)
	if err != nil {
		return XStat{}, errs.Wrap(errs.EINCONSISTENCE, "assert", path, err)
	}
	if x.Type != kind {
		return XStat{}, errs.New(errs.EINCONSISTENCE, "assert", path, fmt.Sprintf("expected %s, found %s", kind, x.Type))
	}
	if x.UUID != want {
		return XStat{}, errs.New(errs.EINCONSISTENCE, "assert", path, fmt.Sprintf("uuid mismatch: expected %s, found %s", want, x.UUID))
	}
	return x, nil
}

func lstatEntry(path string) (os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, errs.FromOS("lstat", path, err)
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil, errs.New(errs.ENOENT, "lstat", path, "not a regular file or directory")
	}
	return info, nil
}

func readTag(store Store, path string) (Tag, bool) {
	raw, err := store.Get(path)
	if err != nil {
		return Tag{}, false
	}
	var tag Tag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return Tag{}, false
	}
	if _, err := uuid.Parse(tag.UUID); err != nil {
		return Tag{}, false
	}
	return tag, true
}

func writeTag(store Store, path string, tag Tag) error {
	raw, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("encode tag: %w", err)
	}
	if err := store.Set(path, raw); err != nil {
		return errs.FromOS("set tag", path, err)
	}
	return nil
}

func toXStat(path string, info os.FileInfo, tag Tag) XStat {
	x := XStat{
		UUID:  tag.UUID,
		Type:  File,
		Name:  filepath.Base(path),
		Mtime: info.ModTime().UnixMilli(),
	}
	if info.IsDir() {
		x.Type = Directory
		return x
	}
	x.Size = info.Size()
	if tag.Hash != "" && tag.Htime == x.Mtime {
		x.Hash = tag.Hash
	}
	return x
}

// ErrNoTag is returned by a Store when the entry carries no tag.
var ErrNoTag = errors.New("no identity tag")
