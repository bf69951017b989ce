package xstat

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Store persists raw identity tags for entries. Implementations must not
// follow symbolic links.
type Store interface {
	Get(path string) ([]byte, error)
	Set(path string, value []byte) error
}

// Forgetter is implemented by stores that keep state outside the
// filesystem and must be told when an entry is removed.
type Forgetter interface {
	Forget(path string)
}

// Forget drops any out-of-band state store holds for path. Call it before
// removing an entry.
func Forget(store Store, path string) {
	if f, ok := store.(Forgetter); ok {
		f.Forget(path)
	}
}

// Compile-time interface checks.
var (
	_ Store     = (*XattrStore)(nil)
	_ Store     = (*InodeStore)(nil)
	_ Forgetter = (*InodeStore)(nil)
)

// XattrStore keeps tags in the AttrName extended attribute.
type XattrStore struct{}

// NewXattrStore returns a store backed by extended attributes.
func NewXattrStore() *XattrStore { return &XattrStore{} }

func (*XattrStore) Get(path string) ([]byte, error) {
	sz, err := unix.Lgetxattr(path, AttrName, nil)
	if err != nil {
		if errors.Is(err, errNoAttr) {
			return nil, ErrNoTag
		}
		return nil, &os.PathError{Op: "getxattr", Path: path, Err: err}
	}
	if sz == 0 {
		return nil, ErrNoTag
	}
	buf := make([]byte, sz)
	sz, err = unix.Lgetxattr(path, AttrName, buf)
	if err != nil {
		return nil, &os.PathError{Op: "getxattr", Path: path, Err: err}
	}
	return buf[:sz], nil
}

func (*XattrStore) Set(path string, value []byte) error {
	if err := unix.Lsetxattr(path, AttrName, value, 0); err != nil {
		return &os.PathError{Op: "setxattr", Path: path, Err: err}
	}
	return nil
}

// Probe reports whether the filesystem holding dir accepts user extended
// attributes.
func (s *XattrStore) Probe(dir string) error {
	f, err := os.CreateTemp(dir, ".xattr-probe-")
	if err != nil {
		return fmt.Errorf("create probe: %w", err)
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)
	return s.Set(name, []byte("{}"))
}

// DevIno uniquely identifies an inode.
type DevIno struct {
	Dev uint64
	Ino uint64
}

// InodeStore keeps tags in memory keyed by inode, so a tag follows an entry
// across rename and hard link the same way an extended attribute does.
// Inode numbers are reused by the kernel once freed; callers removing a
// tagged entry must call Forget first.
type InodeStore struct {
	mu   sync.Mutex
	tags map[DevIno][]byte
}

// NewInodeStore returns an empty in-memory store.
func NewInodeStore() *InodeStore {
	return &InodeStore{tags: make(map[DevIno][]byte)}
}

func (s *InodeStore) Get(path string) ([]byte, error) {
	key, err := devIno(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tags[key]
	if !ok {
		return nil, ErrNoTag
	}
	return append([]byte(nil), v...), nil
}

func (s *InodeStore) Set(path string, value []byte) error {
	key, err := devIno(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[key] = append([]byte(nil), value...)
	return nil
}

func (s *InodeStore) Forget(path string) {
	key, err := devIno(path)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, key)
}

// Len returns the number of tags held.
func (s *InodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags)
}

func devIno(path string) (DevIno, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return DevIno{}, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return DevIno{}, fmt.Errorf("unsupported stat type for %s", path)
	}
	return DevIno{Dev: uint64(stat.Dev), Ino: uint64(stat.Ino)}, nil
}
