package drive

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxsam/appifi/internal/errs"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	tmp := filepath.Join(root, "tmp")
	require.NoError(t, os.Mkdir(tmp, 0755))
	r := NewRegistry(root, tmp)
	require.NoError(t, r.Load())
	return r
}

func TestListIsImmutable(t *testing.T) {
	owner := uuid.New().String()
	a := NewPrivate(owner, "home")
	l := NewList(a)

	b := NewPublic(PublicProps{Writelist: []string{owner}})
	l2 := l.With(b)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 2, l2.Len())

	got := l2.At(1)
	got.Writelist[0] = "mutated"
	assert.Equal(t, owner, l2.At(1).Writelist[0])

	label := "shared"
	l3 := l2.Replace(1, l2.At(1).Apply(PublicProps{Label: &label}))
	assert.Equal(t, "", l2.At(1).Label)
	assert.Equal(t, "shared", l3.At(1).Label)
	assert.Equal(t, []string{owner}, l3.At(1).Writelist)

	l4 := l3.Without(a.UUID)
	assert.Equal(t, 1, l4.Len())
	assert.Equal(t, -1, l4.Index(a.UUID))
	_, ok := l3.Get(a.UUID)
	assert.True(t, ok)
}

func TestValidate(t *testing.T) {
	owner := uuid.New().String()
	assert.NoError(t, Validate(NewPrivate(owner, "home")))
	assert.Error(t, Validate(NewPrivate("not-a-uuid", "home")))
	assert.Error(t, Validate(NewPrivate("", "home")))
	assert.Error(t, Validate(Drive{UUID: uuid.New().String(), Type: "shared"}))

	assert.NoError(t, ValidateProps(PublicProps{Writelist: []string{owner}}))
	assert.Error(t, ValidateProps(PublicProps{Readlist: []string{"bob"}}))

	long := string(make([]byte, 256))
	assert.Error(t, ValidateProps(PublicProps{Label: &long}))
}

func TestCommitPersists(t *testing.T) {
	r := newRegistry(t)
	prev := r.Current()
	assert.Equal(t, 0, prev.Len())

	d := NewPrivate(uuid.New().String(), "home")
	next := prev.With(d)
	require.NoError(t, r.Commit(prev, next))
	assert.Same(t, next, r.Current())

	reloaded := NewRegistry(filepath.Dir(r.Path()), r.tmpDir)
	require.NoError(t, reloaded.Load())
	require.Equal(t, 1, reloaded.Current().Len())
	assert.Equal(t, d, reloaded.Current().At(0))

	entries, err := os.ReadDir(r.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitRejectsStalePrev(t *testing.T) {
	r := newRegistry(t)
	prev := r.Current()
	require.NoError(t, r.Commit(prev, prev.With(NewPublic(PublicProps{}))))

	err := r.Commit(prev, prev.With(NewPublic(PublicProps{})))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ECOMMITFAIL))
	assert.Equal(t, 409, errs.Status(err))
	assert.Equal(t, 1, r.Current().Len())
}

func TestConcurrentCommitFailsFast(t *testing.T) {
	r := newRegistry(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	save := r.save
	r.save = func(path string, data []byte) error {
		close(entered)
		<-release
		return save(path, data)
	}

	prev := r.Current()
	winner := prev.With(NewPublic(PublicProps{}))

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = r.Commit(prev, winner)
	}()

	<-entered
	err := r.Commit(prev, prev.With(NewPublic(PublicProps{})))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ECOMMITFAIL))

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Same(t, winner, r.Current())

	reloaded := NewRegistry(filepath.Dir(r.Path()), r.tmpDir)
	require.NoError(t, reloaded.Load())
	require.Equal(t, 1, reloaded.Current().Len())
	assert.Equal(t, winner.At(0).UUID, reloaded.Current().At(0).UUID)
}

func TestLoadRejectsBadRegistry(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry(root, root)

	require.NoError(t, os.WriteFile(r.Path(), []byte("{"), 0644))
	assert.Error(t, r.Load())

	id := uuid.New().String()
	dup := `[{"uuid":"` + id + `","type":"public"},{"uuid":"` + id + `","type":"public"}]`
	require.NoError(t, os.WriteFile(r.Path(), []byte(dup), 0644))
	assert.Error(t, r.Load())
}
