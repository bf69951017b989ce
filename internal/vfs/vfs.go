// Package vfs composes the drive registry, the forest and the create
// primitives into the operations callers use: resolve, create, copy, move
// and list, each checked against the real identity tags before it mutates
// anything.
package vfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hxsam/appifi/internal/drive"
	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/forest"
	"github.com/hxsam/appifi/internal/metrics"
	"github.com/hxsam/appifi/internal/platform"
	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/xstat"
)

// Options configures a VFS.
type Options struct {
	// Root is the storage root holding drives.json, drives/ and tmp/.
	Root string

	// Store persists identity tags. Defaults to extended attributes.
	Store xstat.Store

	// NoReflink makes CopyFile write a full copy of the data instead of
	// sharing extents with the source.
	NoReflink bool

	Logger  *slog.Logger
	Metrics metrics.VFSMetrics
}

// VFS is the storage core. It is safe for concurrent use.
type VFS struct {
	root      string
	drivesDir string
	tmpDir    string

	store    xstat.Store
	forest   *forest.Forest
	registry *drive.Registry
	tmp      *tmpRegistry
	copy     func(store xstat.Store, src, srcUUID, tmp string) (xstat.XStat, platform.CopyResult, error)

	logger  *slog.Logger
	metrics metrics.VFSMetrics
}

// New opens the storage root, loads the drive registry and creates one
// forest root per drive.
func New(ctx context.Context, opts Options) (*VFS, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("vfs: storage root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if opts.Store == nil {
		opts.Store = xstat.NewXattrStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopVFSMetrics()
	}

	v := &VFS{
		root:      root,
		drivesDir: filepath.Join(root, "drives"),
		tmpDir:    filepath.Join(root, "tmp"),
		store:     opts.Store,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		copy:      underlying.Clone,
	}
	if opts.NoReflink {
		v.copy = underlying.Copy
	}
	for _, dir := range []string{v.drivesDir, v.tmpDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	v.tmp = newTmpRegistry(v.tmpDir, v.store)
	if n, err := v.tmp.sweep(); err != nil {
		return nil, fmt.Errorf("sweep tmp: %w", err)
	} else if n > 0 {
		v.logger.Info("removed stale temporary files", "count", n)
	}

	v.forest = forest.New(v.store, v.logger)
	v.registry = drive.NewRegistry(root, v.tmpDir)
	if err := v.registry.Load(); err != nil {
		return nil, err
	}
	for _, d := range v.registry.Current().All() {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.EINVAL, "open", root, err)
		}
		if err := v.createDriveRoot(d); err != nil {
			return nil, err
		}
	}
	v.logger.Debug("vfs opened", "root", root, "drives", v.registry.Current().Len())
	return v, nil
}

// Close removes temporary files still held by in-flight operations.
func (v *VFS) Close() error {
	v.tmp.cleanup()
	return nil
}

// Root returns the storage root.
func (v *VFS) Root() string { return v.root }

// Store returns the identity store.
func (v *VFS) Store() xstat.Store { return v.store }

// observe records op in metrics and the debug log.
func (v *VFS) observe(op string, start time.Time, err error, attrs ...any) {
	v.metrics.RecordOperation(op, time.Since(start), err)
	v.metrics.SetNodes(v.forest.Len())
	v.metrics.SetFingerprints(v.forest.FingerprintCount())
	if err != nil {
		v.logger.Debug(op+" failed", append(attrs, "error", err)...)
		return
	}
	v.logger.Debug(op, attrs...)
}

func (v *VFS) createDriveRoot(d drive.Drive) error {
	p := filepath.Join(v.drivesDir, d.UUID)
	if err := os.MkdirAll(p, 0755); err != nil {
		return errs.FromOS("create drive", p, err)
	}
	if _, err := xstat.Force(v.store, p, xstat.Tag{UUID: d.UUID}); err != nil {
		return err
	}
	if _, err := v.forest.CreateRoot(d.UUID, p); err != nil {
		return err
	}
	return nil
}
