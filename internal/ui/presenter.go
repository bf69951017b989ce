package ui

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/stats"
)

// Presenter consumes job events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer     io.Writer
	ErrWriter  io.Writer
	Stats      stats.ReadTicker
	IsTTY      bool
	Width      int // terminal columns for the HUD
	Quiet      bool
	Verbose    bool
	NoProgress bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats}
	}
	if !cfg.IsTTY || cfg.NoProgress {
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			stats:   cfg.Stats,
			verbose: cfg.Verbose,
		}
	}
	return &hudPresenter{
		w:       cfg.ErrWriter, // HUD renders to stderr (the TTY)
		stats:   cfg.Stats,
		verbose: cfg.Verbose,
		width:   cfg.Width,
	}
}

// Terminal reports whether f is a terminal and its width in columns. The
// width falls back to 80 when it cannot be read.
func Terminal(f *os.File) (bool, int) {
	fd := int(f.Fd()) //nolint:gosec // G115
	if !term.IsTerminal(fd) {
		return false, 80
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		w = 80
	}
	return true, w
}
