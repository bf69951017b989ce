package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hxsam/appifi/internal/config"
	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/filter"
	"github.com/hxsam/appifi/internal/stats"
	"github.com/hxsam/appifi/internal/ui"
	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/vfs"
	"github.com/hxsam/appifi/internal/xcopy"
	"github.com/hxsam/appifi/internal/xstat"
)

var errAborted = errors.New("aborted")

// filterFlag appends --exclude and --include rules to a shared chain in
// command-line order.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

var _ pflag.Value = (*filterFlag)(nil)

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

type copyFlags struct {
	dirPolicy   []string
	filePolicy  []string
	filterFile  string
	minSizeStr  string
	maxSizeStr  string
	interactive bool
	noProgress  bool
	chain       *filter.Chain
}

//nolint:gocyclo // CLI entry point orchestrates flag parsing, the job and its presenter
func newCopyCmd(a *app, move bool) *cobra.Command {
	f := &copyFlags{chain: filter.NewChain()}
	mode := xcopy.Copy
	use, short := "cp", "Copy entries into a directory"
	if move {
		mode = xcopy.Move
		use, short = "mv", "Move entries into a directory"
	}

	cmd := &cobra.Command{
		Use:   use + " <drive>:path... <drive>[:dir]",
		Short: short,
		Long: short + `.

Sources must share a parent directory. A source that names a drive root
stands for all of its entries. Collisions are settled by --dir-policy and
--file-policy: the first value applies when the existing entry has the
same kind, the second when it has the other kind. Policies are none,
parents, rename, replace (files only) and skip.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			policies, err := f.policies(cmd, a.cfg)
			if err != nil {
				return err
			}
			chain, err := f.filter()
			if err != nil {
				return err
			}
			if chain != nil {
				a.logger.Debug("filter", "rules", chain.String())
			}

			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			src, entries, err := resolveSources(ctx, v, args[:len(args)-1])
			if err != nil {
				return err
			}
			dstRef, err := parseRef(args[len(args)-1])
			if err != nil {
				return err
			}
			dd, dst, err := resolveDir(ctx, v, dstRef)
			if err != nil {
				return err
			}

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)
			presenterEvents := (<-chan event.Event)(events)
			if a.logFile != "" {
				presenterEvents = teeEvents(a.logger, events)
			}

			isTTY, width := ui.Terminal(os.Stderr)
			presenter := ui.NewPresenter(ui.Config{
				Writer:     os.Stdout,
				ErrWriter:  os.Stderr,
				Stats:      collector,
				IsTTY:      isTTY,
				Width:      width,
				Quiet:      a.quiet,
				Verbose:    a.verbose,
				NoProgress: f.noProgress || f.interactive,
			})

			job, err := xcopy.New(ctx, v, xcopy.Options{
				Mode:     mode,
				Src:      src,
				Entries:  entries,
				Dst:      &xcopy.Ref{Drive: dd.UUID, Dir: dst.UUID},
				Policies: policies,
				Filter:   chain,
				Events:   events,
				Stats:    collector,
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}

			var presenterErr error
			var presenterWg sync.WaitGroup
			presenterWg.Add(1)
			go func() {
				defer presenterWg.Done()
				presenterErr = presenter.Run(presenterEvents)
			}()

			st, runErr := settle(ctx, job, f.interactive, bufio.NewReader(os.Stdin), os.Stderr)
			view := job.View()
			job.Stop()
			close(events)
			presenterWg.Wait()
			if presenterErr != nil {
				fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
			}

			if !a.quiet {
				if summary := presenter.Summary(); summary != "" {
					fmt.Fprintln(os.Stderr, summary)
				}
			}
			if runErr != nil {
				return runErr
			}
			if st.Err != nil {
				return st.Err
			}
			if st.Conflicts > 0 || st.Failures > 0 {
				fmt.Fprint(os.Stderr, ui.RenderTasks(unsettled(view)))
				return &exitError{code: 1}
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVar(&f.dirPolicy, "dir-policy", nil, "directory collision policies: SAME[,OTHER]")
	fl.StringSliceVar(&f.filePolicy, "file-policy", nil, "file collision policies: SAME[,OTHER]")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "ask how to settle each conflict")
	fl.BoolVar(&f.noProgress, "no-progress", false, "disable progress display")

	fl.Var(&filterFlag{chain: f.chain}, "exclude", "exclude entries matching PATTERN (repeatable)")
	fl.Var(&filterFlag{chain: f.chain, include: true}, "include", "include entries matching PATTERN (repeatable)")
	fl.StringVar(&f.filterFile, "filter", "", "read filter rules from FILE")
	fl.StringVar(&f.minSizeStr, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	fl.StringVar(&f.maxSizeStr, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
	return cmd
}

// policies merges the policy flags with the config defaults.
func (f *copyFlags) policies(cmd *cobra.Command, cfg config.Config) (xcopy.Policies, error) {
	var (
		p   xcopy.Policies
		err error
	)
	if cmd.Flags().Changed("dir-policy") {
		p.Dir, err = config.ParsePolicies(f.dirPolicy)
	} else {
		p.Dir, err = cfg.DirPolicies()
	}
	if err != nil {
		return p, errs.Wrap(errs.EINVAL, "dir-policy", "", err)
	}
	if cmd.Flags().Changed("file-policy") {
		p.File, err = config.ParsePolicies(f.filePolicy)
	} else {
		p.File, err = cfg.FilePolicies()
	}
	if err != nil {
		return p, errs.Wrap(errs.EINVAL, "file-policy", "", err)
	}
	return p, nil
}

// filter returns the filter chain, or nil if it has no rules.
func (f *copyFlags) filter() (*filter.Chain, error) {
	if f.filterFile != "" {
		if err := f.chain.LoadFile(f.filterFile); err != nil {
			return nil, fmt.Errorf("load filter file: %w", err)
		}
	}
	if f.minSizeStr != "" {
		n, err := filter.ParseSize(f.minSizeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --min-size: %w", err)
		}
		f.chain.SetMinSize(n)
	}
	if f.maxSizeStr != "" {
		n, err := filter.ParseSize(f.maxSizeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-size: %w", err)
		}
		f.chain.SetMaxSize(n)
	}
	if f.chain.Empty() {
		return nil, nil //nolint:nilnil // no filter
	}
	return f.chain, nil
}

// resolveSources turns the source arguments into one directory and the
// entry names within it.
func resolveSources(ctx context.Context, v *vfs.VFS, args []string) (xcopy.Ref, []string, error) {
	var (
		src     xcopy.Ref
		entries []string
	)
	for i, arg := range args {
		r, err := parseRef(arg)
		if err != nil {
			return src, nil, err
		}
		parent, name, ok := r.parent()
		if !ok {
			if len(args) > 1 {
				return src, nil, errs.New(errs.EINVAL, "sources", arg, "a drive root must be the only source")
			}
			d, dir, err := resolveDir(ctx, v, r)
			if err != nil {
				return src, nil, err
			}
			return xcopy.Ref{Drive: d.UUID, Dir: dir.UUID}, nil, nil
		}
		d, dir, err := resolveDir(ctx, v, parent)
		if err != nil {
			return src, nil, err
		}
		if _, err := v.Resolve(ctx, d.UUID, dir.UUID, []string{name}); err != nil {
			return src, nil, err
		}
		ref := xcopy.Ref{Drive: d.UUID, Dir: dir.UUID}
		if i > 0 && ref != src {
			return src, nil, errs.New(errs.EINVAL, "sources", arg, "sources must share a parent directory")
		}
		src = ref
		entries = append(entries, name)
	}
	return src, entries, nil
}

// settle waits for the job to go quiet, asking about conflicts in between
// when interactive.
func settle(ctx context.Context, job *xcopy.Job, interactive bool, in *bufio.Reader, out io.Writer) (xcopy.Status, error) {
	for {
		st, err := job.Wait(ctx)
		if err != nil {
			return st, err
		}
		if st.Done() || st.Conflicts == 0 || !interactive {
			return st, nil
		}
		if err := promptConflicts(job, in, out); err != nil {
			return job.Status(), err
		}
	}
}

func promptConflicts(job *xcopy.Job, in *bufio.Reader, out io.Writer) error {
	for _, s := range job.View() {
		if s.State != xcopy.Conflict {
			continue
		}
		for {
			fmt.Fprintf(out, "%s: %s\n  [r]ename [s]kip [m]erge/keep [o]verwrite [q]uit (uppercase: apply to all): ", s.Path, s.Error)
			line, err := in.ReadString('\n')
			if err != nil && line == "" {
				return errAborted
			}
			p, all, ok := parseAnswer(strings.TrimSpace(line), s.Type)
			if !ok {
				continue
			}
			if p == underlying.None {
				return errAborted
			}
			// ENOENT and EINVAL mean an earlier apply-to-all got there first.
			if err := job.Resolve(s.ID, p, all); err != nil &&
				!errs.Is(err, errs.ENOENT) && !errs.Is(err, errs.EINVAL) {
				return err
			}
			break
		}
	}
	return nil
}

// parseAnswer maps a prompt answer to a policy. None means quit.
func parseAnswer(ans string, kind xstat.Kind) (underlying.Policy, bool, bool) {
	if len(ans) != 1 {
		return underlying.None, false, false
	}
	all := strings.ToUpper(ans) == ans
	switch strings.ToLower(ans) {
	case "r":
		return underlying.Rename, all, true
	case "s":
		return underlying.Skip, all, true
	case "m":
		return underlying.Parents, all, true
	case "o":
		if kind == xstat.Directory {
			return underlying.None, false, false
		}
		return underlying.Replace, all, true
	case "q":
		return underlying.None, false, true
	}
	return underlying.None, false, false
}

// unsettled keeps the tasks that did not finish and their ancestors.
func unsettled(view []xcopy.Summary) []xcopy.Summary {
	keep := make(map[string]bool)
	byID := make(map[string]xcopy.Summary, len(view))
	for _, s := range view {
		byID[s.ID] = s
	}
	for _, s := range view {
		if s.State != xcopy.Conflict && s.State != xcopy.Failed {
			continue
		}
		for id := s.ID; id != "" && !keep[id]; id = byID[id].Parent {
			keep[id] = true
		}
	}
	var out []xcopy.Summary
	for _, s := range view {
		if keep[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// teeEvents logs every event before forwarding it.
func teeEvents(logger *slog.Logger, events <-chan event.Event) <-chan event.Event {
	teed := make(chan event.Event, 256)
	go func() {
		for ev := range events {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("task", ev.TaskID),
				slog.String("path", ev.Path),
				slog.Int64("size", ev.Size),
			}
			if ev.Method != "" {
				attrs = append(attrs, slog.String("method", ev.Method))
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			logger.LogAttrs(context.Background(), slog.LevelDebug, "xcopy.event", attrs...)
			teed <- ev
		}
		close(teed)
	}()
	return teed
}
