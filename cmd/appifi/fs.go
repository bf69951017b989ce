package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/ui"
	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/xstat"
)

func newLsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ls <drive>[:path]",
		Short: "List a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			r, err := parseRef(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			_, dir, err := resolveDir(ctx, v, r)
			if err != nil {
				return err
			}
			xs, err := v.Readdir(ctx, dir.UUID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(xs)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, x := range xs {
				name, size := x.Name, ui.FormatBytes(x.Size)
				if x.IsDir() {
					name, size = name+"/", "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ui.FormatMtime(x.Mtime), size, shortHash(x.Hash), name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func shortHash(h string) string {
	if len(h) < 12 {
		return "-"
	}
	return h[:12]
}

func newTreeCmd(a *app) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree <drive>[:path]",
		Short: "Print a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			r, err := parseRef(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			d, dir, err := resolveDir(ctx, v, r)
			if err != nil {
				return err
			}
			if err := v.ReadDrive(ctx, d.UUID); err != nil {
				return err
			}
			out, err := ui.RenderTree(v, dir, r.String(), depth)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&depth, "depth", "L", 0, "descend at most N levels (0: unlimited)")
	return cmd
}

func newMkdirCmd(a *app) *cobra.Command {
	var parents, rename bool
	cmd := &cobra.Command{
		Use:   "mkdir <drive>:path",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			r, err := parseRef(args[0])
			if err != nil {
				return err
			}
			if parents && rename {
				return errs.New(errs.EINVAL, "mkdir", r.String(), "--parents and --rename are exclusive")
			}
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}

			policy := underlying.None
			switch {
			case parents:
				policy = underlying.Parents
			case rename:
				policy = underlying.Rename
			}

			parent, name, ok := r.parent()
			if !ok {
				return errs.New(errs.EEXIST, "mkdir", r.String(), "drive root exists")
			}
			d, err := findDrive(v.Drives(), r.drive)
			if err != nil {
				return err
			}
			dirUUID := d.UUID
			if parents {
				// Create every missing ancestor in turn.
				for _, n := range parent.names {
					x, _, err := v.Mkdir(ctx, d.UUID, dirUUID, n, underlying.Parents)
					if err != nil {
						return err
					}
					dirUUID = x.UUID
				}
			} else {
				_, dir, err := resolveDir(ctx, v, parent)
				if err != nil {
					return err
				}
				dirUUID = dir.UUID
			}

			x, _, err := v.Mkdir(ctx, d.UUID, dirUUID, name, policy)
			if err != nil {
				return err
			}
			if !a.quiet {
				fmt.Fprintf(os.Stdout, "%s  %s\n", x.UUID, x.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "no error if existing, make parent directories as needed")
	cmd.Flags().BoolVar(&rename, "rename", false, "pick a free name if the directory exists")
	return cmd
}

func newHashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <drive>:path",
		Short: "Compute and record a file's fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			r, err := parseRef(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			d, n, err := resolve(ctx, v, r)
			if err != nil {
				return err
			}
			if n.Type != xstat.File {
				return errs.New(errs.EINVAL, "hash", r.String(), "not a file")
			}
			x, err := v.HashFile(ctx, d.UUID, n.Parent, n.UUID, n.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s  %s\n", x.Hash, r)
			return nil
		},
	}
}
