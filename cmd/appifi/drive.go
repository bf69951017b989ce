package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hxsam/appifi/internal/drive"
)

func newDriveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drive",
		Short: "List and manage drives",
	}
	cmd.AddCommand(
		newDriveListCmd(a),
		newDriveCreatePrivateCmd(a),
		newDriveCreatePublicCmd(a),
		newDriveUpdateCmd(a),
		newDriveDeleteCmd(a),
	)
	return cmd
}

func newDriveListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drives",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			drives := v.Drives()
			if asJSON {
				return printJSON(drives)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UUID\tTYPE\tNAME\tOWNER/WRITELIST")
			for _, d := range drives {
				name, who := d.Tag, d.Owner
				if d.IsPublic() {
					name, who = d.Label, strings.Join(d.Writelist, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.UUID, d.Type, name, who)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDriveCreatePrivateCmd(a *app) *cobra.Command {
	var owner, tag string
	cmd := &cobra.Command{
		Use:   "create-private",
		Short: "Create a private drive",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			d, err := v.CreatePrivateDrive(ctx, owner, tag)
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner user uuid")
	cmd.Flags().StringVar(&tag, "tag", "", "drive tag, e.g. home")
	_ = cmd.MarkFlagRequired("owner") //nolint:errcheck // flag name is hardcoded
	return cmd
}

// propsFlags binds the public drive property flags.
type propsFlags struct {
	label     string
	writelist []string
	readlist  []string
}

func (f *propsFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.label, "label", "", "drive label")
	cmd.Flags().StringSliceVar(&f.writelist, "writelist", nil, "user uuids allowed to write")
	cmd.Flags().StringSliceVar(&f.readlist, "readlist", nil, "user uuids allowed to read")
}

// props returns the properties whose flags were set.
func (f *propsFlags) props(cmd *cobra.Command) drive.PublicProps {
	var p drive.PublicProps
	if cmd.Flags().Changed("label") {
		p.Label = &f.label
	}
	if cmd.Flags().Changed("writelist") {
		p.Writelist = append([]string{}, f.writelist...)
	}
	if cmd.Flags().Changed("readlist") {
		p.Readlist = append([]string{}, f.readlist...)
	}
	return p
}

func newDriveCreatePublicCmd(a *app) *cobra.Command {
	var pf propsFlags
	cmd := &cobra.Command{
		Use:   "create-public",
		Short: "Create a public drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			d, err := v.CreatePublicDrive(ctx, pf.props(cmd))
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	}
	pf.bind(cmd)
	return cmd
}

func newDriveUpdateCmd(a *app) *cobra.Command {
	var pf propsFlags
	cmd := &cobra.Command{
		Use:   "update <drive>",
		Short: "Update a public drive's label, writelist or readlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			d, err := findDrive(v.Drives(), args[0])
			if err != nil {
				return err
			}
			d, err = v.UpdatePublicDrive(ctx, d.UUID, pf.props(cmd))
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	}
	pf.bind(cmd)
	return cmd
}

func newDriveDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <drive>",
		Short: "Remove a drive from the registry, leaving its data on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			v, err := a.open(ctx)
			if err != nil {
				return err
			}
			d, err := findDrive(v.Drives(), args[0])
			if err != nil {
				return err
			}
			return v.DeleteDrive(ctx, d.UUID)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
