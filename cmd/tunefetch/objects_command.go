package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tunefetch/internal/app"
	"tunefetch/internal/storage"
)

func newObjectsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "objects [prefix]",
		Short: "List tracks published to object storage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc, err := app.Storage(cmd.Context(), cfg, ctx.logger(cmd))
			if err != nil {
				return err
			}

			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}
			objects, err := svc.ListObjects(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			printObjects(cmd.OutOrStdout(), objects)
			return nil
		},
	}
}

func printObjects(out io.Writer, objects []storage.ObjectInfo) {
	if len(objects) == 0 {
		fmt.Fprintln(out, "No objects")
		return
	}
	rows := make([][]string, 0, len(objects))
	for _, o := range objects {
		modified := "unknown"
		if o.LastModified != nil {
			modified = formatStamp(*o.LastModified)
		}
		rows = append(rows, []string{o.Key, humanize.IBytes(uint64(o.Size)), modified})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Key", "Size", "Modified"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	))
}
