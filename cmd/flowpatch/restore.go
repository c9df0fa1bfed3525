package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/flowpatch/pkg/backup"
	"github.com/dd0wney/flowpatch/pkg/logging"
)

func newRestoreCmd(a *app) *cobra.Command {
	var from, out string
	var list bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a document from a backup written by apply --backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				if out == "" {
					return fmt.Errorf("--list needs --out")
				}
				paths, err := backup.List(out)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(a.stdout, p)
				}
				return nil
			}
			if from == "" || out == "" {
				return fmt.Errorf("--from and --out are required")
			}

			info, err := backup.Restore(from, out)
			if err != nil {
				return err
			}
			a.logger.Info("backup restored",
				logging.Path(out),
				logging.String("backup", info.Path),
				logging.String("created", info.Created.Format(time.RFC3339)),
			)
			fmt.Fprintf(a.stdout, "restored %s from backup taken %s (%d bytes)\n",
				out, info.Created.Format(time.RFC3339), info.RawSize)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&from, "from", "f", "", "backup file (*.bak.sz)")
	f.StringVarP(&out, "out", "o", "", "document to restore")
	f.BoolVar(&list, "list", false, "list the backups of --out, oldest first")

	return cmd
}
