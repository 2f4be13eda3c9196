package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"omibyte.io/regview/session"
)

var (
	prefsOpts = struct {
		clear bool
	}{}

	prefsCmd = &cobra.Command{
		Use:   "prefs",
		Short: "Show or clear the saved display preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path := session.SettingsPath(c.SessionOptions().Workspace)

			if prefsOpts.clear {
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "removed", path)
				return nil
			}

			settings, err := session.LoadSettings(path)
			if err != nil {
				return err
			}
			if len(settings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no preferences in", path)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NODE\tEXPANDED\tPINNED\tFORMAT")
			for _, setting := range settings {
				fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", setting.Node, setting.Expanded, setting.Pinned, setting.Format)
			}
			return w.Flush()
		},
	}
)

func init() {
	prefsCmd.Flags().BoolVar(&prefsOpts.clear, "clear", false, "remove the preferences file")
}
