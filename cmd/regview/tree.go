package main

import (
	"github.com/spf13/cobra"

	"omibyte.io/regview/treeview"
)

var (
	treeOpts = struct {
		all bool
	}{}

	treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Print the peripheral tree",
		Long: `Print the peripherals of the device. Peripherals that were expanded in an
earlier run are read from the target and shown with their registers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, t, err := startSession(cmd)
			if err != nil {
				return err
			}
			defer t.Close()
			defer s.Terminated()

			e := &expansions{s: s}
			defer e.restore()

			provider := treeview.NewProvider()
			provider.Add(s)
			s.UpdateData(cmd.Context())

			p := printer{w: cmd.OutOrStdout(), provider: provider, all: treeOpts.all, expansions: e}
			return p.print(cmd.Context(), provider.Roots(), 0)
		},
	}
)

func init() {
	treeCmd.Flags().BoolVarP(&treeOpts.all, "all", "a", false, "read and print every peripheral")
}
