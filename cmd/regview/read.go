package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"omibyte.io/regview/peripheral"
	"omibyte.io/regview/treeview"
)

var (
	readOpts = struct {
		format string
	}{}

	readCmd = &cobra.Command{
		Use:   "read PATH...",
		Short: "Read registers and fields",
		Long: `Read the registers or fields named by their dotted paths, for example
UART0.CTRL or UART0.CTRL.MODE. Peripherals and clusters print their subtree.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, ok := peripheral.ParseFormat(readOpts.format)
			if !ok {
				return fmt.Errorf("unknown format %q", readOpts.format)
			}

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
			out := cmd.OutOrStdout()

			for _, path := range args {
				id, err := resolve(s, path)
				if err != nil {
					return err
				}
				if err := e.expand(cmd.Context(), id); err != nil {
					return err
				}
				if cmd.Flags().Changed("format") {
					if err := s.SetFormat(id, format); err != nil {
						return err
					}
				}

				value, err := s.CopyValue(id)
				if errors.Is(err, peripheral.ErrNotUpdatable) {
					item, err := provider.Item(s.ID(), id)
					if err != nil {
						return err
					}
					p := printer{w: out, provider: provider, all: true, expansions: e}
					if err := p.print(cmd.Context(), []treeview.Item{item}, 0); err != nil {
						return err
					}
					continue
				} else if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s = %s\n", path, value)
			}
			return nil
		},
	}
)

func init() {
	readCmd.Flags().StringVarP(&readOpts.format, "format", "f", "auto", "display format (auto, hex, decimal, binary)")
}
