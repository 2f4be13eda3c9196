package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	writeOpts = struct {
		enum bool
	}{}

	writeCmd = &cobra.Command{
		Use:   "write PATH VALUE",
		Short: "Write a register or field",
		Long: `Write VALUE to the register or field at PATH. Values are 0x<hex>,
0b<binary>, #<binary> or decimal numbers. Fields with enumerated values also
accept the name of a value. Fields are merged into the current register value.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, t, err := startSession(cmd)
			if err != nil {
				return err
			}
			defer t.Close()
			defer s.Terminated()

			e := &expansions{s: s}
			defer e.restore()

			path, value := args[0], args[1]
			id, err := resolve(s, path)
			if err != nil {
				return err
			}
			if err := e.expand(cmd.Context(), id); err != nil {
				return err
			}

			if writeOpts.enum {
				err = s.SetFieldEnum(cmd.Context(), id, value)
			} else {
				err = s.UpdateNode(cmd.Context(), id, value)
			}
			if err != nil {
				return err
			}

			if err := t.save(); err != nil {
				return err
			}

			result, err := s.CopyValue(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", path, result)
			return nil
		},
	}
)

func init() {
	writeCmd.Flags().BoolVarP(&writeOpts.enum, "enum", "e", false, "VALUE names an enumerated value")
}
