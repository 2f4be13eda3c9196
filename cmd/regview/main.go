package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"omibyte.io/regview/memory"
	"omibyte.io/regview/peripheral"
)

var (
	rootOpts = struct {
		config       string
		svd          string
		target       string
		workspace    string
		gap          int
		verbose      string
		saveExpanded bool
	}{}

	mainCmd = &cobra.Command{
		Use:   "regview",
		Short: "Inspect and modify peripheral registers",
		Long: `regview loads a CMSIS-SVD device description and shows the peripherals,
registers and fields of a target. Memory is accessed through a GDB remote
stub or a YAML memory image.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	flags := mainCmd.PersistentFlags()
	flags.StringVarP(&rootOpts.config, "config", "c", "", "configuration file (default: ./regview.yaml)")
	flags.StringVarP(&rootOpts.svd, "svd", "s", "", "SVD file describing the device. Default: $REGVIEW_SVD")
	flags.StringVarP(&rootOpts.target, "target", "t", "", "gdb address (host:port) or image:<file>. Default: $REGVIEW_TARGET")
	flags.StringVarP(&rootOpts.workspace, "workspace", "w", "", "directory holding the preferences. Default: $REGVIEW_WORKSPACE")
	flags.IntVar(&rootOpts.gap, "gap", 16, "largest gap in bytes bridged by a single read, -1 disables batching")
	flags.StringVarP(&rootOpts.verbose, "verbose", "v", "", "verbosity level (quiet, info, warning, debug)")
	flags.BoolVar(&rootOpts.saveExpanded, "save-expanded", false, "remember the peripherals this command expands for later runs")

	mainCmd.AddCommand(treeCmd, readCmd, writeCmd, watchCmd, prefsCmd)
}

func main() {
	if err := mainCmd.Execute(); err != nil {
		switch {
		case errors.Is(err, memory.ErrTarget):
			fmt.Fprintln(os.Stderr, "Target error:", err)
		case errors.Is(err, peripheral.ErrParse):
			fmt.Fprintln(os.Stderr, "SVD error:", err)
		case errors.Is(err, peripheral.ErrInvalidValue),
			errors.Is(err, peripheral.ErrOutOfRange),
			errors.Is(err, peripheral.ErrReadOnly),
			errors.Is(err, peripheral.ErrNotUpdatable):
			fmt.Fprintln(os.Stderr, "Input error:", err)
		default:
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
