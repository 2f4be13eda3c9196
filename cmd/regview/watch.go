package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-tty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"omibyte.io/regview/treeview"
)

const watchHelp = "q quit  r refresh  g target running  s target stopped"

var (
	watchOpts = struct {
		interval time.Duration
	}{}

	watchCmd = &cobra.Command{
		Use:   "watch [PERIPHERAL...]",
		Short: "Continuously show the expanded peripherals",
		Long: `Redraw the peripheral tree at a fixed interval. The named peripherals are
expanded first. On a terminal single keys control the view: ` + watchHelp + `.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			interval := c.RefreshInterval
			if cmd.Flags().Changed("interval") {
				interval = watchOpts.interval
			}

			s, t, err := startSession(cmd)
			if err != nil {
				return err
			}
			defer t.Close()
			defer s.Terminated()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			e := &expansions{s: s}
			defer e.restore()

			for _, path := range args {
				id, err := resolve(s, path)
				if err != nil {
					return err
				}
				if err := e.expand(ctx, id); err != nil {
					return err
				}
			}

			provider := treeview.NewProvider()
			provider.Add(s)

			var tick <-chan time.Time
			if interval > 0 {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				tick = ticker.C
			}

			keys := readKeys(ctx)
			running := false
			for {
				if !running {
					s.UpdateData(ctx)
				}
				if err := draw(ctx, cmd.OutOrStdout(), provider, running); err != nil {
					return err
				}

				select {
				case <-ctx.Done():
					return nil
				case <-tick:
				case r, ok := <-keys:
					if !ok {
						keys = nil
						continue
					}
					switch r {
					case 'q', 'Q':
						return nil
					case 'g':
						running = true
						s.DebugContinued()
					case 's':
						running = false
						s.DebugStopped(ctx)
					}
				}
			}
		},
	}
)

func init() {
	watchCmd.Flags().DurationVarP(&watchOpts.interval, "interval", "i", time.Second, "refresh interval, 0 refreshes on key press only")
}

// readKeys delivers single key presses while stdin is a terminal. The channel
// is nil otherwise.
func readKeys(ctx context.Context) <-chan rune {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	t, err := tty.Open()
	if err != nil {
		return nil
	}

	keys := make(chan rune)
	go func() {
		defer close(keys)
		defer t.Close()
		for {
			r, err := t.ReadRune()
			if err != nil {
				return
			}
			select {
			case keys <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return keys
}

func draw(ctx context.Context, w io.Writer, provider *treeview.Provider, running bool) error {
	p := printer{w: w, provider: provider}
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if width, _, err := term.GetSize(fd); err == nil {
			p.width = width
		}
		fmt.Fprint(w, "\x1b[H\x1b[2J")
	}

	status := "stopped"
	if running {
		status = "running"
	}
	fmt.Fprintf(w, "%s  [%s]  %s\n\n", time.Now().Format(time.TimeOnly), status, watchHelp)
	return p.print(ctx, provider.Roots(), 0)
}
