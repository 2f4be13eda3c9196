package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"omibyte.io/regview/config"
	"omibyte.io/regview/memory"
	"omibyte.io/regview/peripheral"
	"omibyte.io/regview/session"
)

var errNoTarget = errors.New("no target: use --target or $" + config.EnvTarget)

// loadConfig merges the configuration file with the flags given on the
// command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c, err := config.Load(rootOpts.config)
	if err != nil {
		return c, err
	}

	flags := cmd.Flags()
	if flags.Changed("svd") {
		c.SVD = rootOpts.svd
	}
	if flags.Changed("target") {
		c.Target.GDB, c.Target.Image = config.ParseTarget(rootOpts.target)
	}
	if flags.Changed("workspace") {
		c.Workspace = rootOpts.workspace
	}
	if flags.Changed("gap") {
		c.GapThreshold = rootOpts.gap
	}
	if flags.Changed("verbose") {
		c.Verbosity = rootOpts.verbose
	}
	return c, c.Validate()
}

type target struct {
	ch        peripheral.MemoryChannel
	gdb       *memory.GDBClient
	image     *memory.Image
	imagePath string
}

func openTarget(ctx context.Context, c config.Config) (*target, error) {
	switch {
	case len(c.Target.GDB) > 0:
		client, err := memory.DialGDB(ctx, c.Target.GDB, memory.GDBConfig{
			MaxReadSize:  c.Target.MaxReadSize,
			MaxWriteSize: c.Target.MaxWriteSize,
		})
		if err != nil {
			return nil, err
		}
		return &target{ch: client, gdb: client}, nil
	case len(c.Target.Image) > 0:
		path := c.Target.Image
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.Workspace, path)
		}
		img, err := memory.LoadImageFile(path)
		if err != nil {
			return nil, err
		}
		return &target{ch: img, image: img, imagePath: path}, nil
	}
	return nil, errNoTarget
}

// save writes a modified memory image back to its file.
func (t *target) save() error {
	if t.image == nil {
		return nil
	}
	return t.image.SaveFile(t.imagePath)
}

func (t *target) Close() error {
	if t.gdb != nil {
		return t.gdb.Close()
	}
	return nil
}

// startSession loads the configuration, connects to the target and loads the
// device description.
func startSession(cmd *cobra.Command) (*session.Session, *target, error) {
	c, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if len(c.SVD) == 0 {
		return nil, nil, fmt.Errorf("no SVD file: use --svd or $%s", config.EnvSVD)
	}

	opts := c.SessionOptions()
	c.Workspace = opts.Workspace
	opts.Output = cmd.ErrOrStderr()

	t, err := openTarget(cmd.Context(), c)
	if err != nil {
		return nil, nil, err
	}

	s := session.New("regview", t.ch, opts)
	s.Started(cmd.Context(), c.SVD, c.GapThreshold)
	if err := s.Err(); err != nil {
		t.Close()
		return nil, nil, err
	}
	return s, t, nil
}

// expansions tracks the peripherals a command expands on its own. Unless
// --save-expanded is given they are collapsed again before the session saves
// its preferences.
type expansions struct {
	s   *session.Session
	ids []peripheral.NodeID
}

// expand reads the peripheral that contains id.
func (e *expansions) expand(ctx context.Context, id peripheral.NodeID) error {
	p, expanded := peripheral.NoNode, false
	e.s.View(func(tree *peripheral.Tree) {
		p = tree.PeripheralOf(id)
		expanded = tree.Expanded(p)
	})
	if err := e.s.SetExpanded(ctx, p, true); err != nil {
		return err
	}
	if !expanded {
		e.ids = append(e.ids, p)
	}
	return nil
}

func (e *expansions) restore() {
	if rootOpts.saveExpanded {
		return
	}
	for _, id := range e.ids {
		e.s.SetExpanded(context.Background(), id, false)
	}
	e.ids = nil
}

// resolve looks up a dotted node path.
func resolve(s *session.Session, path string) (peripheral.NodeID, error) {
	id := s.FindByPath(path)
	if id == peripheral.NoNode {
		return id, fmt.Errorf("%w: %s", session.ErrUnknownNode, path)
	}
	return id, nil
}
