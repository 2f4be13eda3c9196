package session

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sync"

	"golang.org/x/exp/slices"

	"omibyte.io/regview/peripheral"
	"omibyte.io/regview/svd"
)

type State int

const (
	Uninitialized State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	// Workspace anchors relative SVD paths and holds the preferences file.
	Workspace string

	Verbosity Verbosity
	Output    io.Writer

	MaxReadChunk       uint32
	MaxConcurrentReads int
}

// Session owns the peripheral tree of one debug session. Its methods are safe
// to call from multiple goroutines; they run one at a time.
type Session struct {
	mu   sync.Mutex
	id   string
	ch   peripheral.MemoryChannel
	opts Options
	log  *Logger

	state   State
	message string
	err     error
	svdPath string
	gap     int
	tree    *peripheral.Tree

	listenersMu sync.Mutex
	listeners   []func(*Session)
}

func New(id string, ch peripheral.MemoryChannel, opts Options) *Session {
	return &Session{
		id:   id,
		ch:   ch,
		opts: opts,
		log:  NewLogger(opts.Output, opts.Verbosity),
		gap:  peripheral.DefaultGapThreshold,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Logger() *Logger {
	return s.log
}

// OnChange registers fn to run whenever the tree or the state changes. It is
// called without the session lock held.
func (s *Session) OnChange(fn func(*Session)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) notify() {
	s.listenersMu.Lock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// State returns the load state and, for Failed, the error message.
func (s *Session) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.message
}

// Err returns the error that moved the session into the Failed state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) SVDPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.svdPath
}

func (s *Session) GapThreshold() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gap
}

// View runs fn with the tree while holding the session lock. The tree is nil
// unless the session is loaded. fn must not call back into the session.
func (s *Session) View(fn func(tree *peripheral.Tree)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.tree)
}

// QuantizeGap maps a raw gap threshold onto the supported values: a negative
// value disables batching, anything else is rounded to a multiple of 8
// between 0 and 32.
func QuantizeGap(gap int) int {
	if gap < 0 {
		return -1
	}
	q := int(math.Round(float64(gap)/8)) * 8
	return min(max(q, 0), 32)
}

// Started loads the description at svdPath and restores the saved
// preferences. It never fails: parse errors move the session into the Failed
// state with a message for display.
func (s *Session) Started(ctx context.Context, svdPath string, gapThreshold int) {
	if !filepath.IsAbs(svdPath) && len(s.opts.Workspace) > 0 {
		svdPath = filepath.Join(s.opts.Workspace, svdPath)
	}

	s.mu.Lock()
	s.state = Loading
	s.message = ""
	s.err = nil
	s.tree = nil
	s.svdPath = svdPath
	s.gap = QuantizeGap(gapThreshold)
	gap := s.gap
	s.mu.Unlock()
	s.notify()

	tree, err := s.load(svdPath, gap)

	s.mu.Lock()
	if err != nil {
		s.state = Failed
		s.message = err.Error()
		s.err = err
		s.mu.Unlock()
		s.log.Warnf("session %s: %v", s.id, err)
		s.notify()
		return
	}
	s.tree = tree
	s.state = Loaded
	s.restore()
	s.mu.Unlock()

	s.log.Infof("session %s: loaded %d peripherals from %s", s.id, len(tree.Peripherals()), svdPath)
	s.notify()
}

func (s *Session) load(svdPath string, gap int) (*peripheral.Tree, error) {
	dev, err := svd.Load(svdPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", peripheral.ErrParse, err)
	}
	return peripheral.Build(dev, peripheral.Options{
		GapThreshold:       gap,
		MaxReadChunk:       s.opts.MaxReadChunk,
		MaxConcurrentReads: s.opts.MaxConcurrentReads,
		Logf:               s.log.Warnf,
	})
}

func (s *Session) restore() {
	if len(s.opts.Workspace) == 0 {
		return
	}
	path := SettingsPath(s.opts.Workspace)
	settings, err := LoadSettings(path)
	if err != nil {
		s.log.Warnf("session %s: ignoring preferences: %v", s.id, err)
		return
	}
	if skipped := s.tree.Restore(settings); skipped > 0 {
		s.log.Debugf("session %s: %d preferences name nodes that no longer exist", s.id, skipped)
	}
}

// Terminated saves the preferences and drops the tree. A failed save is only
// reported.
func (s *Session) Terminated() {
	s.mu.Lock()
	if s.tree != nil && len(s.opts.Workspace) > 0 {
		if err := SaveSettings(SettingsPath(s.opts.Workspace), s.tree.SaveAll()); err != nil {
			s.log.Warnf("session %s: unable to save preferences: %v", s.id, err)
		}
	}
	s.tree = nil
	s.state = Uninitialized
	s.message = ""
	s.err = nil
	s.mu.Unlock()
	s.notify()
}

// UpdateData refreshes every expanded peripheral. Read failures are logged;
// the tree keeps rendering with whatever values could be decoded.
func (s *Session) UpdateData(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Loaded {
		s.mu.Unlock()
		return nil
	}
	for _, p := range s.tree.Peripherals() {
		if err := s.tree.UpdateData(ctx, s.ch, p); err != nil {
			s.log.Warnf("session %s: refresh of %s failed: %v", s.id, s.tree.Name(p), err)
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// DebugStopped runs one refresh once the target halts.
func (s *Session) DebugStopped(ctx context.Context) {
	s.UpdateData(ctx)
}

// DebugContinued marks every register unknown while the target runs.
func (s *Session) DebugContinued() {
	s.mu.Lock()
	if s.state != Loaded {
		s.mu.Unlock()
		return
	}
	for _, p := range s.tree.Peripherals() {
		s.tree.Invalidate(p)
	}
	s.mu.Unlock()
	s.notify()
}

// modify runs fn on a valid node of a loaded tree and notifies listeners
// afterwards.
func (s *Session) modify(id peripheral.NodeID, fn func(tree *peripheral.Tree) error) error {
	s.mu.Lock()
	if s.state != Loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	if !s.tree.Valid(id) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	err := fn(s.tree)
	s.mu.Unlock()
	s.notify()
	return err
}

// SetExpanded expands or collapses a node. Expanding a peripheral reads it.
func (s *Session) SetExpanded(ctx context.Context, id peripheral.NodeID, expanded bool) error {
	return s.modify(id, func(tree *peripheral.Tree) error {
		tree.SetExpanded(id, expanded)
		if expanded && tree.Kind(id) == peripheral.KindPeripheral {
			if err := tree.UpdateData(ctx, s.ch, id); err != nil {
				s.log.Warnf("session %s: refresh of %s failed: %v", s.id, tree.Name(id), err)
			}
		}
		return nil
	})
}

// TogglePin pins or unpins a peripheral.
func (s *Session) TogglePin(id peripheral.NodeID) error {
	return s.modify(id, func(tree *peripheral.Tree) error {
		if tree.Kind(id) != peripheral.KindPeripheral {
			return fmt.Errorf("%w: only peripherals can be pinned", ErrUnknownNode)
		}
		tree.SetPinned(id, !tree.Pinned(id))
		return nil
	})
}

func (s *Session) SetFormat(id peripheral.NodeID, format peripheral.Format) error {
	return s.modify(id, func(tree *peripheral.Tree) error {
		tree.SetFormat(id, format)
		return nil
	})
}

// UpdateNode writes user input to a register or field.
func (s *Session) UpdateNode(ctx context.Context, id peripheral.NodeID, input string) error {
	return s.modify(id, func(tree *peripheral.Tree) error {
		if tree.Kind(id) == peripheral.KindField {
			return tree.UpdateField(ctx, s.ch, id, input)
		}
		return tree.UpdateRegister(ctx, s.ch, id, input)
	})
}

// SetFieldEnum writes one of the enumerated values of a field.
func (s *Session) SetFieldEnum(ctx context.Context, id peripheral.NodeID, name string) error {
	return s.modify(id, func(tree *peripheral.Tree) error {
		return tree.SetFieldEnum(ctx, s.ch, id, name)
	})
}

// FindByPath resolves a dotted node path. Misses and unloaded sessions yield
// peripheral.NoNode.
func (s *Session) FindByPath(path string) peripheral.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return peripheral.NoNode
	}
	return s.tree.Find(path)
}

// CopyValue returns the value of a register or field as displayed.
func (s *Session) CopyValue(id peripheral.NodeID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return "", ErrNotLoaded
	}
	if !s.tree.Valid(id) {
		return "", fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	switch s.tree.Kind(id) {
	case peripheral.KindRegister, peripheral.KindField:
		return s.tree.FormattedValue(id), nil
	}
	return "", fmt.Errorf("%w: %s has no value", peripheral.ErrNotUpdatable, s.tree.Path(id))
}
