package treeview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"omibyte.io/regview/bitutil"
	"omibyte.io/regview/peripheral"
	"omibyte.io/regview/session"
)

var ErrNoSession = errors.New("no such debug session")

type Collapsible int

const (
	None Collapsible = iota
	Collapsed
	Expanded
)

// Item is one rendered row. Items without a node are session headers or
// messages.
type Item struct {
	Session      string
	Node         peripheral.NodeID
	Label        string
	Description  string
	Tooltip      string
	Collapsible  Collapsible
	ContextValue string
}

// Provider presents the peripherals of every active session. With a single
// session its peripherals are the roots, otherwise each session gets a header
// row.
type Provider struct {
	mu       sync.Mutex
	sessions []*session.Session

	listenersMu sync.Mutex
	listeners   []func()
}

func NewProvider() *Provider {
	return &Provider{}
}

// OnDidChange registers fn to run whenever a session changes.
func (p *Provider) OnDidChange(fn func()) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Provider) fire() {
	p.listenersMu.Lock()
	listeners := slices.Clone(p.listeners)
	p.listenersMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (p *Provider) Add(s *session.Session) {
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()

	s.OnChange(func(*session.Session) {
		p.mu.Lock()
		active := slices.Contains(p.sessions, s)
		p.mu.Unlock()
		if active {
			p.fire()
		}
	})
	p.fire()
}

func (p *Provider) Remove(id string) {
	p.mu.Lock()
	p.sessions = slices.DeleteFunc(p.sessions, func(s *session.Session) bool {
		return s.ID() == id
	})
	p.mu.Unlock()
	p.fire()
}

func (p *Provider) Session(id string) (*session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		if s.ID() == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoSession, id)
}

func (p *Provider) Roots() []Item {
	p.mu.Lock()
	sessions := slices.Clone(p.sessions)
	p.mu.Unlock()

	switch len(sessions) {
	case 0:
		return nil
	case 1:
		return sessionChildren(sessions[0])
	}

	items := make([]Item, 0, len(sessions))
	for _, s := range sessions {
		state, _ := s.State()
		items = append(items, Item{
			Session:      s.ID(),
			Node:         peripheral.NoNode,
			Label:        s.ID(),
			Description:  state.String(),
			Collapsible:  Expanded,
			ContextValue: "session",
		})
	}
	return items
}

func (p *Provider) Children(parent Item) []Item {
	s, err := p.Session(parent.Session)
	if err != nil {
		return nil
	}
	if parent.Node == peripheral.NoNode {
		if parent.ContextValue == "session" {
			return sessionChildren(s)
		}
		return nil
	}

	var items []Item
	s.View(func(tree *peripheral.Tree) {
		if tree == nil || !tree.Valid(parent.Node) {
			return
		}
		for _, child := range tree.Children(parent.Node) {
			items = append(items, nodeItem(s.ID(), tree, child))
		}
	})
	return items
}

// Item renders a single node of a session.
func (p *Provider) Item(sessionID string, id peripheral.NodeID) (Item, error) {
	s, err := p.Session(sessionID)
	if err != nil {
		return Item{}, err
	}

	var item Item
	err = session.ErrNotLoaded
	s.View(func(tree *peripheral.Tree) {
		switch {
		case tree == nil:
		case !tree.Valid(id):
			err = fmt.Errorf("%w: %d", session.ErrUnknownNode, id)
		default:
			item, err = nodeItem(sessionID, tree, id), nil
		}
	})
	return item, err
}

func sessionChildren(s *session.Session) []Item {
	state, message := s.State()
	switch state {
	case session.Loading:
		return []Item{{Session: s.ID(), Node: peripheral.NoNode, Label: "Loading...", ContextValue: "message"}}
	case session.Failed:
		return []Item{{Session: s.ID(), Node: peripheral.NoNode, Label: message, Tooltip: message, ContextValue: "message"}}
	case session.Loaded:
	default:
		return nil
	}

	var items []Item
	s.View(func(tree *peripheral.Tree) {
		if tree == nil {
			return
		}
		for _, id := range tree.Peripherals() {
			items = append(items, nodeItem(s.ID(), tree, id))
		}
	})
	return items
}

func nodeItem(sessionID string, tree *peripheral.Tree, id peripheral.NodeID) Item {
	item := Item{
		Session:      sessionID,
		Node:         id,
		Label:        tree.Label(id),
		Description:  tree.FormattedValue(id),
		Tooltip:      tooltip(tree, id),
		ContextValue: contextValue(tree, id),
	}
	if len(tree.Children(id)) > 0 {
		item.Collapsible = Collapsed
		if tree.Expanded(id) {
			item.Collapsible = Expanded
		}
	}
	return item
}

func contextValue(tree *peripheral.Tree, id peripheral.NodeID) string {
	kind := tree.Kind(id)
	switch kind {
	case peripheral.KindPeripheral:
		if tree.Pinned(id) {
			return "peripheral.pinned"
		}
	case peripheral.KindRegister, peripheral.KindField:
		if !tree.Access(id).CanWrite() {
			return kind.String() + ".readonly"
		}
		if kind == peripheral.KindField && len(tree.Enumeration(id)) > 0 {
			return "field.enum"
		}
	}
	return kind.String()
}

func tooltip(tree *peripheral.Tree, id peripheral.NodeID) string {
	var sb strings.Builder
	sb.WriteString(tree.Path(id))
	if d := tree.Description(id); len(d) > 0 {
		sb.WriteString("\n")
		sb.WriteString(d)
	}

	switch tree.Kind(id) {
	case peripheral.KindPeripheral, peripheral.KindCluster:
		fmt.Fprintf(&sb, "\nAddress: %s", bitutil.HexFormat(tree.Address(id), bitutil.DefaultHexPadding, true))
	case peripheral.KindRegister:
		fmt.Fprintf(&sb, "\nAddress: %s\nAccess: %s\nReset value: %s",
			bitutil.HexFormat(tree.Address(id), bitutil.DefaultHexPadding, true),
			tree.Access(id),
			bitutil.HexFormat(tree.ResetValue(id), int((tree.Width(id)+3)/4), true))
	case peripheral.KindField:
		fmt.Fprintf(&sb, "\nAccess: %s", tree.Access(id))
		for _, ev := range tree.Enumeration(id) {
			fmt.Fprintf(&sb, "\n%s = %d", ev.Name, ev.Value)
			if len(ev.Description) > 0 {
				fmt.Fprintf(&sb, ": %s", ev.Description)
			}
		}
	}
	return sb.String()
}

func (p *Provider) session(item Item) (*session.Session, error) {
	if item.Node == peripheral.NoNode {
		return nil, fmt.Errorf("%w: %s is not a node", session.ErrUnknownNode, item.Label)
	}
	return p.Session(item.Session)
}

// SetExpanded records the expansion state the host reports for an item.
func (p *Provider) SetExpanded(ctx context.Context, item Item, expanded bool) error {
	s, err := p.session(item)
	if err != nil {
		return err
	}
	return s.SetExpanded(ctx, item.Node, expanded)
}

func (p *Provider) TogglePin(item Item) error {
	s, err := p.session(item)
	if err != nil {
		return err
	}
	return s.TogglePin(item.Node)
}

func (p *Provider) SetFormat(item Item, format peripheral.Format) error {
	s, err := p.session(item)
	if err != nil {
		return err
	}
	return s.SetFormat(item.Node, format)
}

// Update writes user input to the register or field of an item.
func (p *Provider) Update(ctx context.Context, item Item, input string) error {
	s, err := p.session(item)
	if err != nil {
		return err
	}
	return s.UpdateNode(ctx, item.Node, input)
}

func (p *Provider) CopyValue(item Item) (string, error) {
	s, err := p.session(item)
	if err != nil {
		return "", err
	}
	return s.CopyValue(item.Node)
}

// Refresh updates every session.
func (p *Provider) Refresh(ctx context.Context) {
	p.mu.Lock()
	sessions := slices.Clone(p.sessions)
	p.mu.Unlock()

	for _, s := range sessions {
		s.UpdateData(ctx)
	}
}
