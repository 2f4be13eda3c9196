package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"omibyte.io/regview/treeview"
)

type printer struct {
	w        io.Writer
	provider *treeview.Provider

	// expansions records peripherals expanded while printing with all
	expansions *expansions

	// all descends into collapsed rows as well
	all bool

	// width truncates rows when positive
	width int
}

func (p *printer) print(ctx context.Context, items []treeview.Item, depth int) error {
	for _, item := range items {
		if err := p.row(item, depth); err != nil {
			return err
		}

		switch {
		case item.Collapsible == treeview.Expanded:
		case item.Collapsible == treeview.Collapsed && p.all:
			if item.ContextValue == "peripheral" || item.ContextValue == "peripheral.pinned" {
				if err := p.expansions.expand(ctx, item.Node); err != nil {
					return err
				}
			}
		default:
			continue
		}

		if err := p.print(ctx, p.provider.Children(item), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) row(item treeview.Item, depth int) error {
	marker := "  "
	switch item.Collapsible {
	case treeview.Collapsed:
		marker = "+ "
	case treeview.Expanded:
		marker = "- "
	}
	if strings.HasSuffix(item.ContextValue, ".pinned") {
		marker = "* "
	}

	line := strings.Repeat("  ", depth) + marker + item.Label
	if len(item.Description) > 0 {
		line += "  " + item.Description
	}
	if p.width > 0 && len(line) > p.width {
		line = line[:p.width]
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}
