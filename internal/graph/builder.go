package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/telesight/cdr-intel/internal/cdr"
	"github.com/telesight/cdr-intel/internal/config"
	"github.com/telesight/cdr-intel/internal/normalize"
	"github.com/telesight/cdr-intel/internal/resolver"
)

// Node types in a link diagram.
const (
	NodeRoot    = "root"
	NodeContact = "contact"
)

// Node is one distinct number encountered while building the diagram.
type Node struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Link is the aggregated interaction volume of one ordered (caller, callee)
// pair. Pairs with zero observed volume never appear.
type Link struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	CallCount int    `json:"callCount"`
	SmsCount  int    `json:"smsCount"`
}

// Diagram is the node/edge view of call and SMS traffic around the root
// numbers.
type Diagram struct {
	Nodes []*Node `json:"nodes"`
	Links []*Link `json:"links"`
	Root  string  `json:"root,omitempty"`
}

// ErrNoLinks signals a valid build that produced no edges at all. Callers
// must surface it distinctly from an error and from "not yet searched".
var ErrNoLinks = errors.New("no links found")

// ValidationError reports root numbers rejected by the prefix allow-list.
// The rejected tokens are carried so the caller can echo them back.
type ValidationError struct {
	Rejected []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("numbers outside the allowed prefixes: %s", strings.Join(e.Rejected, ", "))
}

// Builder assembles link diagrams from raw CDR traffic.
type Builder struct {
	source cdr.Source
	cfg    config.DiagramConfig
	logger *slog.Logger
}

func NewBuilder(source cdr.Source, cfg config.DiagramConfig, logger *slog.Logger) *Builder {
	return &Builder{source: source, cfg: cfg, logger: logger}
}

// Build fetches the traffic of every root number over the date range and
// aggregates it into one diagram. Every root must pass the prefix
// allow-list; a single offender rejects the whole request so the caller
// sees exactly which inputs were refused.
func (b *Builder) Build(ctx context.Context, rootNumbers []string, dateRange cdr.DateRange) (*Diagram, error) {
	if len(rootNumbers) == 0 {
		return nil, fmt.Errorf("at least one root number is required")
	}
	if max := b.cfg.MaxRootNumbers; max > 0 && len(rootNumbers) > max {
		return nil, fmt.Errorf("too many root numbers: %d exceeds the limit of %d", len(rootNumbers), max)
	}

	var rejected []string
	roots := make([]string, 0, len(rootNumbers))
	for _, number := range rootNumbers {
		key := resolver.SubscriberKey(number)
		if key == "" || !b.allowedPrefix(key) {
			rejected = append(rejected, number)
			continue
		}
		roots = append(roots, key)
	}
	if len(rejected) > 0 {
		return nil, &ValidationError{Rejected: rejected}
	}

	rootSet := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		rootSet[root] = struct{}{}
	}

	nodes := make(map[string]*Node)
	links := make(map[[2]string]*Link)
	var fetched int

	for _, root := range roots {
		rows, err := b.source.Fetch(ctx, cdr.Query{
			IdentifierType: cdr.IdentifierNumber,
			Identifier:     root,
			DateRange:      dateRange,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cdr.ErrUpstream, err)
		}
		fetched += len(rows)

		for _, row := range rows {
			point, _ := normalize.NormalizePoint(row, root)
			b.accumulate(nodes, links, rootSet, point, dateRange)
		}
	}

	if len(links) == 0 {
		return nil, ErrNoLinks
	}

	diagram := &Diagram{
		Nodes: sortedNodes(nodes),
		Links: sortedLinks(links),
	}
	if len(roots) == 1 {
		diagram.Root = roots[0]
	}

	b.logger.Info("Link diagram built",
		"roots", len(roots),
		"records", fetched,
		"nodes", len(diagram.Nodes),
		"links", len(diagram.Links))

	return diagram, nil
}

// accumulate registers one interaction. The caller/callee pair is ordered,
// so A->B and B->A stay distinct edges.
func (b *Builder) accumulate(nodes map[string]*Node, links map[[2]string]*Link, roots map[string]struct{}, point *normalize.CdrPoint, dateRange cdr.DateRange) {
	caller := resolver.SubscriberKey(point.Caller)
	callee := resolver.SubscriberKey(point.Callee)
	if caller == "" || callee == "" || caller == callee {
		return
	}
	if !dateRange.IsZero() {
		if ts, ok := normalize.ParseEventTime(point.CallDate, point.StartTime); ok && !dateRange.Contains(ts) {
			return
		}
	}

	ensureNode(nodes, roots, caller)
	ensureNode(nodes, roots, callee)

	key := [2]string{caller, callee}
	link, ok := links[key]
	if !ok {
		link = &Link{Source: caller, Target: callee}
		links[key] = link
	}
	switch point.Type {
	case normalize.TypeSMS:
		link.SmsCount++
	default:
		link.CallCount++
	}
}

func (b *Builder) allowedPrefix(subscriberKey string) bool {
	for _, prefix := range b.cfg.AllowedPrefixes {
		if strings.HasPrefix(subscriberKey, prefix) {
			return true
		}
	}
	return false
}

func ensureNode(nodes map[string]*Node, roots map[string]struct{}, id string) {
	if _, ok := nodes[id]; ok {
		return
	}
	nodeType := NodeContact
	if _, isRoot := roots[id]; isRoot {
		nodeType = NodeRoot
	}
	nodes[id] = &Node{ID: id, Type: nodeType}
}

func sortedNodes(nodes map[string]*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type == NodeRoot
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedLinks(links map[[2]string]*Link) []*Link {
	out := make([]*Link, 0, len(links))
	for _, link := range links {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}
