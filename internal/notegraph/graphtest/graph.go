// Package graphtest provides an in-memory notegraph.Host for tests.
package graphtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/HendryAvila/chattree/internal/notegraph"
)

// Graph is an in-memory host. It records saves, frames and mutations so
// tests can assert on side effects.
type Graph struct {
	mu        sync.Mutex
	nodes     map[string]*Node
	order     []string
	selection []string
	seq       int

	Saves    int
	Frames   int
	Removed  []string
	Created  []string
	ApplyErr error
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: map[string]*Node{}}
}

// Node is a node of Graph.
type Node struct {
	g       *Graph
	id      string
	text    string
	role    notegraph.Role
	color   string
	geo     notegraph.Geometry
	parents []string

	Mutations int
	History   []string
}

// Add inserts a node with the given text. parents are connected in order,
// so the last one is the most recent edge.
func (g *Graph) Add(id, text string, parents ...string) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := &Node{g: g, id: id, text: text, role: notegraph.RoleUser, geo: notegraph.Geometry{Width: 400, Height: 100}}
	n.parents = append(n.parents, parents...)
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n
}

// Chain adds nodes so that texts[0] is the root and texts[len-1] is the
// leaf. It returns the leaf. IDs are "n0".."nK".
func (g *Graph) Chain(texts ...string) *Node {
	var last *Node
	for i, t := range texts {
		id := fmt.Sprintf("n%d", i)
		if last == nil {
			last = g.Add(id, t)
			continue
		}
		last = g.Add(id, t, last.id)
	}
	return last
}

// Connect adds an edge from child to parent.
func (g *Graph) Connect(child, parent string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.nodes[child]
	n.parents = append(n.parents, parent)
}

// Get returns the node with id, or nil.
func (g *Graph) Get(id string) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[id]
}

// Select sets the current selection.
func (g *Graph) Select(ids ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selection = ids
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

func (g *Graph) Selection(ctx context.Context) ([]notegraph.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]notegraph.Node, 0, len(g.selection))
	for _, id := range g.selection {
		if n, ok := g.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (g *Graph) CreateNode(ctx context.Context, parent notegraph.Node, nn notegraph.NewNode) (notegraph.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.nodes[parent.ID()]
	if !ok {
		return nil, fmt.Errorf("graphtest: parent %s not found", parent.ID())
	}
	g.seq++
	id := fmt.Sprintf("gen%d", g.seq)
	role := nn.Role
	if role == "" {
		role = notegraph.RoleUser
	}
	n := &Node{
		g:     g,
		id:    id,
		text:  nn.Text,
		role:  role,
		color: nn.Color,
		geo: notegraph.Geometry{
			X:      p.geo.X,
			Y:      p.geo.Y + p.geo.Height + 40,
			Width:  nn.Width,
			Height: nn.Height,
		},
		parents: []string{p.id},
	}
	if n.geo.Width == 0 {
		n.geo.Width = p.geo.Width
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	g.Created = append(g.Created, id)
	return n, nil
}

func (g *Graph) RemoveNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, id)
	g.Removed = append(g.Removed, id)
	return nil
}

func (g *Graph) Exists(ctx context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.nodes[id]
	return ok, nil
}

func (g *Graph) RequestSave(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Saves++
	return nil
}

func (g *Graph) RequestFrame(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Frames++
	return nil
}

// SetRole tags n with role.
func (n *Node) SetRole(r notegraph.Role) *Node {
	n.role = r
	return n
}

// SetWidth changes n's width.
func (n *Node) SetWidth(w int) *Node {
	n.geo.Width = w
	return n
}

// Color returns the color n was created with.
func (n *Node) Color() string { return n.color }

func (n *Node) ID() string                   { return n.id }
func (n *Node) Text() string                 { return n.text }
func (n *Node) Role() notegraph.Role         { return n.role }
func (n *Node) Geometry() notegraph.Geometry { return n.geo }

func (n *Node) Parents(ctx context.Context) ([]notegraph.Node, error) {
	n.g.mu.Lock()
	defer n.g.mu.Unlock()
	out := make([]notegraph.Node, 0, len(n.parents))
	for _, id := range n.parents {
		if p, ok := n.g.nodes[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (n *Node) Apply(ctx context.Context, u notegraph.Update) error {
	n.g.mu.Lock()
	defer n.g.mu.Unlock()
	if n.g.ApplyErr != nil {
		return n.g.ApplyErr
	}
	if u.Text != nil {
		n.text = *u.Text
	}
	if u.Height != nil {
		n.geo.Height = *u.Height
	}
	n.Mutations++
	n.History = append(n.History, n.text)
	return nil
}
