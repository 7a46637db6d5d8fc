// Package notegraph defines the note graph that generation reads from and
// writes into, and the upward walk over it.
//
// The graph itself is owned by a host (an editor canvas, the SQLite store in
// internal/canvas, a test fake). Nothing in this package knows how nodes are
// persisted; it only needs the accessors below.
package notegraph

import "context"

// Role tags who authored a note in the conversation it takes part in.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Geometry is a node's placement on the canvas, in pixels.
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Update is a single mutation of a node. A nil field is left unchanged.
type Update struct {
	Text   *string
	Height *int
}

// Node is a note on the canvas.
type Node interface {
	ID() string
	Text() string
	// Role is RoleAssistant only when the node carries the assistant tag.
	Role() Role
	Geometry() Geometry
	// Parents returns the nodes this node points to, ordered by the time
	// the edge was connected, oldest first.
	Parents(ctx context.Context) ([]Node, error)
	// Apply performs one mutation of the node.
	Apply(ctx context.Context, u Update) error
}

// NewNode describes a node to create as the child of an existing one.
type NewNode struct {
	Text   string
	Role   Role
	Color  string
	Width  int
	Height int
}

// Host is the editor surface that owns the graph.
type Host interface {
	Selection(ctx context.Context) ([]Node, error)
	// CreateNode creates a node below parent and connects it with an edge
	// pointing from the new node to parent.
	CreateNode(ctx context.Context, parent Node, n NewNode) (Node, error)
	RemoveNode(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	RequestSave(ctx context.Context) error
	RequestFrame(ctx context.Context) error
}

// Command is a user-invocable action offered to a host menu.
type Command struct {
	ID          string
	Name        string
	Description string
	Hotkey      string
	Run         func(ctx context.Context, selection []Node) (string, error)
}

// MenuExtender is implemented by hosts that can surface extra commands,
// for example as buttons on a selection menu or as MCP tools.
type MenuExtender interface {
	Extend(cmds ...Command) error
}

// Str and Int build Update fields.
func Str(s string) *string { return &s }
func Int(i int) *int       { return &i }
