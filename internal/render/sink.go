// Package render streams model output into a canvas note, growing the note
// as the text arrives.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/HendryAvila/chattree/internal/notegraph"
)

// Sizes of generated notes, in pixels.
const (
	LoadingHeight = 60
	MinHeight     = 400
	HeightStep    = 150
)

// ErrArtifactGone is returned when the note being written was removed from
// the canvas mid-stream.
var ErrArtifactGone = errors.New("render: target note no longer exists")

// FragmentSource yields text fragments and io.EOF after the last one.
// llm.Stream satisfies it.
type FragmentSource interface {
	Next() (string, error)
}

// Existence reports whether a node is still on the canvas.
type Existence interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Options configures a Sink. Zero values take the package defaults.
type Options struct {
	MinHeight int
	Step      int
	Estimate  func(text string, width int) int
	Logger    *zap.Logger
}

// Sink writes fragments into one note. A Sink is used for a single stream
// and is not safe for concurrent use.
type Sink struct {
	host   Existence
	node   notegraph.Node
	opts   Options
	log    *zap.Logger
	text   string
	height int

	started bool
	applied int
}

// NewSink returns a sink that writes into node.
func NewSink(host Existence, node notegraph.Node, opts Options) *Sink {
	if opts.MinHeight == 0 {
		opts.MinHeight = MinHeight
	}
	if opts.Step == 0 {
		opts.Step = HeightStep
	}
	if opts.Estimate == nil {
		opts.Estimate = EstimateHeight
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		host:   host,
		node:   node,
		opts:   opts,
		log:    log.With(zap.String("node", node.ID())),
		height: node.Geometry().Height,
	}
}

// Consume reads src until io.EOF, applying each fragment. It stops with an
// error if src fails, ctx is canceled, or the note disappears.
func (s *Sink) Consume(ctx context.Context, src FragmentSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frag, err := src.Next()
		if err == io.EOF {
			s.log.Debug("stream finished", zap.Int("fragments", s.applied))
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Write(ctx, frag); err != nil {
			return err
		}
	}
}

// Write applies one fragment. Empty fragments are ignored.
func (s *Sink) Write(ctx context.Context, frag string) error {
	if frag == "" {
		return nil
	}

	ok, err := s.host.Exists(ctx, s.node.ID())
	if err != nil {
		return fmt.Errorf("render: check note: %w", err)
	}
	if !ok {
		return ErrArtifactGone
	}

	var u notegraph.Update
	if !s.started {
		s.started = true
		s.text = frag
		s.height = s.opts.MinHeight
		u.Height = notegraph.Int(s.height)
	} else {
		// Sized from the text already shown, as the editor measures it.
		if s.opts.Estimate(s.text, s.node.Geometry().Width) > s.height {
			s.height += s.opts.Step
			u.Height = notegraph.Int(s.height)
		}
		s.text += frag
	}
	u.Text = notegraph.Str(s.text)

	if err := s.node.Apply(ctx, u); err != nil {
		return fmt.Errorf("render: update note: %w", err)
	}
	s.applied++
	return nil
}

// Text returns everything written so far.
func (s *Sink) Text() string { return s.text }

// Fragments returns the number of mutations applied.
func (s *Sink) Fragments() int { return s.applied }
