// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/HendryAvila/chattree/internal/llm"
)

// Provider replays scripted responses and records every request.
type Provider struct {
	mu sync.Mutex

	// Completions are returned by Complete in order.
	Completions []*llm.Response
	// Fragments are yielded by every Stream call.
	Fragments []string
	// StreamErr, when set, is returned by Next after the fragments.
	StreamErr error
	// CompleteErr and OpenErr fail the calls themselves.
	CompleteErr error
	OpenErr     error
	// OnFragment runs before each fragment is returned.
	OnFragment func(i int)

	Completed []llm.Request
	Streamed  []llm.Request
	Closed    int
}

func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Completed = append(p.Completed, cloneRequest(req))
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.Completions) == 0 {
		return nil, errors.New("llmtest: no scripted completion")
	}
	resp := p.Completions[0]
	p.Completions = p.Completions[1:]
	return resp, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Streamed = append(p.Streamed, cloneRequest(req))
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	return &stream{p: p, frags: append([]string(nil), p.Fragments...)}, nil
}

// Calls returns the number of requests of either kind.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Completed) + len(p.Streamed)
}

type stream struct {
	p     *Provider
	frags []string
	i     int
}

func (s *stream) Next() (string, error) {
	if s.i < len(s.frags) {
		if s.p.OnFragment != nil {
			s.p.OnFragment(s.i)
		}
		f := s.frags[s.i]
		s.i++
		return f, nil
	}
	if s.p.StreamErr != nil {
		return "", s.p.StreamErr
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.Closed++
	return nil
}

func cloneRequest(req llm.Request) llm.Request {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	return req
}
