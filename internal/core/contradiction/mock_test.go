package contradiction

import (
	"context"
	"time"

	"github.com/noesislabs/noesis/internal/llm"
	"github.com/noesislabs/noesis/internal/resilience"
)

// queueReply is one scripted model response: either text or an error.
type queueReply struct {
	Text string
	Err  error
}

// queueLLM replays scripted replies in order and records every request it
// received. When the queue runs dry it returns an empty response.
type queueLLM struct {
	Queue    []queueReply
	Requests []llm.Request
}

func (m *queueLLM) GenerateJSON(ctx context.Context, req llm.Request) (string, error) {
	m.Requests = append(m.Requests, req)
	if len(m.Queue) == 0 {
		return "", nil
	}
	next := m.Queue[0]
	m.Queue = m.Queue[1:]
	return next.Text, next.Err
}

func (m *queueLLM) Close() error { return nil }

func fastPolicy() resilience.Policy {
	return resilience.Policy{
		Timeout:    time.Second,
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
	}
}
