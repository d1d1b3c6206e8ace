package llm

import "context"

// MockClient replays scripted replies in order; used by orchestrator and
// channel tests.
type MockClient struct {
	Replies []*Reply
	Errs    []error
	Calls   [][]Turn
	Models  []string
}

func (m *MockClient) Complete(ctx context.Context, history []Turn, model string) (*Reply, error) {
	idx := len(m.Calls)
	m.Calls = append(m.Calls, history)
	m.Models = append(m.Models, model)

	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return nil, m.Errs[idx]
	}
	if idx < len(m.Replies) {
		return m.Replies[idx], nil
	}
	return &Reply{FinalResponse: "OK"}, nil
}
