package consensus

import (
	"context"
	"fmt"
	"sync"
)

// fakeTransport wires a fixed set of in-process engines together, routing
// RPCs by peer id directly to the target engine's handlers. It supports
// dropping traffic to/from a peer to simulate partitions, mirroring the
// "inject symmetric packet loss" scenario in spec.md §8.
type fakeTransport struct {
	mu      sync.Mutex
	engines map[string]*Engine
	dropped map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		engines: make(map[string]*Engine),
		dropped: make(map[string]bool),
	}
}

func (t *fakeTransport) register(id string, e *Engine) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.engines[id] = e
}

// unregister removes id from the routing table entirely, simulating a
// killed process rather than a network partition: every RPC addressed to
// id fails as "no such peer" regardless of setDropped, and id's own
// outbound calls (made before its background goroutines are stopped) are
// unaffected since those are routed by the callee's id, not the caller's.
func (t *fakeTransport) unregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.engines, id)
}

func (t *fakeTransport) setDropped(id string, dropped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped[id] = dropped
}

func (t *fakeTransport) isDropped(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped[id]
}

func (t *fakeTransport) engine(id string) (*Engine, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.engines[id]
	if !ok {
		return nil, fmt.Errorf("no such peer: %s", id)
	}
	return e, nil
}

func (t *fakeTransport) SendRequestVote(ctx context.Context, peerID string, args *RequestVoteArgs) (*RequestVoteReply, error) {
	if t.isDropped(peerID) {
		return nil, fmt.Errorf("peer %s unreachable (simulated partition)", peerID)
	}
	e, err := t.engine(peerID)
	if err != nil {
		return nil, err
	}
	return e.HandleRequestVote(args)
}

func (t *fakeTransport) SendAppendEntries(ctx context.Context, peerID string, args *AppendEntriesArgs) (*AppendEntriesReply, error) {
	if t.isDropped(peerID) {
		return nil, fmt.Errorf("peer %s unreachable (simulated partition)", peerID)
	}
	e, err := t.engine(peerID)
	if err != nil {
		return nil, err
	}
	return e.HandleAppendEntries(args)
}

func (t *fakeTransport) SendStatus(ctx context.Context, peerID string) (*StatusReply, error) {
	if t.isDropped(peerID) {
		return nil, fmt.Errorf("peer %s unreachable (simulated partition)", peerID)
	}
	e, err := t.engine(peerID)
	if err != nil {
		return nil, err
	}
	status := e.Status()
	return &status, nil
}
