// Package statemachine applies committed log entries to durable chat state.
// It is the deterministic State Machine of spec.md §4.2: every apply
// handler is a pure function of (store, command) — no wall-clock reads, no
// randomness — so every replica that applies the same committed entry
// reaches the same state (spec.md §3, §9).
package statemachine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/raftchat/raftchatd/pkg/log"
	"github.com/raftchat/raftchatd/pkg/storage"
	"github.com/raftchat/raftchatd/pkg/types"
)

// Result is what applying a command produced. Which fields are meaningful
// depends on the command type the caller submitted.
type Result struct {
	Err       error
	Created   bool   // CREATE_ACCOUNT, DELETE_ACCOUNT, MARK_READ, DELETE_MESSAGES: did it change anything
	MessageID uint64 // SEND_MESSAGE: the assigned message id, meaningful iff Success
	Success   bool   // SEND_MESSAGE: false if the recipient no longer existed at apply time
}

// StateMachine applies committed commands to a storage.Store. It holds no
// state of its own beyond the store handle; callers serialize apply calls
// (the consensus engine's applier goroutine applies entries strictly in
// order, one at a time).
type StateMachine struct {
	mu    sync.Mutex
	store storage.Store
}

// New constructs a StateMachine backed by store.
func New(store storage.Store) *StateMachine {
	return &StateMachine{store: store}
}

// Encode serializes a command's payload into the bytes stored in a
// types.LogEntry.CommandData field. The command type is not encoded; it is
// carried separately in types.LogEntry.CommandType.
func Encode(payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command payload: %w", err)
	}
	return data, nil
}

// Apply applies a single committed log entry to the store. It is called
// exactly once per committed index, in index order, by the consensus
// engine's applier loop (spec.md §4.3.6).
func (sm *StateMachine) Apply(entry *types.LogEntry) Result {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	l := log.WithComponent("statemachine")

	switch entry.CommandType {
	case types.CreateAccountCmd:
		var p types.CreateAccountPayload
		if err := json.Unmarshal(entry.CommandData, &p); err != nil {
			return Result{Err: fmt.Errorf("failed to decode CREATE_ACCOUNT payload: %w", err)}
		}
		created, err := sm.store.CreateUser(p.Username, p.CredentialHash)
		if err != nil {
			return Result{Err: fmt.Errorf("failed to apply CREATE_ACCOUNT: %w", err)}
		}
		l.Debug().Uint64("index", entry.Index).Str("username", p.Username).Bool("created", created).Msg("applied CREATE_ACCOUNT")
		return Result{Created: created}

	case types.DeleteAccountCmd:
		var p types.DeleteAccountPayload
		if err := json.Unmarshal(entry.CommandData, &p); err != nil {
			return Result{Err: fmt.Errorf("failed to decode DELETE_ACCOUNT payload: %w", err)}
		}
		existed, err := sm.store.DeleteUser(p.Username)
		if err != nil {
			return Result{Err: fmt.Errorf("failed to apply DELETE_ACCOUNT: %w", err)}
		}
		l.Debug().Uint64("index", entry.Index).Str("username", p.Username).Bool("existed", existed).Msg("applied DELETE_ACCOUNT")
		return Result{Created: existed}

	case types.SendMessageCmd:
		var p types.SendMessagePayload
		if err := json.Unmarshal(entry.CommandData, &p); err != nil {
			return Result{Err: fmt.Errorf("failed to decode SEND_MESSAGE payload: %w", err)}
		}
		// Recipient existence is re-verified here, inside the apply
		// transaction, rather than trusted from submission time — the
		// recipient may have been deleted by an entry committed between
		// submission and apply (spec.md §4.2). If gone, the apply still
		// advances lastApplied normally (determinism, spec.md §4.2/§9); it
		// just reports success=false instead of persisting the message.
		exists, err := sm.store.UserExists(p.Recipient)
		if err != nil {
			return Result{Err: fmt.Errorf("failed to verify SEND_MESSAGE recipient: %w", err)}
		}
		if !exists {
			l.Debug().Uint64("index", entry.Index).Str("recipient", p.Recipient).Msg("SEND_MESSAGE recipient does not exist; not persisting")
			return Result{Success: false}
		}

		// The message id is the committing entry's own log index (spec.md §9
		// Open Question, resolved in DESIGN.md): every replica applies this
		// entry at the same index, so every replica assigns the same id
		// without any separate autoincrement state to keep in sync.
		id := entry.Index
		if err := sm.store.AddMessage(id, p.Sender, p.Recipient, p.Content, p.Timestamp); err != nil {
			return Result{Err: fmt.Errorf("failed to apply SEND_MESSAGE: %w", err)}
		}
		l.Debug().Uint64("index", entry.Index).Uint64("message_id", id).Str("sender", p.Sender).Str("recipient", p.Recipient).Msg("applied SEND_MESSAGE")
		return Result{MessageID: id, Success: true}

	case types.MarkReadCmd:
		var p types.MarkReadPayload
		if err := json.Unmarshal(entry.CommandData, &p); err != nil {
			return Result{Err: fmt.Errorf("failed to decode MARK_READ payload: %w", err)}
		}
		matched, err := sm.store.MarkRead(p.Username, p.MessageIDs)
		if err != nil {
			return Result{Err: fmt.Errorf("failed to apply MARK_READ: %w", err)}
		}
		l.Debug().Uint64("index", entry.Index).Str("username", p.Username).Int("count", len(p.MessageIDs)).Msg("applied MARK_READ")
		return Result{Created: matched}

	case types.DeleteMessagesCmd:
		var p types.DeleteMessagesPayload
		if err := json.Unmarshal(entry.CommandData, &p); err != nil {
			return Result{Err: fmt.Errorf("failed to decode DELETE_MESSAGES payload: %w", err)}
		}
		matched, err := sm.store.DeleteMessages(p.Username, p.MessageIDs)
		if err != nil {
			return Result{Err: fmt.Errorf("failed to apply DELETE_MESSAGES: %w", err)}
		}
		l.Debug().Uint64("index", entry.Index).Str("username", p.Username).Int("count", len(p.MessageIDs)).Msg("applied DELETE_MESSAGES")
		return Result{Created: matched}

	default:
		return Result{Err: fmt.Errorf("unknown command type %q at index %d", entry.CommandType, entry.Index)}
	}
}
