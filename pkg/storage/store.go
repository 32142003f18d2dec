// Package storage owns all durable state for a node: the chat application
// tables (users, messages), the Raft log, and the Raft metadata
// (currentTerm, votedFor, commitIndex, lastApplied). It is the Persistence
// Store of spec.md §4.1: every write is fsync-durable before it returns, and
// every multi-statement operation (e.g. DeleteUser's cascade) runs inside a
// single transaction.
package storage

import "github.com/raftchat/raftchatd/pkg/types"

// Store is the Persistence Store interface consumed by the state machine
// (pkg/statemachine) and the consensus engine (pkg/consensus).
type Store interface {
	// --- Chat application state ---

	// CreateUser returns true iff no user of that name existed.
	CreateUser(username string, credentialHash []byte) (bool, error)

	// UserExists reports whether username has an account. Used inside the
	// SEND_MESSAGE apply path to re-verify the recipient still exists at
	// apply time, not just at submission time (spec.md §4.2).
	UserExists(username string) (bool, error)

	// AuthenticateUser is read-only; it does not enforce constant-time
	// comparison (that is the caller's concern, per spec.md §4.1).
	AuthenticateUser(username string, credentialHash []byte) (bool, error)

	// ListUsers returns usernames matching pattern as a case-insensitive
	// substring match (spec.md §9 Open Question, resolved in DESIGN.md). An
	// empty pattern matches every user.
	ListUsers(pattern string) ([]string, error)

	// DeleteUser atomically deletes every message where the user is sender
	// or recipient, then the user row. Returns false if the user did not
	// exist.
	DeleteUser(username string) (bool, error)

	// AddMessage stores a message under the given id. The id
	// is supplied by the caller (the state machine derives it from the
	// committing log entry's index — spec.md §9 Open Question, resolved in
	// DESIGN.md) rather than being assigned by this layer, so that every
	// replica's apply produces the identical id.
	AddMessage(id uint64, sender, recipient, content string, timestamp int64) error

	// GetMessages returns all messages addressed to username, optionally
	// filtered to unread only.
	GetMessages(username string, includeRead bool) ([]*types.Message, error)

	// MarkRead sets is_read=true for each (id, recipient=username) pair that
	// exists; ids that do not match are silently ignored. Returns true iff
	// at least one id matched.
	MarkRead(username string, ids []uint64) (bool, error)

	// DeleteMessages deletes each (id, recipient=username) pair that
	// exists; ids that do not match are silently ignored. Returns true iff
	// at least one id matched.
	DeleteMessages(username string, ids []uint64) (bool, error)

	// GetUnreadCount returns the number of unread messages for username.
	GetUnreadCount(username string) (int, error)

	// --- Raft log ---

	// AppendAtNextIndex allocates the next log index (leader side: one past
	// the highest index currently in the log) and stores the entry there.
	AppendAtNextIndex(term uint64, commandType types.CommandType, commandData []byte) (uint64, error)

	// OverwriteAtIndex stores an entry at an explicit index (follower side,
	// after a consistency-check-driven truncation). It inserts if no entry
	// exists there, or overwrites if one does.
	OverwriteAtIndex(index, term uint64, commandType types.CommandType, commandData []byte) error

	// GetLogEntry returns the entry at index, or (nil, nil) if absent.
	GetLogEntry(index uint64) (*types.LogEntry, error)

	// GetLogEntries returns entries in the inclusive range [from, to].
	GetLogEntries(from, to uint64) ([]*types.LogEntry, error)

	// DeleteLogsFrom removes every entry with index >= index.
	DeleteLogsFrom(index uint64) error

	// LastLogIndexAndTerm returns (0, 0) when the log is empty.
	LastLogIndexAndTerm() (index, term uint64, err error)

	// --- Raft metadata ---

	GetMetadata(key string, def uint64) (uint64, error)
	SaveMetadata(key string, value uint64) error

	CurrentTerm() (uint64, error)
	SetCurrentTerm(term uint64) error

	VotedFor() (string, error)
	SetVotedFor(candidateID string) error

	CommitIndex() (uint64, error)
	SetCommitIndex(index uint64) error

	LastApplied() (uint64, error)
	SetLastApplied(index uint64) error

	Close() error
}
