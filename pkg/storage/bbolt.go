package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/raftchat/raftchatd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketUsers    = []byte("users")
	bucketMessages = []byte("messages")
	bucketLog      = []byte("raft_log")
	bucketMetadata = []byte("metadata")
)

const (
	keyCurrentTerm = "current_term"
	keyVotedFor    = "voted_for"
	keyCommitIndex = "commit_index"
	keyLastApplied = "last_applied"
)

// BoltStore implements Store on top of a single bbolt database file. Every
// exported method runs in its own bbolt transaction, which fsyncs before
// Update returns — the durability backbone spec.md §5 requires
// ("persist-before-send").
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the node's database file under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "raftchat.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketUsers, bucketMessages, bucketLog, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *BoltStore) CreateUser(username string, credentialHash []byte) (bool, error) {
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(username)) != nil {
			return nil
		}
		data, err := json.Marshal(&types.User{Username: username, CredentialHash: credentialHash})
		if err != nil {
			return err
		}
		if err := b.Put([]byte(username), data); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (s *BoltStore) AuthenticateUser(username string, credentialHash []byte) (bool, error) {
	ok := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get([]byte(username))
		if data == nil {
			return nil
		}
		var u types.User
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		ok = string(u.CredentialHash) == string(credentialHash)
		return nil
	})
	return ok, err
}

func (s *BoltStore) UserExists(username string) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		exists = b.Get([]byte(username)) != nil
		return nil
	})
	return exists, err
}

func (s *BoltStore) ListUsers(pattern string) ([]string, error) {
	var names []string
	needle := strings.ToLower(pattern)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			name := string(k)
			if needle == "" || strings.Contains(strings.ToLower(name), needle) {
				names = append(names, name)
			}
			return nil
		})
	})
	return names, err
}

func (s *BoltStore) DeleteUser(username string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		key := []byte(username)
		if users.Get(key) == nil {
			return nil
		}
		existed = true

		messages := tx.Bucket(bucketMessages)
		var toDelete [][]byte
		if err := messages.ForEach(func(k, v []byte) error {
			var m types.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.Sender == username || m.Recipient == username {
				// copy key; bbolt's ForEach keys are only valid during the callback
				kc := make([]byte, len(k))
				copy(kc, k)
				toDelete = append(toDelete, kc)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range toDelete {
			if err := messages.Delete(k); err != nil {
				return err
			}
		}

		return users.Delete(key)
	})
	return existed, err
}

// --- Messages ---

func itob(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func (s *BoltStore) AddMessage(id uint64, sender, recipient, content string, timestamp int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		msg := &types.Message{
			ID:        id,
			Sender:    sender,
			Recipient: recipient,
			Content:   content,
			Timestamp: timestamp,
			IsRead:    false,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

func (s *BoltStore) GetMessages(username string, includeRead bool) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		return b.ForEach(func(k, v []byte) error {
			var m types.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.Recipient != username {
				return nil
			}
			if !includeRead && m.IsRead {
				return nil
			}
			messages = append(messages, &m)
			return nil
		})
	})
	return messages, err
}

func (s *BoltStore) MarkRead(username string, ids []uint64) (bool, error) {
	matched := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		for _, id := range ids {
			key := itob(id)
			data := b.Get(key)
			if data == nil {
				continue
			}
			var m types.Message
			if err := json.Unmarshal(data, &m); err != nil {
				return err
			}
			if m.Recipient != username {
				continue
			}
			m.IsRead = true
			updated, err := json.Marshal(&m)
			if err != nil {
				return err
			}
			if err := b.Put(key, updated); err != nil {
				return err
			}
			matched = true
		}
		return nil
	})
	return matched, err
}

func (s *BoltStore) DeleteMessages(username string, ids []uint64) (bool, error) {
	matched := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		for _, id := range ids {
			key := itob(id)
			data := b.Get(key)
			if data == nil {
				continue
			}
			var m types.Message
			if err := json.Unmarshal(data, &m); err != nil {
				return err
			}
			if m.Recipient != username {
				continue
			}
			if err := b.Delete(key); err != nil {
				return err
			}
			matched = true
		}
		return nil
	})
	return matched, err
}

func (s *BoltStore) GetUnreadCount(username string) (int, error) {
	messages, err := s.GetMessages(username, false)
	if err != nil {
		return 0, err
	}
	return len(messages), nil
}

// --- Raft log ---

func (s *BoltStore) AppendAtNextIndex(term uint64, commandType types.CommandType, commandData []byte) (uint64, error) {
	var index uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		// The next index follows the highest stored key, so entries written
		// by OverwriteAtIndex (follower side) or removed by DeleteLogsFrom
		// are accounted for.
		index = 1
		if k, _ := b.Cursor().Last(); k != nil {
			index = binary.BigEndian.Uint64(k) + 1
		}
		entry := &types.LogEntry{Index: index, Term: term, CommandType: commandType, CommandData: commandData}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(itob(index), data)
	})
	return index, err
}

func (s *BoltStore) OverwriteAtIndex(index, term uint64, commandType types.CommandType, commandData []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		entry := &types.LogEntry{Index: index, Term: term, CommandType: commandType, CommandData: commandData}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(itob(index), data)
	})
}

func (s *BoltStore) GetLogEntry(index uint64) (*types.LogEntry, error) {
	var entry *types.LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		data := b.Get(itob(index))
		if data == nil {
			return nil
		}
		var e types.LogEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		entry = &e
		return nil
	})
	return entry, err
}

func (s *BoltStore) GetLogEntries(from, to uint64) ([]*types.LogEntry, error) {
	var entries []*types.LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		c := b.Cursor()
		for k, v := c.Seek(itob(from)); k != nil; k, v = c.Next() {
			index := binary.BigEndian.Uint64(k)
			if index > to {
				break
			}
			var e types.LogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, &e)
		}
		return nil
	})
	return entries, err
}

func (s *BoltStore) DeleteLogsFrom(index uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(itob(index)); k != nil; k, _ = c.Next() {
			kc := make([]byte, len(k))
			copy(kc, k)
			toDelete = append(toDelete, kc)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) LastLogIndexAndTerm() (uint64, uint64, error) {
	var index, term uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		k, v := b.Cursor().Last()
		if k == nil {
			return nil
		}
		var e types.LogEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		index = e.Index
		term = e.Term
		return nil
	})
	return index, term, err
}

// --- Metadata ---

func (s *BoltStore) GetMetadata(key string, def uint64) (uint64, error) {
	var value uint64 = def
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetadata)
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		value = binary.BigEndian.Uint64(data)
		return nil
	})
	return value, err
}

func (s *BoltStore) SaveMetadata(key string, value uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetadata)
		return b.Put([]byte(key), itob(value))
	})
}

func (s *BoltStore) CurrentTerm() (uint64, error) {
	return s.GetMetadata(keyCurrentTerm, 0)
}

func (s *BoltStore) SetCurrentTerm(term uint64) error {
	return s.SaveMetadata(keyCurrentTerm, term)
}

func (s *BoltStore) VotedFor() (string, error) {
	var votedFor string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetadata)
		data := b.Get([]byte(keyVotedFor))
		votedFor = string(data)
		return nil
	})
	return votedFor, err
}

func (s *BoltStore) SetVotedFor(candidateID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMetadata)
		return b.Put([]byte(keyVotedFor), []byte(candidateID))
	})
}

func (s *BoltStore) CommitIndex() (uint64, error) {
	return s.GetMetadata(keyCommitIndex, 0)
}

func (s *BoltStore) SetCommitIndex(index uint64) error {
	return s.SaveMetadata(keyCommitIndex, index)
}

func (s *BoltStore) LastApplied() (uint64, error) {
	return s.GetMetadata(keyLastApplied, 0)
}

func (s *BoltStore) SetLastApplied(index uint64) error {
	return s.SaveMetadata(keyLastApplied, index)
}
