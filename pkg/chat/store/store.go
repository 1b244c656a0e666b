package store

import (
	"errors"
	"sync"

	"docassist-be/pkg/chat/message"
)

// ErrDuplicateID is returned when a mutation would put two messages with the same id in the store
var ErrDuplicateID = errors.New("message id already present in store")

// Store is the ordered message log of one session.
// Every mutation is applied atomically; readers only ever see whole states.
type Store struct {
	mu   sync.RWMutex
	msgs []message.Message
	ids  map[message.ID]struct{}
}

// New creates a store seeded with the given messages
func New(seed ...message.Message) *Store {
	s := &Store{ids: make(map[message.ID]struct{})}
	for _, m := range seed {
		// duplicates in the seed are dropped
		_ = s.Append(m)
	}
	return s
}

// Append adds msgs at the end of the log, all or none
func (s *Store) Append(msgs ...message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[message.ID]struct{}, len(msgs))
	for _, m := range msgs {
		id := m.MessageID()
		if _, dup := s.ids[id]; dup {
			return ErrDuplicateID
		}
		if _, dup := batch[id]; dup {
			return ErrDuplicateID
		}
		batch[id] = struct{}{}
	}

	s.msgs = append(s.msgs, msgs...)
	for id := range batch {
		s.ids[id] = struct{}{}
	}
	return nil
}

// ReplaceAll swaps the whole sequence. The store is left untouched when msgs repeats an id.
func (s *Store) ReplaceAll(msgs []message.Message) error {
	ids := make(map[message.ID]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := ids[m.MessageID()]; dup {
			return ErrDuplicateID
		}
		ids[m.MessageID()] = struct{}{}
	}

	next := make([]message.Message, len(msgs))
	copy(next, msgs)

	s.mu.Lock()
	s.msgs = next
	s.ids = ids
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current ordered sequence
func (s *Store) Snapshot() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]message.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of messages held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
