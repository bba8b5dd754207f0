package api

import "sync"

// DefaultStoreCapacity bounds how many messages a MessageStore keeps.
const DefaultStoreCapacity = 256

// MessageStore keeps the most recent generated messages for lookup by id.
// Once full, the oldest entry is evicted.
type MessageStore struct {
	mu       sync.Mutex
	capacity int
	messages map[string]CommitMessage
	order    []string
}

func NewMessageStore(capacity int) *MessageStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &MessageStore{
		capacity: capacity,
		messages: make(map[string]CommitMessage),
	}
}

func (s *MessageStore) Save(msg CommitMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; !ok {
		s.order = append(s.order, msg.ID)
	}
	s.messages[msg.ID] = msg
	for len(s.order) > s.capacity {
		delete(s.messages, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *MessageStore) Get(id string) (CommitMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	return msg, ok
}

func (s *MessageStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return false
	}
	delete(s.messages, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
