package bus

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Bus. Delivery is synchronous on the publishing
// goroutine, in subscription order.
type Memory struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]memSub
}

type memSub struct {
	pattern string
	h       Handler
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[int]memSub)}
}

func (m *Memory) Publish(address string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Ints(ids)

	for _, id := range ids {
		m.mu.Lock()
		s, ok := m.subs[id]
		m.mu.Unlock()
		if ok && match(s.pattern, address) {
			s.h.Handle(b, address)
		}
	}
	return nil
}

func (m *Memory) Subscribe(address string, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.subs[m.nextID] = memSub{pattern: address, h: h}
	return memSubscription{m: m, id: m.nextID}, nil
}

func (m *Memory) Close() {
	m.mu.Lock()
	m.subs = make(map[int]memSub)
	m.mu.Unlock()
}

type memSubscription struct {
	m  *Memory
	id int
}

func (s memSubscription) Unsubscribe() error {
	s.m.mu.Lock()
	delete(s.m.subs, s.id)
	s.m.mu.Unlock()
	return nil
}

// match applies NATS subject rules: '*' matches one token, a trailing '>'
// matches one or more.
func match(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
