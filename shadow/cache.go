// Package shadow keeps a bounded copy of recently observed messages per
// conversation so edits and deletions can be compared against what was seen.
package shadow

import (
	"container/list"
	"sync"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
)

const DefaultMaxPerConversation = 500

type ConversationKey struct {
	OwnerID        int64
	ConversationID int64
}

type ObservedMessage struct {
	ConversationID int64
	MessageID      int64
	SenderID       int64
	SenderName     string
	Text           string
	Media          events.Media
	RecoveredPath  string
	ObservedAt     time.Time
}

// FromEvent snapshots m as observed at the given time.
func FromEvent(m events.Message, observedAt time.Time) ObservedMessage {
	return ObservedMessage{
		ConversationID: m.ConversationID,
		MessageID:      m.MessageID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Text:           m.Text,
		Media:          m.Media,
		ObservedAt:     observedAt.UTC(),
	}
}

type Stats struct {
	Partitions int
	Messages   int
}

type partition struct {
	order *list.List
	byID  map[int64]*list.Element
}

// Cache holds at most max messages per conversation, evicting the oldest
// insertion first. Reads never refresh recency.
type Cache struct {
	mu    sync.Mutex
	max   int
	parts map[ConversationKey]*partition
}

func New(maxPerConversation int) *Cache {
	if maxPerConversation <= 0 {
		maxPerConversation = DefaultMaxPerConversation
	}
	return &Cache{
		max:   maxPerConversation,
		parts: make(map[ConversationKey]*partition),
	}
}

func (c *Cache) MaxPerConversation() int {
	return c.max
}

// Record inserts msg under key. An existing entry with the same message id is
// replaced in place and keeps its insertion position.
func (c *Cache) Record(key ConversationKey, msg ObservedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.parts[key]
	if p == nil {
		p = &partition{order: list.New(), byID: make(map[int64]*list.Element)}
		c.parts[key] = p
	}
	if el, ok := p.byID[msg.MessageID]; ok {
		el.Value = msg
		return
	}
	p.byID[msg.MessageID] = p.order.PushBack(msg)
	for p.order.Len() > c.max {
		oldest := p.order.Front()
		p.order.Remove(oldest)
		delete(p.byID, oldest.Value.(ObservedMessage).MessageID)
	}
}

func (c *Cache) Lookup(key ConversationKey, messageID int64) (ObservedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.parts[key]
	if p == nil {
		return ObservedMessage{}, false
	}
	el, ok := p.byID[messageID]
	if !ok {
		return ObservedMessage{}, false
	}
	return el.Value.(ObservedMessage), true
}

// Update applies fn to the cached entry. A missing entry is left alone and
// Update reports false.
func (c *Cache) Update(key ConversationKey, messageID int64, fn func(*ObservedMessage)) bool {
	if fn == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.parts[key]
	if p == nil {
		return false
	}
	el, ok := p.byID[messageID]
	if !ok {
		return false
	}
	msg := el.Value.(ObservedMessage)
	fn(&msg)
	msg.MessageID = messageID
	el.Value = msg
	return true
}

func (c *Cache) Len(key ConversationKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.parts[key]; p != nil {
		return p.order.Len()
	}
	return 0
}

// IDs returns the cached message ids of key, oldest first.
func (c *Cache) IDs(key ConversationKey) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.parts[key]
	if p == nil {
		return nil
	}
	out := make([]int64, 0, p.order.Len())
	for el := p.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(ObservedMessage).MessageID)
	}
	return out
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{Partitions: len(c.parts)}
	for _, p := range c.parts {
		st.Messages += p.order.Len()
	}
	return st
}
