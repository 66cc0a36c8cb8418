package watcher

import (
	"fmt"
	"sync"
	"time"
)

// Message is one conversation turn.
type Message struct {
	Content   string    `json:"content"`
	Source    string    `json:"source"` // user, assistant or system
	ToolCalls []string  `json:"tool_calls,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.Source, m.Content)
}

// Conversation is a bounded ring of recent messages. When full, the oldest
// message is overwritten; messages older than maxAge are dropped on write.
// It never blocks beyond its own mutex.
type Conversation struct {
	mu     sync.Mutex
	buf    []Message
	start  int
	size   int
	maxAge time.Duration
	now    func() time.Time
}

// NewConversation holds up to limit messages no older than maxAge.
func NewConversation(limit int, maxAge time.Duration) *Conversation {
	if limit <= 0 {
		limit = 100
	}
	return &Conversation{
		buf:    make([]Message, limit),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Add appends a message. An empty source is recorded as "unknown".
func (c *Conversation) Add(source, content string, toolCalls ...string) {
	if source == "" {
		source = "unknown"
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	msg := Message{Content: content, Source: source, ToolCalls: toolCalls, Timestamp: now}
	if c.size == len(c.buf) {
		c.buf[c.start] = msg
		c.start = (c.start + 1) % len(c.buf)
	} else {
		c.buf[(c.start+c.size)%len(c.buf)] = msg
		c.size++
	}
	c.expire(now)
}

// expire drops messages older than maxAge from the front.
func (c *Conversation) expire(now time.Time) {
	if c.maxAge <= 0 {
		return
	}
	cutoff := now.Add(-c.maxAge)
	for c.size > 0 && c.buf[c.start].Timestamp.Before(cutoff) {
		c.buf[c.start] = Message{}
		c.start = (c.start + 1) % len(c.buf)
		c.size--
	}
}

// Messages returns the buffered messages, oldest first.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(c.now())
	out := make([]Message, c.size)
	for i := range out {
		out[i] = c.buf[(c.start+i)%len(c.buf)]
	}
	return out
}

// Recent returns the last count messages as "source: content" lines.
// A count <= 0 returns all of them.
func (c *Conversation) Recent(count int) []string {
	msgs := c.Messages()
	if count > 0 && len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.String()
	}
	return lines
}

// Around returns messages within window of t.
func (c *Conversation) Around(t time.Time, window time.Duration) []string {
	var lines []string
	for _, m := range c.Messages() {
		d := m.Timestamp.Sub(t)
		if d < 0 {
			d = -d
		}
		if d <= window {
			lines = append(lines, m.String())
		}
	}
	return lines
}

// Len returns the number of buffered messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expire(c.now())
	return c.size
}
