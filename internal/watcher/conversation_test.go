package watcher

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeClock is a settable time source for the buffer.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testConversation(limit int, maxAge time.Duration) (*Conversation, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c := NewConversation(limit, maxAge)
	c.now = clock.now
	return c, clock
}

func TestConversationDropsOldestWhenFull(t *testing.T) {
	c, _ := testConversation(3, time.Hour)
	for i := 1; i <= 5; i++ {
		c.Add("user", fmt.Sprintf("m%d", i))
	}

	want := []string{"user: m3", "user: m4", "user: m5"}
	if got := c.Recent(0); !reflect.DeepEqual(got, want) {
		t.Errorf("Recent = %v, want %v", got, want)
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
}

func TestConversationExpiresByAge(t *testing.T) {
	c, clock := testConversation(10, 24*time.Hour)
	c.Add("user", "old")
	clock.advance(20 * time.Hour)
	c.Add("assistant", "newer")
	clock.advance(5 * time.Hour)

	want := []string{"assistant: newer"}
	if got := c.Recent(0); !reflect.DeepEqual(got, want) {
		t.Errorf("Recent = %v, want %v", got, want)
	}

	clock.advance(24 * time.Hour)
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 after everything aged out", c.Len())
	}
}

func TestConversationRecentCount(t *testing.T) {
	c, _ := testConversation(10, time.Hour)
	c.Add("user", "a")
	c.Add("", "b")
	c.Add("system", "c", "search_memories")

	want := []string{"unknown: b", "system: c"}
	if got := c.Recent(2); !reflect.DeepEqual(got, want) {
		t.Errorf("Recent(2) = %v, want %v", got, want)
	}
	msgs := c.Messages()
	if !reflect.DeepEqual(msgs[2].ToolCalls, []string{"search_memories"}) {
		t.Errorf("ToolCalls = %v", msgs[2].ToolCalls)
	}
}

func TestConversationAround(t *testing.T) {
	c, clock := testConversation(10, 24*time.Hour)
	start := clock.t
	c.Add("user", "early")
	clock.advance(30 * time.Minute)
	c.Add("user", "middle")
	clock.advance(30 * time.Minute)
	c.Add("user", "late")

	want := []string{"user: middle"}
	if got := c.Around(start.Add(30*time.Minute), 10*time.Minute); !reflect.DeepEqual(got, want) {
		t.Errorf("Around = %v, want %v", got, want)
	}
}

func TestConversationConcurrentAdds(t *testing.T) {
	c := NewConversation(100, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Add("user", fmt.Sprintf("%d-%d", i, j))
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 100 {
		t.Errorf("Len = %d, want 100", c.Len())
	}
}
