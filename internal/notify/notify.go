package notify

import (
	"strconv"
	"sync"
	"time"
)

// Level distinguishes how a notice should be rendered.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a user-visible message. Standing notices cannot be dismissed by
// the user; they represent conditions like missing configuration that only
// an operator can clear.
type Notice struct {
	ID       string    `json:"id"`
	Level    Level     `json:"level"`
	Message  string    `json:"message"`
	Standing bool      `json:"standing"`
	Created  time.Time `json:"created"`
}

// Center collects notices for the UI to drain.
type Center struct {
	mu      sync.Mutex
	seq     int
	notices []Notice
}

func NewCenter() *Center {
	return &Center{}
}

// Standing registers a persistent notice under a stable id, replacing any
// previous notice with the same id.
func (c *Center) Standing(id string, level Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notices {
		if c.notices[i].Standing && c.notices[i].ID == id {
			c.notices[i].Level = level
			c.notices[i].Message = message
			return
		}
	}
	c.notices = append(c.notices, Notice{
		ID:       id,
		Level:    level,
		Message:  message,
		Standing: true,
		Created:  time.Now(),
	})
}

// Transient posts a one-off notice.
func (c *Center) Transient(level Level, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.notices = append(c.notices, Notice{
		ID:      "t-" + strconv.Itoa(c.seq),
		Level:   level,
		Message: message,
		Created: time.Now(),
	})
}

// Dismiss removes a transient notice by id. Standing notices are ignored.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.notices {
		if c.notices[i].ID == id && !c.notices[i].Standing {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			return
		}
	}
}

// DismissTransient clears every non-standing notice; called on wallet
// disconnect so stale toasts do not survive the session.
func (c *Center) DismissTransient() {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.notices[:0]
	for _, n := range c.notices {
		if n.Standing {
			kept = append(kept, n)
		}
	}
	c.notices = kept
}

// List returns a snapshot of current notices.
func (c *Center) List() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}
