package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TypingThrottle is the minimum gap between two typing broadcasts for the
// same user in the same chat.
const TypingThrottle = 3 * time.Second

type typingKey struct {
	chat uuid.UUID
	user uuid.UUID
}

// Typing remembers the last typing broadcast per (chat, user). Entries never
// expire on the server; clients infer staleness from silence.
type Typing struct {
	last     sync.Map // typingKey -> time.Time
	throttle time.Duration
}

func NewTyping(throttle time.Duration) *Typing {
	return &Typing{throttle: throttle}
}

// Touch records now and reports whether a typing event should go out.
func (t *Typing) Touch(chatID, userID uuid.UUID, now time.Time) bool {
	key := typingKey{chat: chatID, user: userID}
	for {
		prev, loaded := t.last.LoadOrStore(key, now)
		if !loaded {
			return true
		}
		if now.Sub(prev.(time.Time)) < t.throttle {
			return false
		}
		if t.last.CompareAndSwap(key, prev, now) {
			return true
		}
	}
}

// Forget drops every entry for userID.
func (t *Typing) Forget(userID uuid.UUID) {
	t.last.Range(func(k, _ any) bool {
		if k.(typingKey).user == userID {
			t.last.Delete(k)
		}
		return true
	})
}
