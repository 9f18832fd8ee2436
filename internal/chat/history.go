// Package chat implements the conversation core: ordered turn history with a
// bounded sliding window, and the session that mediates between user input
// and the query processor.
package chat

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversational message. Turns are immutable once
// appended; ordering is append-only and significant.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the ordered record of turns for one session. It is not safe
// for concurrent use on its own; the owning Session serializes access.
type History struct {
	turns []Turn
}

// NewHistory constructs an empty history.
func NewHistory() *History { return &History{} }

// Append stores a turn at the end of the history.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
}

// Len reports the number of stored turns.
func (h *History) Len() int { return len(h.turns) }

// All returns a copied snapshot in order from oldest to newest.
func (h *History) All() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// TrimFront drops the oldest turns until at most limit remain.
func (h *History) TrimFront(limit int) {
	if limit < 0 || len(h.turns) <= limit {
		return
	}
	kept := make([]Turn, limit)
	copy(kept, h.turns[len(h.turns)-limit:])
	h.turns = kept
}

// WindowBeforeLast returns a copy of up to limit turns preceding the newest
// one. It is the context slice handed to the query processor: the in-flight
// user turn is excluded, older turns beyond the window are dropped.
func (h *History) WindowBeforeLast(limit int) []Turn {
	if len(h.turns) == 0 {
		return nil
	}
	prior := h.turns[:len(h.turns)-1]
	if limit >= 0 && len(prior) > limit {
		prior = prior[len(prior)-limit:]
	}
	out := make([]Turn, len(prior))
	copy(out, prior)
	return out
}

// Reset clears the history contents.
func (h *History) Reset() {
	h.turns = nil
}
