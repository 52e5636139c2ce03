package llm

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultHistoryUsers = 1024
	maxTurnsPerUser     = 10
)

// Turn one remembered exchange
type Turn struct {
	User      string
	Assistant string
}

// History short-term conversation memory, bounded by user count.
type History struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []Turn]
}

func NewHistory(users int) *History {
	if users <= 0 {
		users = defaultHistoryUsers
	}
	cache, err := lru.New[string, []Turn](users)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &History{cache: cache}
}

// Recent returns at most limit turns, oldest first.
func (h *History) Recent(userID string, limit int) []Turn {
	if limit <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	turns, ok := h.cache.Get(userID)
	if !ok {
		return nil
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]Turn(nil), turns...)
}

func (h *History) Append(userID string, turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns, _ := h.cache.Get(userID)
	turns = append(turns, turn)
	if len(turns) > maxTurnsPerUser {
		turns = turns[len(turns)-maxTurnsPerUser:]
	}
	h.cache.Add(userID, turns)
}

func (h *History) Len() int { return h.cache.Len() }
