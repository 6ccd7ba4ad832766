package env

import "sync"

// Episode outcomes delivered by the terminal watcher.
const (
	OutcomeVictory = "victory"
	OutcomeDefeat  = "defeat"
)

// outcomeMailbox is a single-slot cell connecting the terminal watcher to
// the step loop. The watcher posts at most one outcome per episode; the step
// loop peeks it. The mutex gives the required happens-before edge: a post
// completed before a peek is always observed by that peek.
type outcomeMailbox struct {
	mu  sync.Mutex
	val string
}

// post stores the outcome. The first post per episode wins; later posts are
// dropped so a slow duplicate detection cannot flip a resolved result.
func (m *outcomeMailbox) post(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.val == "" {
		m.val = outcome
	}
}

// peek returns the posted outcome, or "" if none. The slot is not cleared.
func (m *outcomeMailbox) peek() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val
}

// clear empties the slot for the next episode.
func (m *outcomeMailbox) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.val = ""
}
