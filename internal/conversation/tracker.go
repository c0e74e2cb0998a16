// File: internal/conversation/tracker.go
package conversation

import (
	"sync"

	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
	"github.com/luminark/rudder/internal/config"
)

// Tracker owns per-conversation state. Updates for one conversation are
// mutually exclusive; reads and updates for different conversations never
// block each other. Callers always receive copies.
type Tracker struct {
	cfg config.ConversationConfig
	log *zap.Logger

	mu     sync.RWMutex // Guards the conversations map, not the states.
	states map[string]*state
}

// state carries one conversation's memory behind its own lock.
type state struct {
	mu       sync.Mutex
	intents  []schemas.Intent
	entities map[string]string
}

// NewTracker builds an empty tracker.
func NewTracker(cfg config.ConversationConfig, log *zap.Logger) *Tracker {
	return &Tracker{
		cfg:    cfg,
		log:    log.Named("conversation"),
		states: make(map[string]*state),
	}
}

// Get returns a copy of the conversation's context. Unknown ids yield an
// empty context rather than an error; a first turn has no history yet.
func (t *Tracker) Get(conversationID string) schemas.ConversationContext {
	t.mu.RLock()
	st := t.states[conversationID]
	t.mu.RUnlock()

	ctx := schemas.ConversationContext{
		ConversationID: conversationID,
		Entities:       map[string]string{},
	}
	if st == nil {
		return ctx
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	ctx.Intents = make([]schemas.Intent, len(st.intents))
	copy(ctx.Intents, st.intents)
	for k, v := range st.entities {
		ctx.Entities[k] = v
	}
	return ctx
}

// Update appends the turn's winning intent and merges its resolved entities,
// last write wins per entity name. History is bounded to the configured
// number of turns; the oldest entries are evicted first. The updated context
// is returned as a copy.
func (t *Tracker) Update(conversationID string, intent schemas.Intent, rec schemas.ExecutionRecord) schemas.ConversationContext {
	st := t.stateFor(conversationID)

	st.mu.Lock()
	st.intents = append(st.intents, intent)
	if over := len(st.intents) - t.cfg.MaxTurns; over > 0 {
		st.intents = append([]schemas.Intent(nil), st.intents[over:]...)
	}
	for _, e := range intent.Entities {
		if e.NeedsClarification || e.Value == "" {
			continue
		}
		st.entities[e.Name] = e.Value
	}
	st.mu.Unlock()

	t.log.Debug("Conversation updated",
		zap.String("conversation_id", conversationID),
		zap.String("category", string(intent.Category)),
		zap.String("record_id", rec.ID),
	)
	return t.Get(conversationID)
}

// stateFor returns the conversation's state, creating it on first use.
func (t *Tracker) stateFor(conversationID string) *state {
	t.mu.RLock()
	st := t.states[conversationID]
	t.mu.RUnlock()
	if st != nil {
		return st
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if st = t.states[conversationID]; st == nil {
		st = &state{entities: make(map[string]string)}
		t.states[conversationID] = st
	}
	return st
}
