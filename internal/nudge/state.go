package nudge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nudgeme/nudgeme/internal/kv"
)

// StateKey is the kv key holding persisted rule state.
const StateKey = "nudge_rules"

// ruleState is the persisted part of a rule. Rule logic lives in code.
type ruleState struct {
	ID              string     `json:"id"`
	Enabled         bool       `json:"enabled"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

func loadState(store kv.Store) (map[string]ruleState, error) {
	raw, ok, err := store.Get(StateKey)
	if err != nil {
		return nil, fmt.Errorf("nudge: load %q: %w", StateKey, err)
	}
	out := make(map[string]ruleState)
	if !ok || raw == "" {
		return out, nil
	}
	var states []ruleState
	if err := json.Unmarshal([]byte(raw), &states); err != nil {
		return nil, fmt.Errorf("nudge: decode %q: %w", StateKey, err)
	}
	for _, st := range states {
		out[st.ID] = st
	}
	return out, nil
}

func saveState(store kv.Store, states []ruleState) error {
	data, err := json.Marshal(states)
	if err != nil {
		return err
	}
	return store.Set(StateKey, string(data))
}
