package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// #region fixture-types

// Fixture is the JSON file replayed by the fixture transport. Replies are
// keyed by Prompt.Key; a key with several replies returns them in order and
// then repeats the last one. Defaults are keyed by stage name.
type Fixture struct {
	Description string              `json:"description"`
	Replies     map[string][]string `json:"replies"`
	Defaults    map[string]string   `json:"defaults,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.Replies == nil {
		f.Replies = map[string][]string{}
	}
	return &f, nil
}

// Save writes the fixture as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-loader

// #region replayer

// Replayer serves fixture replies without any network access.
type Replayer struct {
	fixture *Fixture

	mu   sync.Mutex
	next map[string]int
}

// NewReplayer wraps a loaded fixture.
func NewReplayer(f *Fixture) *Replayer {
	return &Replayer{fixture: f, next: map[string]int{}}
}

// Invoke returns the next scripted reply for the prompt's call site.
func (r *Replayer) Invoke(_ context.Context, p Prompt) (string, error) {
	key := p.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if replies := r.fixture.Replies[key]; len(replies) > 0 {
		i := r.next[key]
		if i >= len(replies) {
			i = len(replies) - 1
		}
		r.next[key] = i + 1
		return replies[i], nil
	}
	if def, ok := r.fixture.Defaults[p.Stage]; ok {
		return def, nil
	}
	return "", fmt.Errorf("fixture has no reply for %s", key)
}

// #endregion replayer
