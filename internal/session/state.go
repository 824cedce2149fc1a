// Package session holds per-conversation key/value state shared by the
// evaluation pipeline: the saved plan, cached credentials, and progress
// counters all live here.
package session

import (
	"fmt"
	"sync"
)

// State is the mutable key/value store backing a single session. Values are
// arbitrary JSON-compatible types; Append treats the value at a key as a list.
type State interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	GetString(key string) string
	Append(key string, value any)
	Delete(key string)
	Keys() []string
}

// MemoryState is an in-process State implementation guarded by a mutex.
type MemoryState struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemoryState returns an empty in-memory session state.
func NewMemoryState() *MemoryState {
	return &MemoryState{values: make(map[string]any)}
}

func (s *MemoryState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// GetString returns the value at key as a string, or "" when the key is
// missing or holds a non-string value.
func (s *MemoryState) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return ""
}

// Append adds value to the list stored at key, creating the list if the key
// is absent. A non-list existing value is replaced by a list holding only the
// new value.
func (s *MemoryState) Append(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, _ := s.values[key].([]any)
	s.values[key] = append(list, value)
}

func (s *MemoryState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *MemoryState) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// State keys written by SavePlan.
const (
	KeyGuidelineFiles     = "guideline_files"
	KeyAssetFiles         = "asset_files"
	KeyAdditionalGuidance = "additional_guidance"
)

// SavePlan records an evaluation plan in session state so later turns can
// pick it up without the caller restating the file lists. Each call appends
// to the existing plan.
func SavePlan(state State, guidelineFiles, assetFiles []string, additionalGuidance string) error {
	if state == nil {
		return fmt.Errorf("session state not available")
	}
	if len(guidelineFiles) == 0 && len(assetFiles) == 0 && additionalGuidance == "" {
		return fmt.Errorf("plan is empty: provide guideline files, asset files, or guidance")
	}

	for _, f := range guidelineFiles {
		state.Append(KeyGuidelineFiles, f)
	}
	for _, f := range assetFiles {
		state.Append(KeyAssetFiles, f)
	}
	if additionalGuidance != "" {
		state.Append(KeyAdditionalGuidance, additionalGuidance)
	}
	return nil
}

// PlanStrings reads back a list-valued plan key as strings, skipping any
// entries that are not strings.
func PlanStrings(state State, key string) []string {
	v, ok := state.Get(key)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
