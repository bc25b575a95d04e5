package docstore

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/report-lifecycle-service/pkg/errors"
)

// Validator checks a document body before it is sent to the store.
type Validator func(payload []byte) error

// Registry maps schema ids to the validator for that schema. One client
// serves every schema; the registry is what makes a schema id acceptable.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Register adds or replaces the validator for each schema id.
func (r *Registry) Register(v Validator, schemaIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range schemaIDs {
		r.validators[id] = v
	}
}

func (r *Registry) Known(schemaID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.validators[schemaID]
	return ok
}

// Validate runs the schema's validator. Unknown schemas are rejected with
// ErrUnknownSchema before any network call is made.
func (r *Registry) Validate(schemaID string, payload []byte) error {
	r.mu.RLock()
	v, ok := r.validators[schemaID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownSchema, schemaID)
	}
	if v == nil {
		return nil
	}
	return v(payload)
}

// Schemas lists the registered schema ids in sorted order.
func (r *Registry) Schemas() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.validators))
	for id := range r.validators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
