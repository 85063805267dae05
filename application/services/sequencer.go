package services

import (
	"errors"
	"sync"

	pkgerrors "notemesh/pkg/errors"
)

// ErrStaleResponse is returned when a newer request for the same target was
// issued while an outbound call was in flight.
var ErrStaleResponse = errors.New("response superseded by a newer request")

// Sequencer hands out increasing request numbers per key so that only the
// result of the latest request is applied.
type Sequencer struct {
	mu     sync.Mutex
	latest map[string]uint64
}

// NewSequencer creates an empty sequencer
func NewSequencer() *Sequencer {
	return &Sequencer{latest: make(map[string]uint64)}
}

// Next issues the next number for key.
func (q *Sequencer) Next(key string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.latest[key]++
	return q.latest[key]
}

// IsLatest reports whether seq is still the newest number issued for key.
func (q *Sequencer) IsLatest(key string, seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latest[key] == seq
}

func staleResponseError(target, key string) error {
	return pkgerrors.NewConflictError("A newer request replaced this one").
		WithCode(pkgerrors.CodeStaleResponse).
		WithCause(ErrStaleResponse).
		WithDetail(target, key)
}
