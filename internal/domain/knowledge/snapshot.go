package knowledge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot publishes the current KnowledgeBase. Readers take one Load per
// request; reloads build a fresh base and Swap it in.
type Snapshot struct {
	current    atomic.Pointer[KnowledgeBase]
	generation atomic.Int64
	loadedAt   atomic.Int64
}

// NewSnapshot returns a snapshot publishing kb.
func NewSnapshot(kb *KnowledgeBase) *Snapshot {
	s := &Snapshot{}
	s.Swap(kb)
	return s
}

// Load returns the published knowledge base, or nil if none was published.
func (s *Snapshot) Load() *KnowledgeBase {
	return s.current.Load()
}

// Swap publishes kb and returns the new generation number.
func (s *Snapshot) Swap(kb *KnowledgeBase) int64 {
	s.current.Store(kb)
	s.loadedAt.Store(time.Now().UnixNano())
	return s.generation.Add(1)
}

// Generation counts the swaps performed so far.
func (s *Snapshot) Generation() int64 {
	return s.generation.Load()
}

// LoadedAt is the time of the last swap.
func (s *Snapshot) LoadedAt() time.Time {
	return time.Unix(0, s.loadedAt.Load())
}

// LoadSource reads every record from src and builds a knowledge base. Only a
// failure to read the source is an error; bad rows are skipped.
func LoadSource(ctx context.Context, src Source, logger zerolog.Logger) (*KnowledgeBase, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	logger.Info().Str("source", src.Name()).Int("records", len(records)).Msg("loaded relation records")
	return Load(records, logger), nil
}
