// File: internal/history/recorder.go
package history

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
)

// Recorder is the outcome store. Append-only: no update or delete is exposed.
// QueryHistory returns the most recent records first and never fails just
// because no records exist.
type Recorder interface {
	Record(ctx context.Context, rec schemas.ExecutionRecord) error
	QueryHistory(ctx context.Context, category schemas.IntentCategory, limit int) ([]schemas.ExecutionRecord, error)
}

// MemoryRecorder keeps the execution history in process memory. It is the
// default backend and the one tests use.
type MemoryRecorder struct {
	log *zap.Logger

	mu         sync.RWMutex
	byCategory map[schemas.IntentCategory][]schemas.ExecutionRecord
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder(log *zap.Logger) *MemoryRecorder {
	return &MemoryRecorder{
		log:        log.Named("history"),
		byCategory: make(map[schemas.IntentCategory][]schemas.ExecutionRecord),
	}
}

// Record appends one record. Records are never overwritten, so append order
// only matters within a category.
func (r *MemoryRecorder) Record(_ context.Context, rec schemas.ExecutionRecord) error {
	r.mu.Lock()
	r.byCategory[rec.Category] = append(r.byCategory[rec.Category], rec)
	r.mu.Unlock()

	r.log.Debug("Execution record stored",
		zap.String("record_id", rec.ID),
		zap.String("category", string(rec.Category)),
		zap.String("overall", string(rec.Overall)),
	)
	return nil
}

// QueryHistory returns up to limit records for the category, most recent
// first. An unknown category yields an empty slice.
func (r *MemoryRecorder) QueryHistory(_ context.Context, category schemas.IntentCategory, limit int) ([]schemas.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.byCategory[category]
	if limit <= 0 || limit > len(src) {
		limit = len(src)
	}
	out := make([]schemas.ExecutionRecord, 0, limit)
	for i := len(src) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, src[i])
	}
	return out, nil
}
