// File: internal/selector/learning.go
package selector

import (
	"context"

	"go.uber.org/zap"

	"github.com/luminark/rudder/api/schemas"
)

// reliabilityAdjuster folds recent outcomes for a category into a base
// reliability score.
type reliabilityAdjuster func(category schemas.IntentCategory, base float64) float64

// newAdjuster returns an adjuster that applies an exponential moving average
// over the category's recent execution outcomes, oldest first, starting from
// the catalog's base score. History lookups are cached per Select call so a
// category is fetched at most once.
func (s *Selector) newAdjuster(ctx context.Context) reliabilityAdjuster {
	if s.history == nil || s.cfg.EMAAlpha == 0 {
		return func(_ schemas.IntentCategory, base float64) float64 { return base }
	}

	cache := make(map[schemas.IntentCategory][]schemas.ExecutionRecord)
	return func(category schemas.IntentCategory, base float64) float64 {
		records, ok := cache[category]
		if !ok {
			var err error
			records, err = s.history.QueryHistory(ctx, category, s.cfg.HistorySample)
			if err != nil {
				// Learning is best effort; a history outage must not block
				// selection.
				s.log.Warn("History unavailable, using base reliability",
					zap.String("category", string(category)),
					zap.Error(err),
				)
				records = nil
			}
			cache[category] = records
		}

		ema := base
		// QueryHistory returns most recent first; fold oldest first so the
		// newest outcome carries the most weight.
		for i := len(records) - 1; i >= 0; i-- {
			outcome := 0.0
			if records[i].Overall == schemas.OverallSuccess {
				outcome = 1.0
			}
			ema = s.cfg.EMAAlpha*outcome + (1-s.cfg.EMAAlpha)*ema
		}
		return ema
	}
}
