package engine

import (
	"errors"
	"log/slog"

	"playtrader/internal/domain"
	"playtrader/internal/playstore"
)

// ExposureAggregator computes, on demand, the capital and notional exposure
// committed by all currently open short plays. It is read-only and
// tolerates individual damaged records: one bad file must not block every
// future risk check.
type ExposureAggregator struct {
	store *playstore.Store
	log   *slog.Logger
}

// NewExposureAggregator creates an ExposureAggregator over the play store.
func NewExposureAggregator(store *playstore.Store, log *slog.Logger) *ExposureAggregator {
	return &ExposureAggregator{store: store, log: log}
}

// TotalBPUsed sums strike × 100 × contracts over all OPEN SHORT plays.
func (a *ExposureAggregator) TotalBPUsed() (float64, error) {
	return a.sumOpenShort()
}

// TotalNotional returns the aggregate notional exposure of open short
// plays. For cash-secured short puts notional equals the buying-power
// commitment, so the sums coincide.
func (a *ExposureAggregator) TotalNotional() (float64, error) {
	return a.sumOpenShort()
}

func (a *ExposureAggregator) sumOpenShort() (float64, error) {
	refs, err := a.store.List(domain.StatusOpen)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, ref := range refs {
		play, err := a.store.Load(ref)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Raced with a concurrent move; the play is accounted for
				// wherever it landed.
				continue
			}
			var corrupt *domain.CorruptRecordError
			if errors.As(err, &corrupt) {
				metricCorruptSkipped.Inc()
				a.log.Warn("skipping corrupt record in exposure scan",
					"path", corrupt.Path, "error", corrupt.Err)
				continue
			}
			return 0, err
		}
		if play.PositionSide != domain.SideShort {
			continue
		}
		total += play.RequiredBuyingPower()
	}
	return total, nil
}
