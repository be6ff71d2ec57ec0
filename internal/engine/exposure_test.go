package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"playtrader/internal/domain"
	"playtrader/internal/util"
)

func TestExposureSumsOpenShortOnly(t *testing.T) {
	rig := newTestRig(t)
	agg := NewExposureAggregator(rig.store, util.NewLogger("error", "text"))

	// Two open shorts: 150×100×2 + 50×100×1 = 35,000.
	putOpenShort(t, rig, 150, 2)
	putOpenShort(t, rig, 50, 1)

	// An open long and a pending short must not count.
	long := domain.NewPlay("open-long", "MSFT", domain.TradeTypeCall, 400,
		time.Date(2026, 6, 19, 0, 0, 0, 0, time.UTC), 1, domain.SideLong, domain.ClassSimple)
	long.Status.PlayStatus = domain.StatusOpen
	if err := rig.store.Put(long); err != nil {
		t.Fatal(err)
	}
	pending := shortPut(999, 9)
	pending.Status.PlayStatus = domain.StatusPendingOpening
	if err := rig.store.Put(pending); err != nil {
		t.Fatal(err)
	}

	used, err := agg.TotalBPUsed()
	if err != nil {
		t.Fatalf("TotalBPUsed: %v", err)
	}
	if used != 35_000 {
		t.Errorf("TotalBPUsed = %v, want 35000", used)
	}

	notional, err := agg.TotalNotional()
	if err != nil {
		t.Fatalf("TotalNotional: %v", err)
	}
	if notional != 35_000 {
		t.Errorf("TotalNotional = %v, want 35000", notional)
	}
}

func TestExposureSkipsCorruptRecords(t *testing.T) {
	rig := newTestRig(t)
	agg := NewExposureAggregator(rig.store, util.NewLogger("error", "text"))

	putOpenShort(t, rig, 100, 1)

	// One damaged record must not block the whole aggregation.
	badPath := filepath.Join(rig.store.Root(), string(domain.StatusOpen), "damaged.json")
	if err := os.WriteFile(badPath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	used, err := agg.TotalBPUsed()
	if err != nil {
		t.Fatalf("TotalBPUsed: %v", err)
	}
	if used != 10_000 {
		t.Errorf("TotalBPUsed = %v, want 10000", used)
	}
}

func TestExposureEmptyStore(t *testing.T) {
	rig := newTestRig(t)
	agg := NewExposureAggregator(rig.store, util.NewLogger("error", "text"))

	used, err := agg.TotalBPUsed()
	if err != nil {
		t.Fatalf("TotalBPUsed: %v", err)
	}
	if used != 0 {
		t.Errorf("TotalBPUsed on empty store = %v, want 0", used)
	}
}
