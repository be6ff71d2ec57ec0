package archive

import (
	"testing"
	"time"

	"playtrader/internal/domain"
	"playtrader/internal/playstore"
	"playtrader/internal/util"
)

func newArchiveRig(t *testing.T) (*playstore.Store, *Archiver) {
	t.Helper()
	log := util.NewLogger("error", "text")
	store, err := playstore.NewStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, NewArchiver(store, t.TempDir(), log)
}

func terminalPlay(name string, status domain.PlayStatus, created time.Time) *domain.Play {
	p := domain.NewPlay(name, "AAPL", domain.TradeTypePut, 150,
		time.Date(2026, 6, 19, 0, 0, 0, 0, time.UTC), 1, domain.SideShort, domain.ClassSimple)
	p.Status.PlayStatus = status
	p.CreationDate = created
	return p
}

func TestArchiveMovesTerminalPlays(t *testing.T) {
	store, arch := newArchiveRig(t)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	closed := terminalPlay("done", domain.StatusClosed, created)
	premium := 2.5
	closed.EntryPremium = &premium
	expired := terminalPlay("lapsed", domain.StatusExpired, created)
	active := terminalPlay("still-open", domain.StatusOpen, created)

	for _, p := range []*domain.Play{closed, expired, active} {
		if err := store.Put(p); err != nil {
			t.Fatal(err)
		}
	}

	n, err := arch.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 2 {
		t.Errorf("archived %d plays, want 2", n)
	}

	// Terminal plays left the live store; the open play stayed.
	for _, st := range []domain.PlayStatus{domain.StatusClosed, domain.StatusExpired} {
		if c, _ := store.Count(st); c != 0 {
			t.Errorf("%s still holds %d plays", st, c)
		}
	}
	if c, _ := store.Count(domain.StatusOpen); c != 1 {
		t.Errorf("open count = %d, want 1", c)
	}

	records, err := arch.ReadYear(2026)
	if err != nil {
		t.Fatalf("ReadYear: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("archive holds %d records, want 2", len(records))
	}

	byID := make(map[string]PlayRecord)
	for _, r := range records {
		byID[r.ID] = r
	}
	got, ok := byID[closed.ID]
	if !ok {
		t.Fatal("closed play missing from archive")
	}
	if got.FinalStatus != string(domain.StatusClosed) || got.EntryPremium != 2.5 {
		t.Errorf("archived record = %+v", got)
	}
}

func TestArchiveMergesAcrossRuns(t *testing.T) {
	store, arch := newArchiveRig(t)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := terminalPlay("first", domain.StatusClosed, created)
	if err := store.Put(first); err != nil {
		t.Fatal(err)
	}
	if _, err := arch.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	second := terminalPlay("second", domain.StatusExpired, created)
	if err := store.Put(second); err != nil {
		t.Fatal(err)
	}
	if _, err := arch.Run(); err != nil {
		t.Fatalf("Run (second): %v", err)
	}

	records, err := arch.ReadYear(2026)
	if err != nil {
		t.Fatalf("ReadYear: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("archive holds %d records after two runs, want 2", len(records))
	}
}

func TestArchiveEmptyStore(t *testing.T) {
	_, arch := newArchiveRig(t)
	n, err := arch.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 0 {
		t.Errorf("archived %d plays from empty store", n)
	}

	records, err := arch.ReadYear(2026)
	if err != nil {
		t.Fatalf("ReadYear: %v", err)
	}
	if records != nil {
		t.Errorf("ReadYear on empty archive = %v", records)
	}
}
