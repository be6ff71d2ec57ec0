// Package archive compacts terminal plays into yearly Parquet files so the
// live status directories stay small enough for the polling loop to scan on
// every pass.
package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"playtrader/internal/domain"
	"playtrader/internal/playstore"
)

// PlayRecord is the Parquet schema for an archived play. Percentage and
// snapshot fields use NaN-free zero values when the play never filled.
type PlayRecord struct {
	ID              string  `parquet:"id"`
	Name            string  `parquet:"name"`
	Symbol          string  `parquet:"symbol"`
	TradeType       string  `parquet:"trade_type"`
	StrikePrice     float64 `parquet:"strike_price"`
	ExpirationDate  int64   `parquet:"expiration_date,timestamp(millisecond)"`
	Contracts       int     `parquet:"contracts"`
	PositionSide    string  `parquet:"position_side"`
	PlayClass       string  `parquet:"play_class"`
	FinalStatus     string  `parquet:"final_status"`
	EntryPremium    float64 `parquet:"entry_premium"`
	EntryStockPrice float64 `parquet:"entry_stock_price"`
	CreationDate    int64   `parquet:"creation_date,timestamp(millisecond)"`
	ArchivedAt      int64   `parquet:"archived_at,timestamp(millisecond)"`
	Creator         string  `parquet:"creator"`
	Strategy        string  `parquet:"strategy"`
}

// Archiver moves CLOSED and EXPIRED plays out of the live store into
// <dir>/plays/<YYYY>.parquet, keyed by creation year.
type Archiver struct {
	store *playstore.Store
	dir   string
	log   *slog.Logger

	now func() time.Time
}

// NewArchiver creates an Archiver writing under dir.
func NewArchiver(store *playstore.Store, dir string, log *slog.Logger) *Archiver {
	return &Archiver{store: store, dir: dir, log: log, now: time.Now}
}

// Run archives every terminal play and reports how many were moved. The
// Parquet write lands before the JSON record is removed, so a crash between
// the two duplicates a play in the archive on the next run; the merge
// deduplicates by ID.
func (a *Archiver) Run() (int, error) {
	var archived int
	for _, status := range []domain.PlayStatus{domain.StatusClosed, domain.StatusExpired} {
		refs, err := a.store.List(status)
		if err != nil {
			return archived, err
		}

		byYear := make(map[int][]PlayRecord)
		done := make(map[int][]playstore.Ref)
		for _, ref := range refs {
			play, err := a.store.Load(ref)
			if err != nil {
				a.log.Warn("skipping unreadable play during archive",
					"status", status, "id", ref.ID, "error", err)
				continue
			}
			year := play.CreationDate.Year()
			byYear[year] = append(byYear[year], a.record(play))
			done[year] = append(done[year], ref)
		}

		for year, records := range byYear {
			path := a.yearPath(year)
			existing, _ := readParquetFile[PlayRecord](path)
			merged := mergePlayRecords(existing, records)
			if err := writeParquetFile(path, merged); err != nil {
				return archived, fmt.Errorf("writing archive for %d: %w", year, err)
			}
			for _, ref := range done[year] {
				if err := a.store.Remove(ref); err != nil {
					a.log.Warn("removing archived play", "id", ref.ID, "error", err)
					continue
				}
				archived++
			}
			a.log.Info("archive year written", "year", year, "records", len(merged))
		}
	}
	return archived, nil
}

// ReadYear loads the archived plays for one creation year.
func (a *Archiver) ReadYear(year int) ([]PlayRecord, error) {
	records, err := readParquetFile[PlayRecord](a.yearPath(year))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

func (a *Archiver) record(play *domain.Play) PlayRecord {
	rec := PlayRecord{
		ID:             play.ID,
		Name:           play.Name,
		Symbol:         play.Symbol,
		TradeType:      string(play.TradeType),
		StrikePrice:    play.StrikePrice,
		ExpirationDate: play.ExpirationDate.UnixMilli(),
		Contracts:      play.Contracts,
		PositionSide:   string(play.PositionSide),
		PlayClass:      string(play.PlayClass),
		FinalStatus:    string(play.Status.PlayStatus),
		CreationDate:   play.CreationDate.UnixMilli(),
		ArchivedAt:     a.now().UnixMilli(),
		Creator:        play.Creator,
		Strategy:       play.Strategy,
	}
	if play.EntryPremium != nil {
		rec.EntryPremium = *play.EntryPremium
	}
	if play.EntryStockPrice != nil {
		rec.EntryStockPrice = *play.EntryStockPrice
	}
	return rec
}

// yearPath returns the archive location for a creation year.
// Layout: <dir>/plays/<YYYY>.parquet
func (a *Archiver) yearPath(year int) string {
	return filepath.Join(a.dir, "plays", fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergePlayRecords deduplicates by play ID, preferring incoming records over
// existing ones. Results are sorted by creation time.
func mergePlayRecords(existing, incoming []PlayRecord) []PlayRecord {
	seen := make(map[string]PlayRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = r
	}
	for _, r := range incoming {
		seen[r.ID] = r
	}

	merged := make([]PlayRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreationDate < merged[j].CreationDate
	})
	return merged
}
