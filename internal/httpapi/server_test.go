package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"playtrader/internal/broker"
	"playtrader/internal/config"
	"playtrader/internal/domain"
	"playtrader/internal/engine"
	"playtrader/internal/history"
	"playtrader/internal/playstore"
	"playtrader/internal/util"
)

type apiRig struct {
	store   *playstore.Store
	history *history.Store
	broker  *broker.SimulatorBroker
	server  *httptest.Server
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	log := util.NewLogger("error", "text")

	store, err := playstore.NewStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	hist, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.NewStore: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	sim := broker.NewSimulatorBroker(100_000, 100_000)
	exposure := engine.NewExposureAggregator(store, log)
	gate := engine.NewRiskGate(config.RiskConfig{
		MaxCapitalAllocation: 0.50,
		MaxNotionalLeverage:  3.0,
	}, sim, exposure, log)

	srv := httptest.NewServer(NewServer(store, hist, gate, log).Handler())
	t.Cleanup(srv.Close)

	return &apiRig{store: store, history: hist, broker: sim, server: srv}
}

func apiPlay(name string, status domain.PlayStatus) *domain.Play {
	p := domain.NewPlay(name, "AAPL", domain.TradeTypePut, 150,
		time.Date(2026, 6, 19, 0, 0, 0, 0, time.UTC), 1, domain.SideShort, domain.ClassSimple)
	p.Status.PlayStatus = status
	return p
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestListPlays(t *testing.T) {
	rig := newAPIRig(t)
	for _, p := range []*domain.Play{
		apiPlay("open-1", domain.StatusOpen),
		apiPlay("open-2", domain.StatusOpen),
		apiPlay("new-1", domain.StatusNew),
	} {
		if err := rig.store.Put(p); err != nil {
			t.Fatal(err)
		}
	}

	var resp PlaysResponse
	if code := getJSON(t, rig.server.URL+"/api/plays?status=open", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Plays) != 2 {
		t.Errorf("got %d open plays, want 2", len(resp.Plays))
	}

	if code := getJSON(t, rig.server.URL+"/api/plays?status=limbo", nil); code != http.StatusBadRequest {
		t.Errorf("unknown status returned %d, want 400", code)
	}
}

func TestGetPlay(t *testing.T) {
	rig := newAPIRig(t)
	play := apiPlay("lookup", domain.StatusNew)
	if err := rig.store.Put(play); err != nil {
		t.Fatal(err)
	}

	var got domain.Play
	if code := getJSON(t, rig.server.URL+"/api/plays/"+play.ID, &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got.ID != play.ID || got.Name != "lookup" {
		t.Errorf("got play %+v", got)
	}

	if code := getJSON(t, rig.server.URL+"/api/plays/does-not-exist", nil); code != http.StatusNotFound {
		t.Errorf("missing play returned %d, want 404", code)
	}
}

func TestGetPlayByName(t *testing.T) {
	rig := newAPIRig(t)
	play := apiPlay("named-lookup", domain.StatusOpen)
	if err := rig.store.Put(play); err != nil {
		t.Fatal(err)
	}

	var got domain.Play
	if code := getJSON(t, rig.server.URL+"/api/plays/by-name/named-lookup", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got.ID != play.ID {
		t.Errorf("got play %s, want %s", got.ID, play.ID)
	}

	if code := getJSON(t, rig.server.URL+"/api/plays/by-name/absent", nil); code != http.StatusNotFound {
		t.Errorf("missing name returned %d, want 404", code)
	}
}

func TestCounts(t *testing.T) {
	rig := newAPIRig(t)
	for _, p := range []*domain.Play{
		apiPlay("a", domain.StatusNew),
		apiPlay("b", domain.StatusOpen),
		apiPlay("c", domain.StatusOpen),
	} {
		if err := rig.store.Put(p); err != nil {
			t.Fatal(err)
		}
	}

	var resp CountsResponse
	if code := getJSON(t, rig.server.URL+"/api/counts", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Counts["open"] != 2 || resp.Counts["new"] != 1 {
		t.Errorf("counts = %v", resp.Counts)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	rig := newAPIRig(t)
	play := apiPlay("audited", domain.StatusPendingOpening)
	if err := rig.history.Append(context.Background(), play, domain.StatusNew, domain.StatusPendingOpening); err != nil {
		t.Fatal(err)
	}

	var resp HistoryResponse
	if code := getJSON(t, rig.server.URL+"/api/history/"+play.ID, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(resp.Records))
	}
	if resp.Records[0].ToStatus != domain.StatusPendingOpening {
		t.Errorf("record to_status = %s", resp.Records[0].ToStatus)
	}

	// Unknown plays get an empty list, not an error.
	if code := getJSON(t, rig.server.URL+"/api/history/unknown", &resp); code != http.StatusOK {
		t.Errorf("unknown play history returned %d, want 200", code)
	}
}

func TestRiskPreviewEndpoint(t *testing.T) {
	rig := newAPIRig(t)

	body := `{"symbol":"AAPL","strike_price":50,"contracts":2,"position_side":"SHORT","trade_type":"PUT"}`
	resp, err := http.Post(rig.server.URL+"/api/risk/preview", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var decision engine.Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		t.Fatal(err)
	}
	if !decision.Approved {
		t.Errorf("decision = %+v, want approved", decision)
	}
	if decision.RequiredBP != 10_000 {
		t.Errorf("required_bp = %v, want 10000", decision.RequiredBP)
	}

	// Missing required fields.
	resp2, err := http.Post(rig.server.URL+"/api/risk/preview", "application/json", strings.NewReader(`{"symbol":"AAPL"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("incomplete preview returned %d, want 400", resp2.StatusCode)
	}
}

func TestCORSPreflights(t *testing.T) {
	rig := newAPIRig(t)

	req, err := http.NewRequest(http.MethodOptions, rig.server.URL+"/api/counts", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("OPTIONS returned %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}
