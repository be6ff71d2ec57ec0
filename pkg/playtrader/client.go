// Package playtrader provides a Go SDK for the playtrader server API.
package playtrader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Play is the wire representation of a play as served by the API.
type Play struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	TradeType       string          `json:"trade_type"`
	StrikePrice     float64         `json:"strike_price"`
	ExpirationDate  time.Time       `json:"expiration_date"`
	Contracts       int             `json:"contracts"`
	PositionSide    string          `json:"position_side"`
	PlayClass       string          `json:"play_class"`
	EntryPremium    *float64        `json:"entry_premium,omitempty"`
	EntryStockPrice *float64        `json:"entry_stock_price,omitempty"`
	CreationDate    time.Time       `json:"creation_date"`
	Creator         string          `json:"creator,omitempty"`
	Strategy        string          `json:"strategy,omitempty"`
	Status          json.RawMessage `json:"status"`
}

// HistoryRecord is one audited status transition.
type HistoryRecord struct {
	PlayID     string    `json:"play_id"`
	PlayName   string    `json:"play_name"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RiskDecision is the outcome of POST /api/risk/preview.
type RiskDecision struct {
	Approved   bool    `json:"approved"`
	Reason     string  `json:"reason,omitempty"`
	RequiredBP float64 `json:"required_bp"`
	Limit      float64 `json:"limit,omitempty"`
	Equity     float64 `json:"equity"`
	ExposureBP float64 `json:"exposure_bp"`
}

// RiskPreviewRequest describes the prospective play to check.
type RiskPreviewRequest struct {
	Symbol       string  `json:"symbol"`
	StrikePrice  float64 `json:"strike_price"`
	Contracts    int     `json:"contracts"`
	PositionSide string  `json:"position_side,omitempty"`
	TradeType    string  `json:"trade_type,omitempty"`
}

// Client provides typed access to the playtrader server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new playtrader API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetPlays retrieves the plays currently in the given status.
func (c *Client) GetPlays(ctx context.Context, status string) ([]Play, error) {
	var resp struct {
		Plays []Play `json:"plays"`
	}
	q := url.Values{"status": {status}}
	if err := c.get(ctx, "/api/plays?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Plays, nil
}

// GetPlay retrieves one play by ID.
func (c *Client) GetPlay(ctx context.Context, id string) (*Play, error) {
	var play Play
	if err := c.get(ctx, "/api/plays/"+url.PathEscape(id), &play); err != nil {
		return nil, err
	}
	return &play, nil
}

// GetPlayByName retrieves one play by its display name.
func (c *Client) GetPlayByName(ctx context.Context, name string) (*Play, error) {
	var play Play
	if err := c.get(ctx, "/api/plays/by-name/"+url.PathEscape(name), &play); err != nil {
		return nil, err
	}
	return &play, nil
}

// GetCounts retrieves per-status play counts.
func (c *Client) GetCounts(ctx context.Context) (map[string]int, error) {
	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	if err := c.get(ctx, "/api/counts", &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

// GetHistory retrieves the transition history of a play.
func (c *Client) GetHistory(ctx context.Context, id string) ([]HistoryRecord, error) {
	var resp struct {
		Records []HistoryRecord `json:"records"`
	}
	if err := c.get(ctx, "/api/history/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// PreviewRisk runs the server's risk checks for a prospective play without
// creating it.
func (c *Client) PreviewRisk(ctx context.Context, req RiskPreviewRequest) (*RiskDecision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/risk/preview", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var decision RiskDecision
	if err := c.do(httpReq, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (HTTP %d)", req.Method, req.URL.Path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
