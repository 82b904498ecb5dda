package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMarketURL is where docker-compose exposes cx-market -serve.
const DefaultMarketURL = "http://localhost:8090"

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Request(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// JSON makes a request and decodes the JSON response.
func (c *Client) JSON(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.Request(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(bodyBytes)}
	}
	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.Request(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

type Bidder struct {
	Name      string `json:"name"`
	Tolerance *int   `json:"tolerance,omitempty"`
}

type AuctionRequest struct {
	JobTitle   string   `json:"job_title"`
	Price      int      `json:"price"`
	Mode       string   `json:"mode,omitempty"`
	Settlement string   `json:"settlement,omitempty"`
	Bidders    []Bidder `json:"bidders,omitempty"`
}

type AuctionStarted struct {
	AuctionID string    `json:"auction_id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

type Delegation struct {
	Variant      string `json:"variant"`
	DefaultCost  int    `json:"default_cost"`
	AdjustedCost int    `json:"adjusted_cost"`
	Initiator    string `json:"initiator"`
	Receiver     string `json:"receiver"`
}

type Outcome struct {
	AuctionID    string      `json:"auction_id"`
	Mode         string      `json:"mode"`
	Status       string      `json:"status"`
	Reason       string      `json:"reason"`
	Winner       string      `json:"winner"`
	WinningBid   int         `json:"winning_bid"`
	SettledPrice int         `json:"settled_price"`
	Rounds       int         `json:"rounds"`
	Delegation   *Delegation `json:"delegation"`
	Terminated   []string    `json:"terminated"`
	History      []struct {
		Round     int `json:"round"`
		BestPrice int `json:"best_price"`
		Proposals int `json:"proposals"`
	} `json:"history"`
}

func (c *Client) StartAuction(ctx context.Context, req AuctionRequest) (*AuctionStarted, error) {
	var out AuctionStarted
	if err := c.JSON(ctx, http.MethodPost, "/v1/auctions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAuction(ctx context.Context, id string) (*Outcome, error) {
	var out Outcome
	if err := c.JSON(ctx, http.MethodGet, "/v1/auctions/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitForAuction polls until the auction leaves RUNNING.
func (c *Client) WaitForAuction(ctx context.Context, id string, poll time.Duration) (*Outcome, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		out, err := c.GetAuction(ctx, id)
		if err != nil {
			return nil, err
		}
		if out.Status != "RUNNING" {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
