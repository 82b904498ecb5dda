package integration

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"
)

// skipIfNoService skips the test if cx-market is not reachable.
func skipIfNoService(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.HealthCheck(ctx); err != nil {
		t.Skipf("Service not available: %v (run cx-market -serve)", err)
	}
}

func getTestClient() *Client {
	url := DefaultMarketURL
	if u := os.Getenv("MARKET_URL"); u != "" {
		url = u
	}
	return NewClient(url)
}

func tolerance(v int) *int { return &v }

func TestIterativeAuctionEndToEnd(t *testing.T) {
	c := getTestClient()
	skipIfNoService(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	started, err := c.StartAuction(ctx, AuctionRequest{
		JobTitle: "Pallet transport",
		Price:    100,
		Mode:     "iterative",
		Bidders: []Bidder{
			{Name: "carrier-a", Tolerance: tolerance(50)},
			{Name: "carrier-b", Tolerance: tolerance(40)},
			{Name: "carrier-c", Tolerance: tolerance(60)},
		},
	})
	if err != nil {
		t.Fatalf("Failed to start auction: %v", err)
	}
	if started.Status != "RUNNING" {
		t.Errorf("Expected RUNNING, got %s", started.Status)
	}
	t.Logf("Started auction %s", started.AuctionID)

	out, err := c.WaitForAuction(ctx, started.AuctionID, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Auction did not close: %v", err)
	}
	t.Logf("Auction closed: status=%s winner=%s bid=%d rounds=%d", out.Status, out.Winner, out.WinningBid, out.Rounds)

	last := 100
	for _, r := range out.History {
		if r.BestPrice > last {
			t.Errorf("Best price rose in round %d: %d > %d", r.Round, r.BestPrice, last)
		}
		last = r.BestPrice
	}

	switch out.Status {
	case "DONE":
		if out.Winner == "" {
			t.Error("DONE auction has no winner")
		}
		if out.WinningBid > 100 {
			t.Errorf("Winning bid %d above the starting price", out.WinningBid)
		}
		if out.Delegation != nil && out.Delegation.AdjustedCost != out.Delegation.DefaultCost-1 {
			t.Errorf("Unexpected delegation cost %+v", out.Delegation)
		}
	case "REJECTED", "ABORTED":
		if out.Reason == "" {
			t.Errorf("%s auction has no reason", out.Status)
		}
	default:
		t.Fatalf("Unexpected terminal status %s", out.Status)
	}

	if len(out.Terminated) == 0 {
		t.Error("Expected participants to be terminated at close")
	}
}

func TestSealedAuctionEndToEnd(t *testing.T) {
	c := getTestClient()
	skipIfNoService(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	started, err := c.StartAuction(ctx, AuctionRequest{
		JobTitle:   "Container haul",
		Price:      200,
		Mode:       "sealed",
		Settlement: "second-price",
	})
	if err != nil {
		t.Fatalf("Failed to start auction: %v", err)
	}

	out, err := c.WaitForAuction(ctx, started.AuctionID, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("Auction did not close: %v", err)
	}
	if out.Rounds > 1 {
		t.Errorf("Sealed auction ran %d rounds", out.Rounds)
	}
	if out.Status == "DONE" && out.SettledPrice < out.WinningBid {
		t.Errorf("Second-price settlement %d below winning bid %d", out.SettledPrice, out.WinningBid)
	}
}

func TestInvalidJobRejected(t *testing.T) {
	c := getTestClient()
	skipIfNoService(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tests := []struct {
		name string
		req  AuctionRequest
	}{
		{"zero price", AuctionRequest{JobTitle: "Parcel", Price: 0}},
		{"empty title", AuctionRequest{JobTitle: "", Price: 10}},
		{"unknown mode", AuctionRequest{JobTitle: "Parcel", Price: 10, Mode: "dutch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.StartAuction(ctx, tt.req)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Expected status error, got %v", err)
			}
			if se.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", se.Code)
			}
		})
	}
}

func TestUnknownAuctionNotFound(t *testing.T) {
	c := getTestClient()
	skipIfNoService(t, c)

	_, err := c.GetAuction(context.Background(), "does-not-exist")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %v", err)
	}
}

func TestDirectoryClearedAfterClose(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	c := getTestClient()
	skipIfNoService(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cleaner, err := NewDirectoryCleaner(uri, envOr("MONGO_DB", "carrier_exchange"), "directory")
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	defer cleaner.Close(ctx)

	if n, err := cleaner.CleanOlderThan(ctx, time.Hour); err != nil {
		t.Fatalf("CleanOlderThan: %v", err)
	} else if n > 0 {
		t.Logf("removed %d stale registrations", n)
	}

	started, err := c.StartAuction(ctx, AuctionRequest{JobTitle: "Parcel", Price: 50, Mode: "sealed"})
	if err != nil {
		t.Fatalf("Failed to start auction: %v", err)
	}
	if _, err := c.WaitForAuction(ctx, started.AuctionID, 250*time.Millisecond); err != nil {
		t.Fatalf("Auction did not close: %v", err)
	}

	n, err := cleaner.CountScope(ctx, started.AuctionID)
	if err != nil {
		t.Fatalf("CountScope: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no registrations left for %s, found %d", started.AuctionID, n)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
