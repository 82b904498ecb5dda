package config

import (
	"errors"
	"testing"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/internal/testutil"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, model.ModeIterative, cfg.Mode)
	testutil.AssertEqual(t, model.FirstPrice, cfg.Settlement)
	testutil.AssertEqual(t, 10*time.Second, cfg.RoundTimeout)
	testutil.AssertEqual(t, 5*time.Second, cfg.DelegationWait)
	testutil.AssertEqual(t, time.Second, cfg.ThinkTimeMin)
	testutil.AssertEqual(t, 3*time.Second, cfg.ThinkTimeMax)
	testutil.AssertEqual(t, "memory", cfg.StoreType)
	testutil.AssertEqual(t, 0, len(cfg.Bidders))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MARKET_MODE", "sealed")
	t.Setenv("SETTLEMENT_RULE", "second-price")
	t.Setenv("ROUND_TIMEOUT", "2s")
	t.Setenv("RANDOM_SEED", "42")
	t.Setenv("BIDDERS", "fast=30, slow=70")

	cfg, err := Load()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, model.ModeSealed, cfg.Mode)
	testutil.AssertEqual(t, model.SecondPrice, cfg.Settlement)
	testutil.AssertEqual(t, 2*time.Second, cfg.RoundTimeout)
	testutil.AssertEqual(t, uint64(42), cfg.RandomSeed)
	testutil.AssertEqual(t, 2, len(cfg.Bidders))
	testutil.AssertEqual(t, "slow", cfg.Bidders[1].Name)
	testutil.AssertEqual(t, 70, *cfg.Bidders[1].Tolerance)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "mode", key: "MARKET_MODE", value: "dutch"},
		{name: "settlement", key: "SETTLEMENT_RULE", value: "third-price"},
		{name: "duration", key: "ACK_TIMEOUT", value: "soon"},
		{name: "seed", key: "RANDOM_SEED", value: "-1"},
		{name: "think time", key: "THINK_TIME_MAX", value: "10ms"},
		{name: "delegation wait equals ack timeout", key: "DELEGATION_WAIT", value: "15s"},
		{name: "delegation wait above ack timeout", key: "DELEGATION_WAIT", value: "1m"},
		{name: "ack timeout below delegation wait", key: "ACK_TIMEOUT", value: "2s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			testutil.AssertError(t, err)
		})
	}
}

func TestLoadRejectsDelegationWaitPastAckTimeout(t *testing.T) {
	t.Setenv("ACK_TIMEOUT", "5s")
	t.Setenv("DELEGATION_WAIT", "5s")

	_, err := Load()
	testutil.AssertError(t, err)
	testutil.AssertContains(t, err.Error(), "DELEGATION_WAIT")

	t.Setenv("DELEGATION_WAIT", "4s")
	cfg, err := Load()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 4*time.Second, cfg.DelegationWait)
}

func TestParseBuyerArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantTitle string
		wantPrice int
		wantErr   bool
	}{
		{name: "valid", args: []string{"Deliver Parcel", "100"}, wantTitle: "Deliver Parcel", wantPrice: 100},
		{name: "missing price", args: []string{"Deliver Parcel"}, wantErr: true},
		{name: "too many", args: []string{"Deliver", "Parcel", "100"}, wantErr: true},
		{name: "non numeric", args: []string{"Deliver Parcel", "abc"}, wantErr: true},
		{name: "negative", args: []string{"Deliver Parcel", "-5"}, wantErr: true},
		{name: "fraction", args: []string{"Deliver Parcel", "9.5"}, wantErr: true},
		{name: "zero", args: []string{"Deliver Parcel", "0"}, wantErr: true},
		{name: "overflow", args: []string{"Deliver Parcel", "99999999999999999999"}, wantErr: true},
		{name: "blank title", args: []string{"   ", "100"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, price, err := ParseBuyerArgs(tt.args)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgs) {
					t.Fatalf("ParseBuyerArgs() err = %v, want ErrInvalidArgs", err)
				}
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, tt.wantTitle, title)
			testutil.AssertEqual(t, tt.wantPrice, price)
		})
	}
}

func TestParseTolerance(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"40", 40},
		{" 0 ", 0},
		{"100", 100},
		{"101", 50},
		{"-1", 50},
		{"12.5", 50},
		{"40.0", 50},
		{"1e1", 50},
		{"+40", 50},
		{"007", 7},
		{"99999999999999999999", 50},
		{"half", 50},
		{"", 50},
	}
	for _, tt := range tests {
		if got := ParseTolerance(tt.in); got != tt.want {
			t.Errorf("ParseTolerance(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseBidders(t *testing.T) {
	got := ParseBidders("alpha=30,45,,beta=oops")
	if len(got) != 3 {
		t.Fatalf("ParseBidders() returned %d specs, want 3", len(got))
	}
	testutil.AssertEqual(t, "alpha", got[0].Name)
	testutil.AssertEqual(t, 30, *got[0].Tolerance)
	testutil.AssertEqual(t, "carrier-2", got[1].Name)
	testutil.AssertEqual(t, 45, *got[1].Tolerance)
	testutil.AssertEqual(t, "beta", got[2].Name)
	testutil.AssertEqual(t, 50, *got[2].Tolerance)

	testutil.AssertEqual(t, 3, len(DefaultBidders()))
}
