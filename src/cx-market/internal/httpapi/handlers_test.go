package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/service"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	svc := service.New(store.NewMemoryStore(), nil, service.Settings{
		RoundTimeout:   time.Second,
		AckTimeout:     3 * time.Second,
		DelegationWait: time.Second,
		Seed:           9,
	})
	srv := httptest.NewServer(NewRouter(svc))
	t.Cleanup(func() {
		srv.Close()
		svc.Wait()
	})
	return srv, svc
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStartAuction(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid", body: `{"job_title":"Deliver parcels","price":100,"bidders":[{"name":"carrier-a","tolerance":50}]}`, wantStatus: http.StatusAccepted},
		{name: "sealed", body: `{"job_title":"Deliver parcels","price":200,"mode":"sealed","bidders":[{"name":"carrier-a"},{"name":"carrier-b"}]}`, wantStatus: http.StatusAccepted},
		{name: "malformed json", body: `{"job_title":`, wantStatus: http.StatusBadRequest},
		{name: "blank title", body: `{"job_title":"","price":100}`, wantStatus: http.StatusBadRequest},
		{name: "zero price", body: `{"job_title":"Deliver parcels","price":0}`, wantStatus: http.StatusBadRequest},
		{name: "unknown mode", body: `{"job_title":"Deliver parcels","price":10,"mode":"english"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)

			resp, err := http.Post(srv.URL+"/v1/auctions", "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus != http.StatusAccepted {
				return
			}
			var out model.AuctionResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if out.AuctionID == "" || out.Status != model.AuctionStatusRunning {
				t.Errorf("unexpected response %+v", out)
			}
		})
	}
}

func TestGetAndListAuctions(t *testing.T) {
	srv, svc := newTestServer(t)

	body := `{"job_title":"Deliver parcels","price":100,"bidders":[{"name":"carrier-a"}]}`
	resp, err := http.Post(srv.URL+"/v1/auctions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	var started model.AuctionResponse
	json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	svc.Wait()

	resp, err = http.Get(srv.URL + "/v1/auctions/" + started.AuctionID)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out model.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Closed() {
		t.Errorf("auction status = %s, want a closed status", out.Status)
	}
	if out.Job.Title != "Deliver parcels" {
		t.Errorf("job title = %q", out.Job.Title)
	}

	listResp, err := http.Get(srv.URL + "/v1/auctions")
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()
	var list struct {
		Auctions []model.Outcome `json:"auctions"`
		Total    int             `json:"total"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || len(list.Auctions) != 1 {
		t.Errorf("list = %+v, want one auction", list)
	}
}

func TestGetAuctionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/auctions/does-not-exist")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
