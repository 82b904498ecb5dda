package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/auction"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/service"
)

type Handlers struct {
	svc *service.Service
}

func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleStartAuction handles POST /v1/auctions
func (h *Handlers) HandleStartAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req model.AuctionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.svc.Start(ctx, req)
	if err != nil {
		if errors.Is(err, auction.ErrInvalidJob) || errors.Is(err, service.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.ErrorContext(ctx, "failed to start auction", "error", err)
		http.Error(w, "failed to start auction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// HandleGetAuction handles GET /v1/auctions/{auction_id}
func (h *Handlers) HandleGetAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	out, err := h.svc.Get(ctx, r.PathValue("auction_id"))
	if err != nil {
		if errors.Is(err, service.ErrAuctionNotFound) {
			http.Error(w, "auction not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to get auction", "error", err)
		http.Error(w, "failed to get auction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// HandleListAuctions handles GET /v1/auctions
func (h *Handlers) HandleListAuctions(w http.ResponseWriter, r *http.Request) {
	outcomes := h.svc.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"auctions": outcomes,
		"total":    len(outcomes),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
