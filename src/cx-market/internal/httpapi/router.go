package httpapi

import (
	"net/http"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/service"
)

func NewRouter(svc *service.Service) http.Handler {
	h := NewHandlers(svc)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/auctions", h.HandleStartAuction)
	mux.HandleFunc("GET /v1/auctions", h.HandleListAuctions)
	mux.HandleFunc("GET /v1/auctions/{auction_id}", h.HandleGetAuction)

	mux.HandleFunc("GET /health", handleHealth)

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"cx-market"}`))
}
