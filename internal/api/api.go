// Package api exposes the auction registry over HTTP. Callers identify
// themselves with the X-Caller-Address header; there is no authentication
// layer here, an upstream gateway is expected to have verified the address.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/kpmarket/auctiond/internal/auction"
	"github.com/kpmarket/auctiond/internal/custody"
)

// CallerHeader carries the address acting on a request.
const CallerHeader = "X-Caller-Address"

// Handler serves the auction HTTP API.
type Handler struct {
	reg    *auction.Registry
	logger *slog.Logger
}

// NewHandler creates a Handler around the given registry.
func NewHandler(reg *auction.Registry, logger *slog.Logger) *Handler {
	return &Handler{reg: reg, logger: logger}
}

// Router builds the full route table wrapped in recovery and compression
// middleware.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/auctions", h.createAuction).Methods(http.MethodPost)
	r.HandleFunc("/auctions", h.listAuctions).Methods(http.MethodGet)
	r.HandleFunc("/auctions/{id:[0-9]+}", h.getAuction).Methods(http.MethodGet)
	r.HandleFunc("/auctions/{id:[0-9]+}", h.deleteAuction).Methods(http.MethodDelete)
	r.HandleFunc("/auctions/{id:[0-9]+}/bids", h.placeBid).Methods(http.MethodPost)
	r.HandleFunc("/auctions/{id:[0-9]+}/bids", h.listBids).Methods(http.MethodGet)
	r.HandleFunc("/auctions/{id:[0-9]+}/cancel", h.cancelAuction).Methods(http.MethodPost)
	r.HandleFunc("/auctions/{id:[0-9]+}/withdraw-asset", h.withdrawAsset).Methods(http.MethodPost)
	r.HandleFunc("/auctions/{id:[0-9]+}/withdraw-funds", h.withdrawFunds).Methods(http.MethodPost)
	r.HandleFunc("/admin/min-duration", h.setMinDuration).Methods(http.MethodPut)

	return handlers.RecoveryHandler()(handlers.CompressHandler(r))
}

type createAuctionRequest struct {
	Duration       string          `json:"duration"`
	MinIncrement   decimal.Decimal `json:"min_increment"`
	DirectBuyPrice decimal.Decimal `json:"direct_buy_price"`
	StartPrice     decimal.Decimal `json:"start_price"`
	AssetContract  string          `json:"asset_contract"`
	AssetID        int64           `json:"asset_id"`
}

type createAuctionResponse struct {
	ID int64 `json:"id"`
}

func (h *Handler) createAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	id, err := h.reg.CreateAuction(r.Context(), auction.CreateParams{
		Creator:        caller,
		Duration:       duration,
		MinIncrement:   req.MinIncrement,
		DirectBuyPrice: req.DirectBuyPrice,
		StartPrice:     req.StartPrice,
		AssetContract:  req.AssetContract,
		AssetID:        req.AssetID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createAuctionResponse{ID: id})
}

func (h *Handler) listAuctions(w http.ResponseWriter, r *http.Request) {
	live := h.reg.Auctions()
	infos := make([]auction.Info, 0, len(live))
	for _, l := range live {
		infos = append(infos, l.Info())
	}
	writeJSON(w, http.StatusOK, infos)
}

func (h *Handler) getAuction(w http.ResponseWriter, r *http.Request) {
	l, ok := h.listing(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, l.Info())
}

func (h *Handler) deleteAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}
	if err := h.reg.DeleteAuction(r.Context(), id, caller); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type placeBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := h.reg.PlaceBid(r.Context(), id, caller, req.Amount); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listBidsResponse struct {
	Bidders []string          `json:"bidders"`
	Amounts []decimal.Decimal `json:"amounts"`
}

func (h *Handler) listBids(w http.ResponseWriter, r *http.Request) {
	l, ok := h.listing(w, r)
	if !ok {
		return
	}
	bidders, amounts := l.AllBids()
	writeJSON(w, http.StatusOK, listBidsResponse{Bidders: bidders, Amounts: amounts})
}

func (h *Handler) cancelAuction(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.reg.Cancel)
}

func (h *Handler) withdrawAsset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.reg.WithdrawAsset)
}

func (h *Handler) withdrawFunds(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.reg.WithdrawFunds)
}

type setMinDurationRequest struct {
	MinDuration string `json:"min_duration"`
}

func (h *Handler) setMinDuration(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req setMinDurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	d, err := time.ParseDuration(req.MinDuration)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := h.reg.SetMinDuration(caller, d); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutate runs one of the registry's caller-gated listing operations.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64, caller string) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.listingID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id, caller); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := r.Header.Get(CallerHeader)
	if caller == "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("missing "+CallerHeader+" header"))
		return "", false
	}
	return caller, true
}

func (h *Handler) listingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) listing(w http.ResponseWriter, r *http.Request) (*auction.Listing, bool) {
	id, ok := h.listingID(w, r)
	if !ok {
		return nil, false
	}
	l, ok := h.reg.Get(id)
	if !ok {
		h.writeError(w, r, http.StatusNotFound, auction.ErrNotFound)
		return nil, false
	}
	return l, true
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auction.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, err)
	case errors.Is(err, auction.ErrNotOwner),
		errors.Is(err, auction.ErrNotCreator),
		errors.Is(err, auction.ErrNotHighestBidder),
		errors.Is(err, auction.ErrCreatorCannotBid),
		errors.Is(err, custody.ErrNotAssetOwner):
		h.writeError(w, r, http.StatusForbidden, err)
	case errors.Is(err, auction.ErrAuctionNotOpen),
		errors.Is(err, auction.ErrAuctionNotResolved),
		errors.Is(err, auction.ErrBidAlreadyPlaced),
		errors.Is(err, auction.ErrAlreadyWithdrawn),
		errors.Is(err, auction.ErrAlreadyDeleted),
		errors.Is(err, auction.ErrNoBids):
		h.writeError(w, r, http.StatusConflict, err)
	default:
		h.writeError(w, r, http.StatusBadRequest, err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
