package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/usecase/payment"
)

const maxBodyBytes = 1 << 20

// API serves the payment and completion endpoints
type API struct {
	payments PaymentProcessor
	relay    CompletionRelay
	logger   *slog.Logger
}

// AppendRoutes mounts the API routes on router
func (a *API) AppendRoutes(router chi.Router) {
	router.Route("/payments", func(r chi.Router) {
		r.Post("/purchase", a.purchase)
		r.Post("/status", a.status)
	})
	router.Post("/events/terminal", a.terminalEvent)
}

type purchaseRequest struct {
	TransactionReference string          `json:"transactionReference"`
	RegisterID           string          `json:"registerId"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency,omitempty"`
	StationID            int             `json:"stationId,omitempty"`
}

type statusRequest struct {
	TransactionReference string `json:"transactionReference"`
}

type errorResponse struct {
	Error                string `json:"error"`
	TransactionReference string `json:"transactionReference,omitempty"`
}

type relayResponse struct {
	Outcome domain.RelayOutcome `json:"outcome"`
}

func (a *API) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := a.payments.SubmitPurchase(r.Context(), payment.PurchaseInput{
		TransactionReference: req.TransactionReference,
		RegisterID:           req.RegisterID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		StationID:            req.StationID,
	})
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), TransactionReference: req.TransactionReference})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := a.payments.CheckStatus(r.Context(), req.TransactionReference)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), TransactionReference: req.TransactionReference})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// terminalEvent receives completion envelopes from the gateway's event topic.
// Non-2xx answers ask the sender to redeliver.
func (a *API) terminalEvent(w http.ResponseWriter, r *http.Request) {
	envelope, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}

	outcome, err := a.relay.OnCompletion(r.Context(), envelope)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, relayResponse{Outcome: outcome})
	case errors.Is(err, domain.ErrDecode):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDeliveryFailed):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		a.logger.Error("relaying completion", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// statusFor maps payment failures to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrProtocol):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
