package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/usecase/payment"
)

// PaymentProcessor is the synchronous purchase and status boundary
type PaymentProcessor interface {
	SubmitPurchase(ctx context.Context, input payment.PurchaseInput) (*domain.TransactionResult, error)
	CheckStatus(ctx context.Context, transactionReference string) (*domain.TransactionResult, error)
}

// CompletionRelay handles inbound completion envelopes
type CompletionRelay interface {
	OnCompletion(ctx context.Context, envelope []byte) (domain.RelayOutcome, error)
}

// Pinger reports whether a dependency is ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router serves
type Deps struct {
	Payments PaymentProcessor
	Relay    CompletionRelay
	Store    Pinger
	Sessions http.Handler
	Metrics  http.Handler
	Logger   *slog.Logger
}

// NewRouter mounts every HTTP route
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "http"))

	api := &API{
		payments: deps.Payments,
		relay:    deps.Relay,
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(StructuredLogger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Store.Ping(ctx); err != nil {
				http.Error(w, "store not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.Sessions != nil {
		router.Method(http.MethodGet, "/ws", deps.Sessions)
	}

	api.AppendRoutes(router)
	return router
}
