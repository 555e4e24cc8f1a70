package routes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"supplynet/core/notify"
	"supplynet/gateway/idempotency"
	"supplynet/gateway/middleware"
	"supplynet/native/agreement"
	"supplynet/native/escrow"
	"supplynet/native/identity"
	"supplynet/native/matching"
	"supplynet/native/requests"
	"supplynet/native/tracking"
)

// RateLimitKey is the limiter bucket applied to every /v1 route.
const RateLimitKey = "api"

// Ledger is the registry surface served over HTTP.
type Ledger interface {
	Register(caller [20]byte, input identity.RegistrationInput, coverageAreas []string) (*identity.Participant, error)
	CreateDeliveryRequest(caller [20]byte, input requests.CreateInput) (uint64, error)
	DraftContract(caller [20]byte, input agreement.DraftInput) (*agreement.Agreement, error)
	DeployContract(caller [20]byte, agreementID uint64) (*agreement.Agreement, error)
	LogTrackingEvent(caller [20]byte, requestID uint64, statusText, location string) (tracking.Event, error)
	RecordTrackingEvent(caller [20]byte, ref [32]byte, statusText, location string) (tracking.Event, error)
	ActivateEscrow(caller [20]byte, ref [32]byte) (*escrow.Instance, error)
	CompleteEscrow(caller [20]byte, ref [32]byte) (*escrow.Instance, error)
	CancelEscrow(caller [20]byte, ref [32]byte) (*escrow.Instance, error)

	Participant(account [20]byte) (identity.Participant, *identity.CarrierProfile, error)
	Carriers() ([][20]byte, error)
	DeliveryRequest(id uint64) (*requests.DeliveryRequest, error)
	FindMatches(requestID uint64) ([]matching.Candidate, error)
	Agreement(id uint64) (*agreement.Agreement, error)
	RequestTracking(requestID uint64) ([]tracking.Event, error)
	Escrow(ref [32]byte) (*escrow.Instance, error)
	EscrowTracking(ref [32]byte) ([]tracking.Event, error)
}

// Notifications is the journal feeding the replay and streaming endpoints.
type Notifications interface {
	Replay(cursor uint64, limit int) ([]notify.Notification, error)
	Subscribe(ctx context.Context, cursor uint64) (<-chan notify.Notification, func(), []notify.Notification, error)
}

type Config struct {
	Ledger        Ledger
	Notifications Notifications
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Idempotency   *idempotency.Guard
	CORS          middleware.CORSConfig
	Version       string
	Logger        *slog.Logger
	NowFn         func() time.Time
}

type server struct {
	ledger        Ledger
	notifications Notifications
	version       string
	logger        *slog.Logger
	nowFn         func() time.Time
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("routes: ledger is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("routes: authenticator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	s := &server{
		ledger:        cfg.Ledger,
		notifications: cfg.Notifications,
		version:       cfg.Version,
		logger:        logger.With(slog.String("component", "routes")),
		nowFn:         nowFn,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", s.health)
	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	r.Route("/v1", func(v chi.Router) {
		if cfg.RateLimiter != nil {
			v.Use(cfg.RateLimiter.Middleware(RateLimitKey))
		}
		v.Group(func(g chi.Router) {
			g.Use(cfg.Authenticator.Middleware())
			if cfg.Idempotency != nil {
				g.Use(cfg.Idempotency.Middleware)
			}
			g.Post("/participants", s.registerParticipant)
			g.Get("/participants/{account}", s.getParticipant)
			g.Get("/carriers", s.listCarriers)

			g.Post("/requests", s.createRequest)
			g.Get("/requests/{id}", s.getRequest)
			g.Get("/requests/{id}/matches", s.findMatches)
			g.Post("/requests/{id}/tracking", s.logRequestTracking)
			g.Get("/requests/{id}/tracking", s.requestTracking)

			g.Post("/agreements", s.draftAgreement)
			g.Get("/agreements/{id}", s.getAgreement)
			g.Post("/agreements/{id}/deploy", s.deployAgreement)

			g.Get("/escrows/{ref}", s.getEscrow)
			g.Post("/escrows/{ref}/tracking", s.recordEscrowTracking)
			g.Get("/escrows/{ref}/tracking", s.escrowTracking)

			if s.notifications != nil {
				g.Get("/notifications", s.replayNotifications)
				g.Get("/notifications/ws", s.streamNotifications)
			}
		})
		v.Route("/admin", func(a chi.Router) {
			a.Use(cfg.Authenticator.Middleware(middleware.ScopeRegistryAdmin))
			if cfg.Idempotency != nil {
				a.Use(cfg.Idempotency.Middleware)
			}
			a.Post("/escrows/{ref}/activate", s.escrowTransition(s.ledger.ActivateEscrow))
			a.Post("/escrows/{ref}/complete", s.escrowTransition(s.ledger.CompleteEscrow))
			a.Post("/escrows/{ref}/cancel", s.escrowTransition(s.ledger.CancelEscrow))
		})
	})

	return r, nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: s.nowFn().UTC().Format(time.RFC3339),
		Version:   s.version,
	})
}

// IdempotencyCaller scopes idempotency keys to the authenticated caller.
func IdempotencyCaller(r *http.Request) string {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return ""
	}
	return formatAccount(caller)
}
