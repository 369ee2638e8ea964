package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/punchamoorthee/walletops/internal/wallet"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletops_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "walletops_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	walletOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletops_operations_total",
		Help: "Wallet operations by outcome (success, already_processed, or error kind)",
	}, []string{"operation", "outcome"})
)

// statusByKind is the single place error kinds become HTTP status codes.
// Matching on message text anywhere in this layer is a bug.
var statusByKind = map[domain.Kind]int{
	domain.KindInvalidAmount:         http.StatusUnprocessableEntity,
	domain.KindMissingIdempotencyKey: http.StatusBadRequest,
	domain.KindAccountNotFound:       http.StatusNotFound,
	domain.KindSystemAccountNotFound: http.StatusInternalServerError,
	domain.KindInsufficientFunds:     http.StatusUnprocessableEntity,
	domain.KindPriorAttemptFailed:    http.StatusConflict,
	domain.KindDuplicateKeyRace:      http.StatusConflict,
	domain.KindLockTimeout:           http.StatusServiceUnavailable,
	domain.KindStoreUnavailable:      http.StatusInternalServerError,
}

// publicMessageByKind keeps wire-visible text fixed and free of internals.
var publicMessageByKind = map[domain.Kind]string{
	domain.KindInvalidAmount:         "amount must be positive",
	domain.KindMissingIdempotencyKey: "idempotency key is required",
	domain.KindAccountNotFound:       "account not found",
	domain.KindSystemAccountNotFound: "service misconfigured",
	domain.KindInsufficientFunds:     "insufficient funds",
	domain.KindPriorAttemptFailed:    "previous attempt with this key failed, submit a new key",
	domain.KindDuplicateKeyRace:      "concurrent request with this key, retry with the same key",
	domain.KindLockTimeout:           "account busy, retry shortly",
	domain.KindStoreUnavailable:      "internal server error",
}

type errorBody struct {
	Kind      domain.Kind `json:"kind"`
	Error     string      `json:"error"`
	Retryable bool        `json:"retryable"`
	Details   any         `json:"details,omitempty"`
}

type Handler struct {
	svc *wallet.Service
	env string
	log zerolog.Logger
}

func NewHandler(svc *wallet.Service, env string, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, env: env, log: log}
}

// Routes mounts the versioned API surface.
func (h *Handler) Routes(r *mux.Router) {
	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/bonus", h.IssueBonus).Methods(http.MethodPost)
	apiV1.HandleFunc("/spend", h.Spend).Methods(http.MethodPost)
	apiV1.HandleFunc("/topup", h.TopUp).Methods(http.MethodPost)
	apiV1.HandleFunc("/owners/{owner}/balance", h.GetBalance).Methods(http.MethodGet)
	apiV1.HandleFunc("/owners/{owner}/transactions", h.ListTransactions).Methods(http.MethodGet)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": h.env,
	}, r.Method, "/health")
}

// operationPayload is the request body shared by bonus, spend, and top-up.
// The idempotency key may arrive in the body or in the Idempotency-Key
// header; the header wins when both are set.
type operationPayload struct {
	OwnerID           string          `json:"owner_id" validate:"required,max=100"`
	Amount            decimal.Decimal `json:"amount"`
	AssetCode         string          `json:"asset_code" validate:"omitempty,alphanum,max=20"`
	IdempotencyKey    string          `json:"idempotency_key" validate:"omitempty,uuid4"`
	Description       string          `json:"description" validate:"omitempty,max=255"`
	ExternalReference string          `json:"external_reference" validate:"omitempty,max=255"`
}

func (h *Handler) IssueBonus(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "bonus", "/bonus", h.svc.IssueBonus)
}

func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "spend", "/spend", h.svc.Spend)
}

func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "topup", "/topup", h.svc.TopUp)
}

func (h *Handler) runOperation(
	w http.ResponseWriter,
	r *http.Request,
	operation, endpoint string,
	invoke func(context.Context, domain.OperationRequest) (*domain.OperationResult, error),
) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(http.MethodPost, endpoint))
	defer timer.ObserveDuration()

	var payload operationPayload
	if err := decodeJSONBody(r, &payload); err != nil {
		h.respondDecodeError(w, r, endpoint, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = payload.IdempotencyKey
	}

	result, err := invoke(r.Context(), domain.OperationRequest{
		OwnerID:           payload.OwnerID,
		Amount:            payload.Amount,
		AssetCode:         payload.AssetCode,
		IdempotencyKey:    key,
		Description:       payload.Description,
		ExternalReference: payload.ExternalReference,
	})
	if err != nil {
		kind := domain.KindOf(err)
		walletOperationsTotal.WithLabelValues(operation, string(kind)).Inc()
		h.respondKind(w, r, endpoint, kind)
		return
	}

	walletOperationsTotal.WithLabelValues(operation, result.Status).Inc()
	code := http.StatusCreated
	if result.Status == domain.ResultAlreadyProcessed {
		code = http.StatusOK
	}
	h.respondJSON(w, code, result, r.Method, endpoint)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/owners/{owner}/balance"
	owner := mux.Vars(r)["owner"]
	assetCode := r.URL.Query().Get("asset")

	result, err := h.svc.GetBalance(r.Context(), owner, assetCode)
	if err != nil {
		h.respondKind(w, r, endpoint, domain.KindOf(err))
		return
	}
	h.respondJSON(w, http.StatusOK, result, r.Method, endpoint)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/owners/{owner}/transactions"
	owner := mux.Vars(r)["owner"]
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	result, err := h.svc.ListTransactions(r.Context(), owner, q.Get("asset"), limit, offset)
	if err != nil {
		h.respondKind(w, r, endpoint, domain.KindOf(err))
		return
	}
	h.respondJSON(w, http.StatusOK, result, r.Method, endpoint)
}

func (h *Handler) respondDecodeError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	body := errorBody{Kind: "validation_error", Error: "invalid request body"}
	var verr *validationError
	if errors.As(err, &verr) {
		body.Error = "validation failed"
		body.Details = verr.details
	}
	h.respondJSON(w, http.StatusBadRequest, body, r.Method, endpoint)
}

func (h *Handler) respondKind(w http.ResponseWriter, r *http.Request, endpoint string, kind domain.Kind) {
	code, ok := statusByKind[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	msg, ok := publicMessageByKind[kind]
	if !ok {
		msg = publicMessageByKind[domain.KindStoreUnavailable]
	}
	h.respondJSON(w, code, errorBody{
		Kind:      kind,
		Error:     msg,
		Retryable: domain.Retryable(kind),
	}, r.Method, endpoint)
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.log.Error().Err(err).Str("endpoint", endpoint).Msg("encoding response")
		}
	}
}
