// Package httpapi exposes the narrow collaborator interface of the settlement
// engine over HTTP for the external command process.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coinsettle/internal/domain"
	"coinsettle/internal/usecase/ledger"
	"coinsettle/internal/usecase/processor"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coinsettle_http_requests_total",
	Help: "Total HTTP requests processed, labeled by status code",
}, []string{"method", "endpoint", "status"})

// Handler serves the command surface.
type Handler struct {
	ledger *ledger.Service
	jobs   domain.JobRepository
	logger *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(ledgerService *ledger.Service, jobs domain.JobRepository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ledger: ledgerService, jobs: jobs, logger: logger}
}

// NewRouter wires all routes. Everything under /api/v1 requires the bearer
// token; /health and /metrics stay open.
func NewRouter(h *Handler, token string) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(AuthMiddleware(token))
	api.HandleFunc("/accounts/{tenant}/{holder}/balance", h.GetBalance).Methods("GET")
	api.HandleFunc("/accounts/{tenant}/{holder}/give", h.Give).Methods("POST")
	api.HandleFunc("/accounts/{tenant}/{holder}/link", h.LinkCard).Methods("POST")
	api.HandleFunc("/transfers/pay", h.Pay).Methods("POST")
	api.HandleFunc("/transfers/withdraw", h.Withdraw).Methods("POST")
	api.HandleFunc("/transfers/card", h.PayCard).Methods("POST")
	api.HandleFunc("/cards/{card}/status", h.CardStatus).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	balance, err := h.ledger.Balance(r.Context(), vars["tenant"], vars["holder"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{
		"tenant":  vars["tenant"],
		"holder":  vars["holder"],
		"balance": balance.StringFixed(domain.FiatFractionDigits),
	})
}

type giveRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) Give(w http.ResponseWriter, r *http.Request) {
	var req giveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	vars := mux.Vars(r)
	balance, err := h.ledger.Give(r.Context(), vars["tenant"], vars["holder"], amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{
		"balance": balance.StringFixed(domain.FiatFractionDigits),
	})
}

type linkRequest struct {
	Card string `json:"card"`
}

func (h *Handler) LinkCard(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Card == "" {
		respondError(w, r, http.StatusBadRequest, "card is required")
		return
	}

	vars := mux.Vars(r)
	if err := h.ledger.LinkCard(r.Context(), vars["tenant"], vars["holder"], req.Card); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"card": req.Card})
}

type payRequest struct {
	Tenant string `json:"tenant"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.ledger.Pay(r.Context(), req.Tenant, req.From, req.To, amount); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type withdrawRequest struct {
	Tenant string `json:"tenant"`
	Holder string `json:"holder"`
	ToID   string `json:"toId"`
	Amount string `json:"amount"`
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	jobID, outcome, err := h.ledger.Withdraw(r.Context(), req.Tenant, req.Holder, req.ToID, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondOutcome(w, r, jobID, outcome)
}

type payCardRequest struct {
	Tenant string `json:"tenant"`
	Holder string `json:"holder"`
	ToCard string `json:"toCard"`
	Amount string `json:"amount"`
}

func (h *Handler) PayCard(w http.ResponseWriter, r *http.Request) {
	var req payCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	jobID, outcome, err := h.ledger.PayCard(r.Context(), req.Tenant, req.Holder, req.ToCard, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondOutcome(w, r, jobID, outcome)
}

func (h *Handler) CardStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.ledger.CardStatus(r.Context(), mux.Vars(r)["card"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"coins":               domain.FormatCoin(status.Coins),
		"totalTransactions":   status.TotalTransactions,
		"cooldownRemainingMs": status.CooldownRemaining.Milliseconds(),
	})
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	body := map[string]interface{}{
		"id":         job.ID.String(),
		"tenant":     job.TenantID,
		"holder":     job.HolderID,
		"kind":       string(job.Kind),
		"status":     string(job.Status),
		"created_at": job.CreatedAt.Format(time.RFC3339Nano),
	}
	if job.ProcessedAt != nil {
		body["processed_at"] = job.ProcessedAt.Format(time.RFC3339Nano)
	}
	respondJSON(w, r, http.StatusOK, body)
}

// respondOutcome waits for the job's settlement outcome. When the caller
// hangs up first the job keeps running; it answers 202 with the job id so the
// command process can poll /jobs/{id}.
func (h *Handler) respondOutcome(w http.ResponseWriter, r *http.Request, jobID uuid.UUID, outcome <-chan processor.Outcome) {
	select {
	case out := <-outcome:
		if out.Err != nil {
			respondJSON(w, r, statusForError(out.Err), map[string]string{
				"job_id": jobID.String(),
				"error":  domain.UserMessage(out.Err),
			})
			return
		}
		respondJSON(w, r, http.StatusOK, map[string]string{
			"job_id":       jobID.String(),
			"tx_id":        out.Result.TxID,
			"completed_at": out.Result.CompletedAt.Format(time.RFC3339Nano),
		})
	case <-r.Context().Done():
		respondJSON(w, r, http.StatusAccepted, map[string]string{
			"job_id": jobID.String(),
			"status": string(domain.JobStatusPending),
		})
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondError(w, r, status, domain.UserMessage(err))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSettlementUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	httpRequestsTotal.WithLabelValues(r.Method, endpointLabel(r), strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	respondJSON(w, r, code, map[string]string{"error": msg})
}

// endpointLabel uses the route template so metrics cardinality stays bounded.
func endpointLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unknown"
}
