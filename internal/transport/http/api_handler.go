package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/domain"
	"trivia-solo-service/internal/metrics"
)

const msgTooManyRequests = "Too many generation requests. Please wait a moment."

// APIHandler serves the generation endpoints used by remote session controllers.
type APIHandler struct {
	service   *app.TriviaService
	gate      *IdentityGate
	logger    *zap.Logger
	perMinute int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewAPIHandler(service *app.TriviaService, gate *IdentityGate, perMinute int, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		service:   service,
		gate:      gate,
		logger:    logger,
		perMinute: perMinute,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.Handle("/api/session/anon", metrics.Instrument("/api/session/anon", http.HandlerFunc(h.gate.IssueAnon)))
	mux.Handle("/api/trivia/generate-solo", metrics.Instrument("/api/trivia/generate-solo", h.gate.Require(http.HandlerFunc(h.Generate))))
	mux.Handle("/api/trivia/cancel", metrics.Instrument("/api/trivia/cancel", h.gate.Require(http.HandlerFunc(h.Cancel))))
	mux.Handle("/api/credits", metrics.Instrument("/api/credits", h.gate.Require(http.HandlerFunc(h.Credits))))
}

type generateBody struct {
	SubmissionID string            `json:"submissionId"`
	Error        string            `json:"error,omitempty"`
	Aborted      bool              `json:"aborted,omitempty"`
	Questions    []domain.Question `json:"questions,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Generate handles POST /api/trivia/generate-solo (form: topic, numberOfQuestions, submissionId).
func (h *APIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}
	identity, _ := IdentityFrom(r.Context())
	submissionID := r.FormValue("submissionId")
	if !h.allow(identity.UserID) {
		writeJSON(w, http.StatusTooManyRequests, generateBody{SubmissionID: submissionID, Error: msgTooManyRequests})
		return
	}

	count, _ := strconv.Atoi(r.FormValue("numberOfQuestions"))
	resp := h.service.Generate(r.Context(), identity, domain.GenerateRequest{
		Topic:             r.FormValue("topic"),
		NumberOfQuestions: count,
		SubmissionID:      submissionID,
	})

	body := generateBody{SubmissionID: resp.SubmissionID, Error: resp.Error, Aborted: resp.Aborted}
	if resp.Trivia != nil {
		body.Questions = resp.Trivia.Questions
	}
	writeJSON(w, generateStatus(resp), body)
}

func generateStatus(resp domain.GenerateResponse) int {
	switch {
	case resp.OK:
		return http.StatusOK
	case resp.Error == app.MsgInvalidRequest:
		return http.StatusBadRequest
	case resp.Error == app.MsgDuplicateSubmission:
		return http.StatusConflict
	case resp.Error == domain.CodeAnonLimitExceeded, resp.Error == domain.CodeRegisteredLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Cancel handles POST /api/trivia/cancel (form: submissionId).
func (h *APIHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}
	identity, _ := IdentityFrom(r.Context())
	submissionID := r.FormValue("submissionId")
	if submissionID == "" {
		writeJSON(w, http.StatusBadRequest, domain.CancelResponse{})
		return
	}
	ack := h.service.Cancel(r.Context(), identity, submissionID)
	status := http.StatusOK
	if !ack.OK {
		status = http.StatusForbidden
	}
	writeJSON(w, status, ack)
}

// Credits handles GET /api/credits.
func (h *APIHandler) Credits(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())
	credits, err := h.service.Credits(r.Context(), identity)
	if err != nil {
		h.logger.Error("load credits", zap.String("user_id", identity.UserID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: app.MsgUsageUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, credits)
}

func (h *APIHandler) allow(userID string) bool {
	if h.perMinute <= 0 {
		return true
	}
	h.mu.Lock()
	limiter, ok := h.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(h.perMinute)/60), h.perMinute)
		h.limiters[userID] = limiter
	}
	h.mu.Unlock()
	return limiter.Allow()
}

func allowPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
