package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/rulebook/internal/domain"
	logpkg "github.com/kailas-cloud/rulebook/internal/logger"
	"github.com/kailas-cloud/rulebook/internal/metrics"
	healthuc "github.com/kailas-cloud/rulebook/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/rulebook/internal/usecase/ingest"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxBodyBytes        = 1 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the rulebook HTTP API.
type Server struct {
	auth          Authenticator
	ingest        Ingester
	answers       Answerer
	history       HistoryReader
	health        HealthChecker
	logger        *zap.Logger
	loginLimiter  *rate.Limiter
	protectIngest bool
	errorHandlers []errorHandler
}

// Option configures a Server.
type Option func(*Server)

// WithLoginLimiter rate limits POST /login. A nil limiter disables the limit.
func WithLoginLimiter(l *rate.Limiter) Option {
	return func(s *Server) { s.loginLimiter = l }
}

// WithProtectedIngest requires a bearer token on POST /upload-pdf.
func WithProtectedIngest(protect bool) Option {
	return func(s *Server) { s.protectIngest = protect }
}

// NewServer creates an HTTP API server.
func NewServer(
	auth Authenticator,
	ingest Ingester,
	answers Answerer,
	history HistoryReader,
	health HealthChecker,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		auth:    auth,
		ingest:  ingest,
		answers: answers,
		history: history,
		health:  health,
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	s.errorHandlers = []errorHandler{
		unauthenticatedHandler,
		sentinelHandler(domain.ErrBadRequest, http.StatusBadRequest, ErrorCodeBadRequest),
		sentinelHandler(domain.ErrUnavailable, http.StatusServiceUnavailable, ErrorCodeServiceUnavailable),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorCodeRateLimited),
	}
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(corsMiddleware())
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Post("/login", s.Login)

	if s.protectIngest {
		r.With(s.requireSubject).Post("/upload-pdf", s.UploadPDF)
	} else {
		r.Post("/upload-pdf", s.UploadPDF)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireSubject)
		r.Post("/query-auth", s.QueryAuth)
		r.Get("/get-user-info", s.GetUserInfo)
		r.Get("/history", s.History)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeBadRequest, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
	return r
}

// Login handles POST /login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	if s.loginLimiter != nil && !s.loginLimiter.Allow() {
		s.handleDomainError(w, r, domain.ErrRateLimited)
		return
	}

	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid username or password")
			return
		}
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		Username:    req.Username,
		TokenType:   "Bearer",
	})
}

// UploadPDF handles POST /upload-pdf. It always answers 200; failures are in-band.
func (s *Server) UploadPDF(w http.ResponseWriter, r *http.Request) {
	res := s.ingest.IngestFile(r.Context())

	if res.Status != ingestuc.StatusSuccess {
		writeJSON(w, http.StatusOK, UploadResponse{Status: res.Status, Error: res.Error})
		return
	}
	n := res.ChunksAdded
	writeJSON(w, http.StatusOK, UploadResponse{
		Status:      res.Status,
		Message:     res.Message,
		ChunksAdded: &n,
	})
}

// QueryAuth handles POST /query-auth.
func (s *Server) QueryAuth(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := s.answers.Answer(r.Context(), SubjectFromContext(r.Context()), req.Query)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Query:         resp.Query,
		Result:        resp.Result,
		ContextChunks: resp.ContextChunks,
		LogStatus:     resp.LogStatus,
	})
}

// GetUserInfo handles GET /get-user-info.
func (s *Server) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	subject := SubjectFromContext(r.Context())
	writeJSON(w, http.StatusOK, UserInfoResponse{UserID: subject, Username: subject})
}

// History handles GET /history.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	subject := SubjectFromContext(r.Context())
	entries, err := s.history.List(r.Context(), subject, limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := HistoryResponse{UserID: subject, Entries: make([]HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HistoryEntry{
			ID:            e.ID,
			Timestamp:     e.Timestamp.Format(time.RFC3339Nano),
			Query:         e.Query,
			FinalAnswer:   e.FinalAnswer,
			ContextChunks: e.ContextChunks,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message. Bad requests keep their
// detail since it only describes the caller's own input.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrBadRequest) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrUnauthenticated,
		domain.ErrUnavailable,
		domain.ErrRateLimited,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// unauthenticatedHandler handles ErrUnauthenticated with a Bearer challenge.
func unauthenticatedHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrUnauthenticated) {
		return false
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
