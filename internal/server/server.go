// Package server provides the HTTP REST API for the resume screener.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/resume-screener/internal/db"
	"github.com/jonathan/resume-screener/internal/server/ratelimit"
	"github.com/jonathan/resume-screener/internal/webhook"
)

// AnalysisStore is the read surface over screening jobs and their results.
type AnalysisStore interface {
	GetAnalysisJob(ctx context.Context, requirementID string) (*db.AnalysisJob, error)
	GetSummary(ctx context.Context, jobID string) (*db.AnalysisSummary, error)
	GetRequirements(ctx context.Context, jobID string) (*db.JobRequirements, error)
	GetLatestError(ctx context.Context, requirementID string) (*db.ErrorLogEntry, error)
	ListEvaluations(ctx context.Context, jobID string, f db.EvaluationFilters, sortKey string, page, limit int) ([]db.CandidateResult, db.Pagination, error)
	GetCandidate(ctx context.Context, candidateID string) (*db.Candidate, error)
	ListEvaluationsForCandidate(ctx context.Context, candidateID string) ([]db.CandidateResult, error)
}

// InterviewStore manages interview schedules and feedback.
type InterviewStore interface {
	CreateInterview(ctx context.Context, in db.NewInterview) (*db.InterviewSchedule, error)
	GetInterview(ctx context.Context, interviewID uuid.UUID) (*db.InterviewDetail, error)
	UpdateInterview(ctx context.Context, interviewID uuid.UUID, updates map[string]any) (*db.InterviewSchedule, string, error)
	CancelInterview(ctx context.Context, interviewID uuid.UUID) (*db.InterviewSchedule, error)
	ListInterviews(ctx context.Context, f db.InterviewFilters, page, limit int) ([]db.InterviewDetail, db.Pagination, error)
	CreateFeedback(ctx context.Context, fb db.NewFeedback) (*db.InterviewFeedback, error)
}

// AuditStore records and lists audit and error entries.
type AuditStore interface {
	LogAnalysisActivity(ctx context.Context, action, requirementID, userID string, details map[string]any)
	LogInterviewActivity(ctx context.Context, action string, interviewID uuid.UUID, jobID, candidateID, userID string, details map[string]any)
	LogError(ctx context.Context, rec db.ErrorRecord) uuid.UUID
	GetAuditLogs(ctx context.Context, f db.AuditLogFilters, page, limit int) ([]db.AuditLogEntry, db.Pagination, error)
	GetErrorLogs(ctx context.Context, f db.ErrorLogFilters, page, limit int) ([]db.ErrorLogEntry, db.Pagination, error)
	ResolveError(ctx context.Context, errorID uuid.UUID, userID string) (bool, error)
	ActivitySummary(ctx context.Context, since time.Time) (map[string]int, error)
}

// Dispatcher submits analysis requests to the evaluation workflow.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload webhook.SubmissionPayload) error
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	db          *db.DB
	analysis    AnalysisStore
	interviews  InterviewStore
	audit       AuditStore
	dispatcher  Dispatcher
	rateLimiter *ratelimit.Limiter
	production  bool
}

// Config holds server configuration
type Config struct {
	Port        int
	DatabaseURL string
	WebhookURL  string
	APIKey      string
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	// Connect to database
	database, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	dispatcher := webhook.NewDispatcher(cfg.WebhookURL, cfg.APIKey, nil)

	s := newServer(cfg, database, database, database, database, dispatcher)
	return s, nil
}

// newServer wires routes and middleware around the given stores. Split from
// New so handler tests can inject fakes without a database.
func newServer(cfg Config, database *db.DB, analysis AnalysisStore, interviews InterviewStore, audit AuditStore, dispatcher Dispatcher) *Server {
	s := &Server{
		db:         database,
		analysis:   analysis,
		interviews: interviews,
		audit:      audit,
		dispatcher: dispatcher,
		production: os.Getenv("APP_ENV") == "production",
	}

	// Initialize rate limiter
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// routes builds the request router.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Analysis endpoints
	mux.HandleFunc("POST /api/analysis/start", s.handleStartAnalysis)
	mux.HandleFunc("GET /api/analysis/status/{id}", s.handleAnalysisStatus)
	mux.HandleFunc("GET /api/analysis/results/{id}", s.handleAnalysisResults)

	// Candidate endpoints
	mux.HandleFunc("GET /api/candidates/{id}", s.handleGetCandidate)

	// Interview endpoints
	mux.HandleFunc("POST /api/interviews", s.handleCreateInterview)
	mux.HandleFunc("GET /api/interviews", s.handleListInterviews)
	mux.HandleFunc("GET /api/interviews/{id}", s.handleGetInterview)
	mux.HandleFunc("PUT /api/interviews/{id}", s.handleUpdateInterview)
	mux.HandleFunc("DELETE /api/interviews/{id}", s.handleDeleteInterview)

	// Audit and error log endpoints
	mux.HandleFunc("GET /api/audit", s.handleListAuditLogs)
	mux.HandleFunc("GET /api/audit/summary", s.handleActivitySummary)
	mux.HandleFunc("GET /api/errors", s.handleListErrorLogs)
	mux.HandleFunc("POST /api/errors/{id}/resolve", s.handleResolveError)

	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.db != nil {
		s.db.Close()
	}
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		if !allowed {
			s.setRateLimitHeaders(w, info)
			s.rateLimitResponse(w, info)
			return
		}

		s.setRateLimitHeaders(w, info)
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.db != nil {
		if _, err := s.db.Exec(r.Context(), "SELECT 1"); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			s.jsonResponse(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}

// handlerError maps a typed error onto the response. Internal details reach
// the body only outside production; production callers get the log reference.
func (s *Server) handlerError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		if s.production {
			s.errorResponse(w, status, "internal server error")
			return
		}
	}
	s.errorResponse(w, status, err.Error())
}

// decodeJSON reads a request body into dst, rejecting malformed JSON.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return &ErrValidation{Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	return nil
}

// extractClientID extracts the client identifier from the request.
// For MVP, this uses the IP address from RemoteAddr.
// In the future, this could use X-Forwarded-For header (only from trusted proxies).
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
