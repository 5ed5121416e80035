package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/xhad/mindvault/internal/auth"
	"github.com/xhad/mindvault/internal/logging"
	"github.com/xhad/mindvault/internal/models"
	"github.com/xhad/mindvault/pkg/content"
)

// Searcher answers a question from the caller's own vault.
type Searcher interface {
	Answer(ctx context.Context, principal models.Principal, rawQuery string) (models.AnswerResult, error)
}

type ContentService interface {
	Create(ctx context.Context, principal models.Principal, req content.CreateRequest) (models.ContentItem, error)
	List(ctx context.Context, principal models.Principal, kind string) ([]models.ContentItem, error)
	Delete(ctx context.Context, principal models.Principal, id string) error
	Tags(ctx context.Context, principal models.Principal) ([]models.Tag, error)
}

type ShareService interface {
	Toggle(ctx context.Context, principal models.Principal, share bool) (content.ShareStatus, error)
	Status(ctx context.Context, principal models.Principal) (content.ShareStatus, error)
	PublicVault(ctx context.Context, token string) (content.PublicVault, error)
}

type Config struct {
	AllowedOrigins  []string
	SearchRateLimit float64 // per owner, per second
	SearchBurst     int
	MaxBodyBytes    int64
}

type Server struct {
	config   Config
	search   Searcher
	content  ContentService
	shares   ShareService
	verifier *auth.Verifier
	limiter  *ownerLimiter
	logger   *slog.Logger
	handler  http.Handler
}

func New(config Config, search Searcher, contentSvc ContentService, shares ShareService, verifier *auth.Verifier, logger *slog.Logger) *Server {
	if config.SearchRateLimit == 0 {
		config.SearchRateLimit = 1
	}
	if config.SearchBurst == 0 {
		config.SearchBurst = 5
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 64 << 10
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		config:   config,
		search:   search,
		content:  contentSvc,
		shares:   shares,
		verifier: verifier,
		limiter:  newOwnerLimiter(config.SearchRateLimit, config.SearchBurst),
		logger:   logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/search", s.authed(s.limited(s.handleSearch))).Methods(http.MethodPost)
	api.HandleFunc("/search/ai_search", s.authed(s.limited(s.handleSearch))).Methods(http.MethodPost)
	api.HandleFunc("/search/ws", s.authed(s.handleWebSocket)).Methods(http.MethodGet)

	api.HandleFunc("/content", s.authed(s.handleCreateContent)).Methods(http.MethodPost)
	api.HandleFunc("/content", s.authed(s.handleListContent)).Methods(http.MethodGet)
	api.HandleFunc("/content/tags", s.authed(s.handleTags)).Methods(http.MethodGet)
	api.HandleFunc("/content/{id}", s.authed(s.handleDeleteContent)).Methods(http.MethodDelete)

	api.HandleFunc("/share/toggle", s.authed(s.handleShareToggle)).Methods(http.MethodPost)
	api.HandleFunc("/share/status", s.authed(s.handleShareStatus)).Methods(http.MethodGet)
	api.HandleFunc("/share/{link}", s.handlePublicVault).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type searchRequest struct {
	Search string `json:"search"`
}

type searchResponse struct {
	Success bool                 `json:"success"`
	Result  string               `json:"result"`
	Content []models.ContentItem `json:"content"`
	Message string               `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	// The owner always comes from the verified token, never the body.
	res, err := s.search.Answer(r.Context(), p, req.Search)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Success: true,
		Result:  res.AnswerText,
		Content: res.MatchedContent,
		Message: "Search completed successfully",
	})
}

func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req content.CreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	item, err := s.content.Create(r.Context(), p, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"content": item,
		"message": "Content added successfully",
	})
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request, p models.Principal) {
	items, err := s.content.List(r.Context(), p, r.URL.Query().Get("kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"content": items,
	})
}

func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request, p models.Principal) {
	if err := s.content.Delete(r.Context(), p, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Content deleted successfully",
	})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request, p models.Principal) {
	tags, err := s.content.Tags(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tags":    tags,
	})
}

func (s *Server) handleShareToggle(w http.ResponseWriter, r *http.Request, p models.Principal) {
	var req struct {
		Share bool `json:"share"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	status, err := s.shares.Toggle(r.Context(), p, req.Share)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  status,
	})
}

func (s *Server) handleShareStatus(w http.ResponseWriter, r *http.Request, p models.Principal) {
	status, err := s.shares.Status(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  status,
	})
}

func (s *Server) handlePublicVault(w http.ResponseWriter, r *http.Request) {
	vault, err := s.shares.PublicVault(r.Context(), mux.Vars(r)["link"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"username": vault.Username,
		"content":  vault.Content,
	})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_request",
			Message: "Request body must be valid JSON",
		})
		return false
	}
	return true
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
