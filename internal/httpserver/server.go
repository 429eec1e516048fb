package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/blackmichael/photoposts/internal/config"
	"github.com/blackmichael/photoposts/internal/domain"
	"github.com/blackmichael/photoposts/internal/photostore"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// PostService is the domain surface the HTTP API exposes.
type PostService interface {
	ListPosts(ctx context.Context) ([]domain.Post, error)
	SubmitBatch(ctx context.Context, refs []domain.PhotoRef, caption string) (*domain.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

// PhotoReader returns stored photo bytes by storage identifier.
type PhotoReader interface {
	Read(id string) ([]byte, error)
}

// Server is the HTTP server for listing, submitting and deleting posts and
// for serving stored photos.
type Server struct {
	posts      PostService
	photos     PhotoReader
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, posts PostService, photos PhotoReader, logger *slog.Logger) *Server {
	s := &Server{
		posts:  posts,
		photos: photos,
		logger: logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, withCORS(cfg.CORSOrigin, s.routes())),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("POST /posts", s.handleCreatePost)
	mux.HandleFunc("DELETE /posts/{id}", s.handleDeletePost)
	mux.HandleFunc("GET /photos/{id}", s.handleGetPhoto)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type postResponse struct {
	ID         int64     `json:"id"`
	PhotoPaths []string  `json:"photo_paths"`
	Caption    string    `json:"caption"`
	CreatedAt  time.Time `json:"created_at"`
}

func toPostResponse(p domain.Post) postResponse {
	return postResponse{
		ID:         p.ID,
		PhotoPaths: p.PhotoPaths,
		Caption:    p.Caption,
		CreatedAt:  p.CreatedAt,
	}
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.ListPosts(r.Context())
	if err != nil {
		s.logger.Error("failed to list posts", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list posts")
		return
	}

	resp := make([]postResponse, len(posts))
	for i, p := range posts {
		resp[i] = toPostResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

type createPostRequest struct {
	PhotoRefs []string `json:"photo_refs"`
	Caption   string   `json:"caption"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "body must be a JSON object")
		return
	}

	refs := make([]domain.PhotoRef, 0, len(req.PhotoRefs))
	for _, id := range req.PhotoRefs {
		if id == "" {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "photo_refs must not contain empty values")
			return
		}
		refs = append(refs, domain.PhotoRef{FileID: id})
	}
	if len(refs) == 0 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "photo_refs is required")
		return
	}

	post, err := s.posts.SubmitBatch(r.Context(), refs, req.Caption)
	if err != nil {
		if domain.IsUserError(err) {
			s.logger.Warn("batch submission yielded no photos", "refs", len(refs), "error", err)
			writeError(w, http.StatusUnprocessableEntity, "EmptyBatch", "none of the photos could be downloaded")
			return
		}
		s.logger.Error("failed to create post", "refs", len(refs), "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to save post")
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(*post))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "id must be a positive integer")
		return
	}

	if err := s.posts.DeletePost(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			writeError(w, http.StatusNotFound, "NotFound", "post not found")
			return
		}
		s.logger.Error("failed to delete post", "post_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to delete post")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if path.Ext(id) == "" {
		id += ".jpg"
	}

	data, err := s.photos.Read(id)
	if err != nil {
		if errors.Is(err, photostore.ErrNotFound) || errors.Is(err, photostore.ErrInvalidID) {
			writeError(w, http.StatusNotFound, "NotFound", "photo not found")
			return
		}
		s.logger.Error("failed to read photo", "storage_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to read photo")
		return
	}

	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
