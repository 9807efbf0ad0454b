// Package server exposes the form-management operations over HTTP: CRUD
// and search for Questionnaires, the SDC $package operation in its
// instance-level, canonical-URL, and provided-resource forms, and the
// localization transform.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gofhir/sdcforms/model"
	"github.com/gofhir/sdcforms/service"
)

// Repository is the resource-store capability the HTTP layer passes
// through to. The FHIR client implements it.
type Repository interface {
	service.Store
	Search(ctx context.Context, kind string, params url.Values) (json.RawMessage, error)
	Create(ctx context.Context, kind string, resource json.RawMessage) (json.RawMessage, error)
	Update(ctx context.Context, kind, id string, resource json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, kind, id string) error
}

// Packager is the package-operation capability. *pack.Service implements
// it.
type Packager interface {
	PackageByID(ctx context.Context, id string, includeDependencies bool) (*model.Bundle, error)
	PackageByURL(ctx context.Context, url, version string, includeDependencies bool) (*model.Bundle, error)
	PackageResource(ctx context.Context, raw json.RawMessage, includeDependencies bool) (*model.Bundle, error)
}

// Server is the HTTP API.
type Server struct {
	repo           Repository
	packager       Packager
	logger         *log.Logger
	corsOrigins    []string
	packageTimeout time.Duration
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORSOrigins sets the allowed CORS origins; "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithPackageTimeout bounds one whole package operation. A timeout fails
// the operation; no partial bundle is returned.
func WithPackageTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.packageTimeout = d
	}
}

// New creates the HTTP API on top of a repository and a packager.
func New(repo Repository, packager Packager, opts ...Option) *Server {
	s := &Server{
		repo:           repo,
		packager:       packager,
		logger:         log.New(io.Discard),
		corsOrigins:    []string{"*"},
		packageTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/questionnaires/search", s.handleSearch)
	mux.HandleFunc("POST /api/questionnaires", s.handleCreate)
	mux.HandleFunc("GET /api/questionnaires/{id}", s.handleGet)
	mux.HandleFunc("PUT /api/questionnaires/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/questionnaires/{id}", s.handleDelete)

	mux.HandleFunc("GET /api/questionnaires/$package", s.handlePackageByURL)
	mux.HandleFunc("POST /api/questionnaires/$package", s.handlePackageProvided)
	mux.HandleFunc("GET /api/questionnaires/{id}/$package", s.handlePackageByID)

	mux.HandleFunc("GET /api/questionnaires/{id}/$languages", s.handleLanguages)
	mux.HandleFunc("GET /api/questionnaires/{id}/$localize", s.handleLocalize)

	return s.cors(s.logRequests(mux))
}

// logRequests logs the client address, method, path, status, and duration
// of every request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		s.logger.Info("request",
			"ip", ip,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
