// Package mockapi is an in-memory stand-in for the drizzle REST API. The
// client tests run against it and cmd/mockapi serves it for local work.
package mockapi

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type Config struct {
	// Key signs access tokens.
	Key       string
	TokenTTL  time.Duration
	RateLimit float64
	Burst     int
	MaxUpload int64
	// PublicURL prefixes media URLs. Empty means http://<request host>.
	PublicURL string
}

func DefaultConfig() Config {
	return Config{
		Key:       "CHANGE_ME",
		TokenTTL:  60 * time.Minute,
		MaxUpload: 64 << 20,
	}
}

type Server struct {
	ID        string
	Key       string
	TokenTTL  time.Duration
	MaxUpload int64
	PublicURL string
	StartTime time.Time
	Logger    *log.Logger
	DB        Database
	Limiter   *RateLimiter
	Gateway   *mux.Router
}

func NewServer(cfg Config, logger *log.Logger, db Database) *Server {
	def := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = def.MaxUpload
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if db == nil {
		db = NewMemoryDB()
	}

	svr := &Server{
		ID:        "mockapi-001",
		Key:       cfg.Key,
		TokenTTL:  cfg.TokenTTL,
		MaxUpload: cfg.MaxUpload,
		PublicURL: cfg.PublicURL,
		StartTime: time.Now(),
		Logger:    logger,
		DB:        db,
		Gateway:   mux.NewRouter(),
	}
	if cfg.RateLimit > 0 {
		svr.Limiter = NewRateLimiter(cfg.RateLimit, cfg.Burst)
	}
	svr.routes()
	return svr
}

func (s *Server) routes() {
	r := s.Gateway
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", s.RegisterHandler).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.LoginHandler).Methods(http.MethodPost)
	r.HandleFunc("/media/{id}", s.MediaHandler).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(s.AuthMiddleware)
	protected.HandleFunc("/feed", s.FeedHandler).Methods(http.MethodGet)
	protected.HandleFunc("/upload", s.UploadHandler).Methods(http.MethodPost)
	protected.HandleFunc("/posts/{id}", s.UpdatePostHandler).Methods(http.MethodPut)
	protected.HandleFunc("/posts/{id}", s.DeletePostHandler).Methods(http.MethodDelete)
}

// Handler is the full API, rate limited when the config asked for it.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Gateway
	if s.Limiter != nil {
		h = s.Limiter.Middleware(h)
	}
	return s.logRequests(h)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
