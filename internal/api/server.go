package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"chatdesk/internal/session"
	"chatdesk/internal/websocket"
)

// StatsSource reports live connection counts for /health.
// *websocket.Registry satisfies it.
type StatsSource interface {
	Stats() websocket.RegistryStats
}

// Dependencies are the collaborators the HTTP surface routes into.
type Dependencies struct {
	Service  *session.Service
	Registry StatsSource

	// CustomerSocket and AdminSocket serve /ws/customer/chat/<id> and
	// /ws/admin/chat/<id>. Either may be nil.
	CustomerSocket http.Handler
	AdminSocket    http.Handler

	// AdminLimiter gates POST /api/admin/chat/message per admin. Optional.
	AdminLimiter session.Limiter
}

type Options struct {
	CORSOrigins []string
	Upload      UploadOptions
}

// Server is the HTTP face of the chat core: the REST fallback for both
// roles, chat uploads, socket upgrades and health.
type Server struct {
	svc          *session.Service
	registry     StatsSource
	adminLimiter session.Limiter
	uploader     *Uploader
	opts         Options
	router       chi.Router
	log          *logrus.Entry
}

func NewServer(deps Dependencies, opts Options, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		svc:          deps.Service,
		registry:     deps.Registry,
		adminLimiter: deps.AdminLimiter,
		uploader:     NewUploader(opts.Upload),
		opts:         opts,
		log:          log,
	}
	s.router = s.routes(deps.CustomerSocket, deps.AdminSocket)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(customerSocket, adminSocket http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	if customerSocket != nil {
		r.Handle("/ws/customer/chat", customerSocket)
		r.Handle("/ws/customer/chat/*", customerSocket)
	}
	if adminSocket != nil {
		r.Handle("/ws/admin/chat", adminSocket)
		r.Handle("/ws/admin/chat/*", adminSocket)
	}

	r.Route("/api/admin/chat", func(r chi.Router) {
		r.Get("/conversations", s.adminConversations)
		r.Get("/history/{conversationId}", s.adminHistory)
		r.Get("/unread", s.adminUnread)
		r.Put("/read/{messageId}", s.adminMarkRead)
		r.Post("/message", s.adminMessage)
		r.Put("/priority/{conversationId}", s.adminPriority)
		r.Get("/filter", s.adminFilter)
		r.Get("/search", s.adminSearch)
		r.Post("/upload", s.upload)
	})

	r.Route("/api/customer/chat", func(r chi.Router) {
		r.Get("/history/{customerId}", s.customerHistory)
		r.Get("/unread/{customerId}", s.customerUnread)
		r.Put("/read/{messageId}", s.customerMarkRead)
		r.Post("/message", s.customerMessage)
		r.Post("/upload", s.upload)
	})

	if s.opts.Upload.URLPrefix != "" && s.opts.Upload.Dir != "" {
		prefix := "/" + strings.Trim(s.opts.Upload.URLPrefix, "/") + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.opts.Upload.Dir))))
	}

	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.opts.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.opts.CORSOrigins
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string                  `json:"status"`
	Timestamp   time.Time               `json:"timestamp"`
	Database    string                  `json:"database"`
	Connections websocket.RegistryStats `json:"connections"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Database: "healthy", Timestamp: time.Now().UTC()}
	if err := s.svc.HealthCheck(ctx); err != nil {
		s.log.WithError(err).Warn("health check failed")
		resp.Status = "unhealthy"
		resp.Database = fmt.Sprintf("error: %v", err)
	}
	if s.registry != nil {
		resp.Connections = s.registry.Stats()
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	url, err := s.uploader.Save(w, r)
	if err != nil {
		entry := s.log.WithError(err).WithField("path", r.URL.Path)
		msg, rejected := uploadMessage(err, s.opts.Upload.MaxBytes)
		if rejected {
			entry.Debug("upload rejected")
		} else {
			entry.Error("upload failed")
		}
		writeError(w, msg)
		return
	}
	writeOK(w, UploadResponse{FileURL: url})
}

// fail logs err at a level matching its cause and sends the soft error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string, fields logrus.Fields) {
	entry := s.log.WithError(err).WithFields(fields).WithField("path", r.URL.Path)
	if session.IsClientError(err) {
		entry.Debug("request rejected")
	} else {
		entry.Error("request failed")
	}
	writeError(w, session.ClientMessage(err, fallback))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// recoverer turns a handler panic into the usual soft error.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.WithFields(logrus.Fields{
					"panic": rec,
					"path":  r.URL.Path,
				}).Error("recovered from handler panic")
				writeError(w, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
