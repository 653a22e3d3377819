// Package hub implements the development stand-in for the ticketing
// backend: the REST endpoints the client SDK talks to and a websocket
// endpoint speaking the same publish/subscribe protocol as the hosted
// service, backed by a local Pebble database.
package hub

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"deskchat/pkg/config"
	"deskchat/pkg/logger"
	"deskchat/pkg/models"
)

// Server is the hub's HTTP surface.
type Server struct {
	cfg       *config.Config
	registry  *Registry
	limiters  *limiterPool
	users     map[string]models.User
	uploadDir string
	srv       *http.Server
}

// NewServer builds a hub server from config. OpenStore must have been
// called before any request is served.
func NewServer(cfg *config.Config, uploadDir string) *Server {
	users := make(map[string]models.User, len(cfg.Hub.Tokens))
	for _, t := range cfg.Hub.Tokens {
		users[t.Token] = models.User{ID: t.ID, Name: t.Name, Role: t.Role}
	}
	return &Server{
		cfg:       cfg,
		registry:  NewRegistry(),
		limiters:  &limiterPool{rps: cfg.Hub.RateLimit.RPS, burst: cfg.Hub.RateLimit.Burst},
		users:     users,
		uploadDir: uploadDir,
	}
}

// Registry exposes the connection registry so embedding processes can
// broadcast events of their own.
func (s *Server) Registry() *Registry { return s.registry }

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.LogRequest(req)
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))

	r.HandleFunc("/app/{key}", s.serveWS)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/broadcasting/auth", s.handleBroadcastAuth).Methods(http.MethodPost)
	api.HandleFunc("/tickets", s.handleCreateTicket).Methods(http.MethodPost)
	api.HandleFunc("/tickets/{ticket}/chat/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/tickets/{ticket}/chat/messages", s.handleCreateMessage).Methods(http.MethodPost)
	api.HandleFunc("/tickets/{ticket}/chat/messages/read", s.handleMarkMessagesRead).Methods(http.MethodPost)
	api.HandleFunc("/tickets/{ticket}/chat/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/mark-all-read", s.handleMarkAllNotificationsRead).Methods(http.MethodPatch)
	api.HandleFunc("/notifications/{id}/read", s.handleMarkNotificationRead).Methods(http.MethodPatch)
	return r
}

// Start begins serving and returns a channel carrying the terminal server
// error.
func (s *Server) Start() <-chan error {
	s.srv = &http.Server{Addr: s.cfg.HubAddr(), Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	logger.Info("hub_listening", "addr", s.cfg.HubAddr())
	return errCh
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !StoreReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
