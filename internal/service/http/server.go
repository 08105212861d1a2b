// Package httpapi — HTTP-фасад витрины: чтение каталога, отчёты администратора,
// поток проекций по websocket и служебные эндпоинты.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/canteen/internal/health"
	"github.com/vladislavdragonenkov/canteen/internal/service/catalog"
	"github.com/vladislavdragonenkov/canteen/internal/service/projection"
)

const (
	requestTimeout = 15 * time.Second
	adminRealm     = `Basic realm="canteen-admin"`
)

// CredentialVerifier проверяет учётные данные администратора.
type CredentialVerifier interface {
	Verify(user, password string) error
}

// Config — зависимости HTTP-сервера. Health и Auth необязательны:
// без Auth админские маршруты не регистрируются.
type Config struct {
	Catalog *catalog.Service
	Views   *projection.Views
	Hub     *projection.Hub
	Health  *healthcheck.Handler
	Auth    CredentialVerifier
	Logger  *log.Entry
}

// Server собирает chi-роутер и отслеживает websocket-соединения.
type Server struct {
	catalog  *catalog.Service
	views    *projection.Views
	hub      *projection.Hub
	health   *healthcheck.Handler
	auth     CredentialVerifier
	logger   *log.Entry
	upgrader websocket.Upgrader
	streams  sync.WaitGroup
}

// NewServer создаёт Server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	health := cfg.Health
	if health == nil {
		health = healthcheck.NewHandler("")
	}
	return &Server{
		catalog: cfg.Catalog,
		views:   cfg.Views,
		hub:     cfg.Hub,
		health:  health,
		auth:    cfg.Auth,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router возвращает обработчик со всеми маршрутами.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/healthz", s.health)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Get("/livez", healthcheck.LivenessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Get("/products", s.listProducts)
		r.Get("/products/{id}", s.getProduct)

		if s.auth != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/stats", s.getStats)
				r.Get("/orders", s.listOrders)
			})
		}
	})

	if s.auth != nil && s.hub != nil {
		r.With(s.requireAdmin).Get("/ws/projections", s.streamProjections)
	}
	return r
}

// Wait дожидается завершения всех websocket-потоков.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", adminRealm)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "admin credentials are required")
			return
		}
		if err := s.auth.Verify(user, password); err != nil {
			s.logger.WithField("path", r.URL.Path).Warn("admin authentication failed")
			w.Header().Set("WWW-Authenticate", adminRealm)
			writeError(w, http.StatusUnauthorized, "unauthenticated", domain.ErrInvalidCredentials.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeDomainError переводит доменную ошибку в HTTP-ответ.
func (s *Server) writeDomainError(w http.ResponseWriter, operation string, err error) {
	switch {
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		s.logger.WithError(err).WithField("operation", operation).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal", operation+" failed")
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.ListProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeDomainError(w, "list products", err)
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, toProductView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": views})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductView(product))
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.views.Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, "get stats", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	if status != "" && (!status.Valid() || !status.Visible()) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "unknown order status "+string(status))
		return
	}

	orders, err := s.views.Orders(r.Context(), status)
	if err != nil {
		s.writeDomainError(w, "list orders", err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}
