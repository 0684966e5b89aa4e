package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"lobby/internal/hub"
	"lobby/internal/model"
	"lobby/internal/netinfo"
)

const maxBodyBytes = 1 << 20

// OrderService is what the handlers need from the order sync service.
type OrderService interface {
	CreateOrder(ctx context.Context, req model.CreateOrderRequest) (model.Order, error)
	UpdateStatus(ctx context.Context, id int64) (model.Order, error)
	RemoveOrder(ctx context.Context, id int64) error
	ListOrders(ctx context.Context) ([]model.Order, error)
	ListOrdersByStatus(ctx context.Context, status model.Status) ([]model.Order, error)

	RawOrders() (json.RawMessage, bool)
	OverwriteRawOrders(ctx context.Context, raw json.RawMessage) error
	AnimationConfig() model.AnimationConfig
	SaveAnimationConfig(cfg model.AnimationConfig) error

	CacheWriteFailures() int64
	CacheDirectory() string
}

// Subscriptions hands out event subscriptions to stream clients.
type Subscriptions interface {
	Subscribe() *hub.Subscription
	Unsubscribe(sub *hub.Subscription)
	Count() int
}

type Options struct {
	Port          int
	StaticDir     string
	AllowedOrigin string

	Heartbeat    time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	Network netinfo.Snapshot
}

type Server struct {
	svc    OrderService
	subs   Subscriptions
	opts   Options
	server *http.Server
	logger *log.Logger
	now    func() time.Time
}

func NewServer(svc OrderService, subs Subscriptions, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}

	s := &Server{
		svc:    svc,
		subs:   subs,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}

	s.server = &http.Server{
		Addr:         ":" + strconv.Itoa(opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the full routing tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", s.handleCreateOrder)
	mux.HandleFunc("GET /orders", s.handleListOrders)
	mux.HandleFunc("GET /orders/status/{status}", s.handleListByStatus)
	mux.HandleFunc("PUT /orders/{id}/ready", s.handleMarkReady)
	mux.HandleFunc("DELETE /orders/{id}", s.handleRemoveOrder)
	mux.HandleFunc("GET /orders/stream", s.handleStream)

	mux.HandleFunc("GET /cache/orders", s.handleGetRawOrders)
	mux.HandleFunc("POST /cache/orders", s.handleSaveRawOrders)
	mux.HandleFunc("GET /cache/orders/status", s.handleCacheStatus)
	mux.HandleFunc("GET /cache/animation-config", s.handleGetAnimationConfig)
	mux.HandleFunc("POST /cache/animation-config", s.handleSaveAnimationConfig)
	mux.HandleFunc("GET /cache/directory", s.handleCacheDirectory)

	mux.HandleFunc("GET /status/api", s.handleServerStatus)

	if s.opts.StaticDir != "" {
		mux.Handle("GET /", newDashboardHandler(s.opts.StaticDir))
	}

	return s.withCORS(s.withRequestLog(mux))
}

func (s *Server) Start() error {
	s.logger.Printf("Starting HTTP server on %v", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Println("Stopping HTTP server...")
	return s.server.Shutdown(ctx)
}

type serverStatus struct {
	Status             string   `json:"status"`
	Timestamp          int64    `json:"timestamp"`
	Hostname           string   `json:"hostname"`
	Port               int      `json:"port"`
	Addresses          []string `json:"addresses"`
	Subscribers        int      `json:"subscribers"`
	CacheWriteFailures int64    `json:"cacheWriteFailures"`
	CacheDirectory     string   `json:"cacheDirectory"`
}

func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	addrs := s.opts.Network.Addresses
	if addrs == nil {
		addrs = []string{}
	}
	s.writeJSON(w, http.StatusOK, serverStatus{
		Status:             "online",
		Timestamp:          s.now().UnixMilli(),
		Hostname:           s.opts.Network.Hostname,
		Port:               s.opts.Port,
		Addresses:          addrs,
		Subscribers:        s.subs.Count(),
		CacheWriteFailures: s.svc.CacheWriteFailures(),
		CacheDirectory:     s.svc.CacheDirectory(),
	})
}
