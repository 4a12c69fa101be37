// Package api exposes the SafeSignal engine over HTTP for the host platform and UI.
//
// Input tokens, manual triggers, cancel and resolve requests come in; engine state
// (polled or streamed over a websocket), the event log, contacts and safety
// analytics go out. Prometheus metrics are served on /metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/SafeSignal/internal/metrics"
	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/BTreeMap/SafeSignal/internal/store"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// Controller is the engine surface used by the API. *engine.Engine satisfies it.
type Controller interface {
	Trigger(ctx context.Context, kind models.TriggerKind, silentOverride bool) (models.TriggerResult, error)
	Cancel(ctx context.Context) error
	Resolve(ctx context.Context) error
	SubmitRawInput(token models.InputToken, at time.Time) bool
	State() models.EngineState
	LastActivation() *models.ActivationReport
	Subscribe() (<-chan models.EngineState, func())
}

// Reporter produces safety analytics. *analytics.Service satisfies it.
type Reporter interface {
	Report() (models.SafetyReport, error)
}

// Opts holds configuration options for the Server.
type Opts struct {
	Addr string
	Now  func() time.Time
}

// Option defines a configuration option for the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithNow sets the time source used for input tokens without a timestamp.
func WithNow(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	engine    Controller
	events    store.EventStore
	contacts  store.ContactStore
	analytics Reporter
	now       func() time.Time
	http      *http.Server
}

// NewServer creates a Server. Call Start to listen.
func NewServer(ctrl Controller, events store.EventStore, contacts store.ContactStore, reporter Reporter, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		engine:    ctrl,
		events:    events,
		contacts:  contacts,
		analytics: reporter,
		now:       cfg.Now,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/input", s.inputHandler).Methods(http.MethodPost)
	v1.HandleFunc("/trigger", s.triggerHandler).Methods(http.MethodPost)
	v1.HandleFunc("/cancel", s.cancelHandler).Methods(http.MethodPost)
	v1.HandleFunc("/resolve", s.resolveHandler).Methods(http.MethodPost)
	v1.HandleFunc("/state", s.stateHandler).Methods(http.MethodGet)
	v1.HandleFunc("/state/stream", s.stateStreamHandler).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.listEventsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/events/{id:[0-9]+}", s.getEventHandler).Methods(http.MethodGet)
	v1.HandleFunc("/analytics", s.analyticsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/contacts", s.listContactsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/contacts", s.saveContactHandler).Methods(http.MethodPost)
	v1.HandleFunc("/contacts/{id}", s.deleteContactHandler).Methods(http.MethodDelete)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Not found"))
	})
	return r
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("SafeSignal API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
