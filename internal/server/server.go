package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StateSource is the read side of the store served by the debug endpoints.
type StateSource interface {
	Snapshot() store.State
	Messages(key model.Key) []model.Message
}

// LinkSource reports the live link state. May be nil.
type LinkSource interface {
	Snapshot() status.Link
}

// Server is the debug HTTP server: health, state and metrics.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New creates a debug server listening on addr. reg may be nil, in which case
// /metrics serves the default registry.
func New(addr string, st StateSource, link LinkSource, reg *prometheus.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(st, link, reg, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the debug routes.
func NewRouter(st StateSource, link LinkSource, reg *prometheus.Registry, logger *zap.Logger) *mux.Router {
	h := &handler{state: st, link: link, logger: logger}
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.HandleFunc("/state", h.snapshot).Methods(http.MethodGet)
	router.HandleFunc("/messages/{kind}/{id}", h.messages).Methods(http.MethodGet)

	if reg != nil {
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	} else {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	router.Use(loggingMiddleware(logger))
	return router
}

// Start listens and serves until Stop. Blocks.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("debug server starting", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("debug server stopping")
	return s.srv.Shutdown(ctx)
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.Debug("http request processed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

type handler struct {
	state  StateSource
	link   LinkSource
	logger *zap.Logger
}

type linkView struct {
	State    string    `json:"state"`
	Since    time.Time `json:"since,omitzero"`
	Attempts int       `json:"attempts"`
}

type selectionView struct {
	ContactID string `json:"contact_id"`
	Key       string `json:"key"`
	TicketID  string `json:"ticket_id,omitempty"`
}

type loadingView struct {
	Conversations bool     `json:"conversations"`
	Messages      []string `json:"messages"`
	Sending       int      `json:"sending"`
}

type stateView struct {
	Link          linkView            `json:"link"`
	Conversations int                 `json:"conversations"`
	Buckets       map[string]int      `json:"buckets"`
	Active        *selectionView      `json:"active"`
	Loading       loadingView         `json:"loading"`
	Errors        map[string]string   `json:"errors"`
	LastError     string              `json:"last_error,omitempty"`
	Typing        map[string][]string `json:"typing"`
	Uploads       int                 `json:"uploads"`
}

type messageView struct {
	ID        string    `json:"id"`
	TempID    string    `json:"temp_id,omitempty"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Direction string    `json:"direction"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	st := h.state.Snapshot()
	v := stateView{
		Conversations: len(st.Conversations),
		Buckets:       make(map[string]int, len(st.Counts)),
		Loading:       loadingView{Conversations: st.Loading.Conversations, Messages: []string{}, Sending: st.Loading.Sending},
		Errors:        make(map[string]string, len(st.Errors)),
		LastError:     st.LastError,
		Typing:        make(map[string][]string, len(st.Typing)),
		Uploads:       len(st.Uploads),
	}
	link := status.Link{State: status.Offline}
	if h.link != nil {
		link = h.link.Snapshot()
	}
	v.Link = linkView{State: string(link.State), Since: link.Since, Attempts: link.Attempts}
	for b, n := range st.Counts {
		v.Buckets[b.String()] = n
	}
	for cat, msg := range st.Errors {
		v.Errors[string(cat)] = msg
	}
	for _, k := range st.Loading.Messages {
		v.Loading.Messages = append(v.Loading.Messages, k.String())
	}
	for k, users := range st.Typing {
		v.Typing[k.String()] = users
	}
	if a := st.Active; a != nil {
		v.Active = &selectionView{ContactID: a.ContactID, Key: a.Key.String()}
		if a.Ticket != nil {
			v.Active.TicketID = a.Ticket.ID
		}
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handler) messages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key, err := model.ParseKey(vars["kind"] + ":" + vars["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msgs := h.state.Messages(key)
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:        m.ID,
			TempID:    m.TempID,
			TicketID:  m.TicketID,
			Direction: string(m.Direction),
			Type:      string(m.Type),
			Status:    string(m.Status),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
