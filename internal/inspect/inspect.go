// Package inspect serves a local view of the session state. Message lists are
// loaded on first request.
package inspect

import (
	"chatsync/internal/hub"
	"chatsync/internal/models"
	"chatsync/internal/supervisor"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Source interface {
	Channels() []models.Channel
	Channel(channelID string) (models.Channel, bool)
	Messages(channelID string) ([]models.Message, bool)
	LoadMessages(ctx context.Context, channelID string) ([]models.Message, error)
	Users() []models.User
	State() supervisor.State
}

type Subscriber interface {
	Subscribe(kind string, fn hub.Listener) func()
}

type StateView struct {
	Connection    string `json:"connection"`
	LastChange    string `json:"lastChange"`
	LastEvent     string `json:"lastEvent"`
	Users         string `json:"users"`
	Channels      string `json:"channels"`
	LoadedHistory string `json:"loadedHistory"`
}

type Server struct {
	sugar  *zap.SugaredLogger
	source Source

	mutex      sync.Mutex
	lastChange time.Time
	lastEvent  string
}

func New(sugar *zap.SugaredLogger, source Source, notifications Subscriber) *Server {
	s := &Server{sugar: sugar, source: source, lastChange: time.Now()}

	for _, kind := range []string{hub.Connected, hub.Reconnecting, hub.Disconnected, hub.InitSucceeded, hub.InitFailed} {
		notifications.Subscribe(kind, s.observe)
	}
	return s
}

func (s *Server) observe(n hub.Notification) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastChange = time.Now()
	s.lastEvent = n.Kind
}

// Router exposes the state as JSON and, when gatherer is set, prometheus metrics.
func (s *Server) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/state", s.state)
	r.Get("/users", s.users)

	r.Route("/channels", func(r chi.Router) {
		r.Get("/", s.channels)
		r.Get("/{id}", s.channel)
		r.Get("/{id}/messages", s.messages)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		s.sugar.Debugf("Writing inspect response failed: %v", err)
	}
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	lastChange := s.lastChange
	lastEvent := s.lastEvent
	s.mutex.Unlock()

	loaded := 0
	channels := s.source.Channels()
	for _, channel := range channels {
		if messages, ok := s.source.Messages(channel.ID); ok {
			loaded += len(messages)
		}
	}

	s.writeJSON(w, StateView{
		Connection:    s.source.State().String(),
		LastChange:    humanize.Time(lastChange),
		LastEvent:     lastEvent,
		Users:         humanize.Comma(int64(len(s.source.Users()))),
		Channels:      humanize.Comma(int64(len(channels))),
		LoadedHistory: humanize.Comma(int64(loaded)),
	})
}

func (s *Server) users(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.source.Users())
}

func (s *Server) channels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.source.Channels())
}

func (s *Server) channel(w http.ResponseWriter, r *http.Request) {
	channel, ok := s.source.Channel(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "Unknown channel", http.StatusNotFound)
		return
	}
	s.writeJSON(w, channel)
}

func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	if _, ok := s.source.Channel(channelID); !ok {
		http.Error(w, "Unknown channel", http.StatusNotFound)
		return
	}

	messages, err := s.source.LoadMessages(r.Context(), channelID)
	if err != nil {
		s.sugar.Warnf("Loading messages of channel ID [%s] failed: %v", channelID, err)
		http.Error(w, "Loading history failed", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, messages)
}

// Serve listens on address until ctx is done.
func Serve(ctx context.Context, sugar *zap.SugaredLogger, address string, handler http.Handler) error {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	sugar.Infof("Inspect the session on http://%s/state", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
