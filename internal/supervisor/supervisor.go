// Package supervisor owns the lifecycle of the stream connection.
package supervisor

import (
	"chatsync/internal/hub"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/wire"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	DefaultHeartbeat      = 15 * time.Second
	DefaultReconnectDelay = time.Second

	systemUserID   = "USLACKBOT"
	systemUserName = "slackbot"
)

// Executor runs callbacks on the session's serial context.
type Executor interface {
	Post(fn func())
}

type UserLister interface {
	ListUsers() []models.User
}

type Options struct {
	Heartbeat      time.Duration
	ReconnectDelay time.Duration

	// HasCredential gates the reconnect after a drop.
	HasCredential func() bool
	// OnFrame receives every frame of the current connection, on the executor.
	OnFrame func(frame []byte)
	// OnReconnect runs when the reconnect timer fires. It must not block.
	OnReconnect func()
}

type Supervisor struct {
	sugar     *zap.SugaredLogger
	transport Transport
	exec      Executor
	hub       hub.Emitter
	users     UserLister
	metrics   metrics.Recorder
	opts      Options

	mutex          sync.Mutex
	state          State
	generation     uint64
	session        Session
	connectionID   string
	nextID         int64
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer
}

func New(sugar *zap.SugaredLogger, transport Transport, exec Executor, emitter hub.Emitter, users UserLister, opts Options, recorder metrics.Recorder) *Supervisor {
	if recorder == nil {
		recorder = metrics.Noop()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HasCredential == nil {
		opts.HasCredential = func() bool { return false }
	}

	return &Supervisor{
		sugar:     sugar,
		transport: transport,
		exec:      exec,
		hub:       emitter,
		users:     users,
		metrics:   recorder,
		opts:      opts,
	}
}

func (s *Supervisor) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

func (s *Supervisor) PendingReconnect() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.reconnectTimer != nil
}

// Connect replaces any current connection with a new one to url. Callbacks of
// replaced connections are ignored. A cancelled ctx leaves the current state alone.
func (s *Supervisor) Connect(ctx context.Context, url string) error {
	s.mutex.Lock()
	if err := ctx.Err(); err != nil {
		s.mutex.Unlock()
		return err
	}
	previous := s.teardownLocked()
	s.generation++
	generation := s.generation
	s.state = Connecting
	s.connectionID = uuid.NewString()
	s.nextID = 0
	connectionID := s.connectionID
	s.mutex.Unlock()

	if previous != nil {
		previous.Close()
	}
	s.metrics.SetConnectionState(int(Connecting))
	s.sugar.Debugf("Opening connection [%s]", connectionID)

	session, err := s.transport.Open(ctx, url, Events{
		OnOpen: func(session Session) {
			s.exec.Post(func() { s.handleOpen(generation, session) })
		},
		OnFrame: func(frame []byte) {
			s.exec.Post(func() { s.handleFrame(generation, frame) })
		},
		OnClose: func(err error) {
			s.exec.Post(func() { s.handleClose(generation, err) })
		},
	})
	if err != nil {
		s.sugar.Warnf("Connection [%s] failed to open: %v", connectionID, err)
		s.exec.Post(func() { s.handleClose(generation, err) })
		return err
	}

	s.mutex.Lock()
	if s.generation != generation {
		s.mutex.Unlock()
		session.Close()
		return nil
	}
	s.session = session
	s.mutex.Unlock()
	return nil
}

// Stop closes the connection and cancels any pending reconnect. Safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.mutex.Lock()
	session := s.teardownLocked()
	s.generation++
	wasConnected := s.state != Disconnected
	s.state = Disconnected
	s.mutex.Unlock()

	if session != nil {
		session.Close()
	}
	if wasConnected {
		s.metrics.SetConnectionState(int(Disconnected))
		s.sugar.Debug("Connection stopped")
	}
}

// teardownLocked stops timers and detaches the session, which the caller closes
// after releasing the mutex.
func (s *Supervisor) teardownLocked() Session {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.stopHeartbeatLocked()

	session := s.session
	s.session = nil
	return session
}

func (s *Supervisor) stopHeartbeatLocked() {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
}

func (s *Supervisor) handleOpen(generation uint64, session Session) {
	s.mutex.Lock()
	if s.generation != generation {
		s.mutex.Unlock()
		return
	}
	s.session = session
	s.state = Connected
	stop := make(chan struct{})
	s.heartbeatStop = stop
	connectionID := s.connectionID
	s.mutex.Unlock()

	go s.heartbeat(generation, stop)

	s.metrics.SetConnectionState(int(Connected))
	s.sugar.Infof("Connection [%s] established", connectionID)
	s.hub.Emit(hub.Connected, nil)

	s.subscribePresence(generation)
}

func (s *Supervisor) heartbeat(generation uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.exec.Post(func() { s.send(generation, wire.Outbound{Type: "ping"}) })
		}
	}
}

func (s *Supervisor) subscribePresence(generation uint64) {
	var ids []string
	for _, user := range s.users.ListUsers() {
		if user.ID == systemUserID || strings.EqualFold(user.DisplayName, systemUserName) {
			continue
		}
		ids = append(ids, user.ID)
	}
	s.send(generation, wire.Outbound{Type: "presence_sub", IDs: ids})
}

// send assigns the next outbound id and writes the frame if the connection is current.
func (s *Supervisor) send(generation uint64, frame wire.Outbound) {
	s.mutex.Lock()
	if s.generation != generation || s.state != Connected || s.session == nil {
		s.mutex.Unlock()
		return
	}
	s.nextID++
	frame.ID = s.nextID
	session := s.session
	connectionID := s.connectionID
	s.mutex.Unlock()

	if err := session.Send(frame); err != nil {
		s.sugar.Warnf("Connection [%s] failed to send [%s]: %v", connectionID, frame.Type, err)
	}
}

func (s *Supervisor) handleFrame(generation uint64, frame []byte) {
	s.mutex.Lock()
	current := s.generation == generation
	s.mutex.Unlock()

	if current && s.opts.OnFrame != nil {
		s.opts.OnFrame(frame)
	}
}

func (s *Supervisor) handleClose(generation uint64, err error) {
	s.mutex.Lock()
	if s.generation != generation {
		s.mutex.Unlock()
		return
	}
	s.stopHeartbeatLocked()
	s.session = nil
	s.state = Disconnected
	s.generation++
	connectionID := s.connectionID
	s.mutex.Unlock()

	if err != nil {
		s.sugar.Warnf("Connection [%s] closed: %v", connectionID, err)
	} else {
		s.sugar.Infof("Connection [%s] closed", connectionID)
	}
	s.metrics.SetConnectionState(int(Disconnected))
	s.hub.Emit(hub.Reconnecting, nil)

	if s.opts.HasCredential() {
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms a single-shot timer, replacing any pending one.
func (s *Supervisor) scheduleReconnect() {
	s.mutex.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	generation := s.generation
	s.reconnectTimer = time.AfterFunc(s.opts.ReconnectDelay, func() {
		s.exec.Post(func() { s.fireReconnect(generation) })
	})
	s.mutex.Unlock()

	s.metrics.IncReconnectScheduled()
	s.sugar.Debugf("Reconnect scheduled in %s", s.opts.ReconnectDelay)
}

func (s *Supervisor) fireReconnect(generation uint64) {
	s.mutex.Lock()
	if s.generation != generation || s.reconnectTimer == nil {
		s.mutex.Unlock()
		return
	}
	s.reconnectTimer = nil
	s.mutex.Unlock()

	s.hub.Emit(hub.Reconnecting, nil)
	if s.opts.OnReconnect != nil {
		s.opts.OnReconnect()
	}
}
