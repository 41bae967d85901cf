// Package syncer runs the cold start: users, conversations, then the stream.
package syncer

import (
	"chatsync/internal/api"
	"chatsync/internal/hub"
	"chatsync/internal/metrics"
	"chatsync/internal/reconciler"
	"chatsync/internal/store"
	"chatsync/internal/wire"
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type API interface {
	UsersList(ctx context.Context) ([]wire.User, error)
	ConversationsList(ctx context.Context, cursor string) (wire.ConversationPage, error)
	ConversationInfo(ctx context.Context, method string, channelID string) (wire.Conversation, error)
	RTMConnect(ctx context.Context) (string, error)
}

type Connector interface {
	Connect(ctx context.Context, url string) error
}

// Executor runs fn on the session's serial context and waits for it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

type Syncer struct {
	sugar     *zap.SugaredLogger
	api       API
	store     *store.Store
	hub       hub.Emitter
	exec      Executor
	connector Connector
	metrics   metrics.Recorder
}

func New(sugar *zap.SugaredLogger, client API, st *store.Store, emitter hub.Emitter, exec Executor, connector Connector, recorder metrics.Recorder) *Syncer {
	if recorder == nil {
		recorder = metrics.Noop()
	}
	return &Syncer{
		sugar:     sugar,
		api:       client,
		store:     st,
		hub:       emitter,
		exec:      exec,
		connector: connector,
		metrics:   recorder,
	}
}

// Run performs the whole cold start. Only a failed user load or a failed
// rtm.connect abort it; conversation failures are logged and skipped. Once ctx is
// cancelled nothing more reaches the store, the hub or the connector.
func (s *Syncer) Run(ctx context.Context) error {
	start := time.Now()

	if err := s.loadUsers(ctx); err != nil {
		s.metrics.ObserveColdStart(time.Since(start), outcome(ctx, "users_failed"))
		return err
	}

	if err := s.loadConversations(ctx); err != nil {
		s.metrics.ObserveColdStart(time.Since(start), "cancelled")
		return err
	}

	if err := s.connect(ctx); err != nil {
		s.metrics.ObserveColdStart(time.Since(start), outcome(ctx, "connect_failed"))
		return err
	}

	s.metrics.ObserveColdStart(time.Since(start), "ok")
	s.sugar.Infof("Synchronised in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func outcome(ctx context.Context, failed string) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	return failed
}

// apply runs fn on the serial context unless ctx is cancelled by the time it gets
// there. Work queued behind a cancellation, such as a logout, always wins.
func (s *Syncer) apply(ctx context.Context, fn func()) error {
	var cancelled error
	if err := s.exec.Do(ctx, func() {
		if cancelled = ctx.Err(); cancelled != nil {
			return
		}
		fn()
	}); err != nil {
		return err
	}
	return cancelled
}

func (s *Syncer) loadUsers(ctx context.Context) error {
	list, err := s.api.UsersList(ctx)
	if err != nil {
		s.sugar.Errorf("Loading users failed: %v", err)
		_ = s.apply(ctx, func() {
			s.hub.Emit(hub.LoadUsersFailed, hub.NewFailure("users.list", "", err))
		})
		return err
	}

	users := reconciler.ParseUsers(list)
	s.sugar.Debugf("Loaded [%d] users", len(users))

	return s.apply(ctx, func() {
		s.store.UpsertUsers(users)
		s.hub.Emit(hub.LoadUsersSucceeded, users)
	})
}

func (s *Syncer) loadConversations(ctx context.Context) error {
	cursor := ""
	for pageNumber := 1; ; pageNumber++ {
		page, err := s.api.ConversationsList(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.sugar.Warnf("Loading conversation page [%d] failed, continuing without the rest: %v", pageNumber, err)
			return nil
		}

		details := s.fetchDetails(ctx, page.Channels)

		if err := s.apply(ctx, func() {
			selfID := s.store.SelfID()
			for _, conversation := range details {
				if conversation == nil {
					continue
				}
				s.store.UpsertChannel(reconciler.ParseConversation(*conversation, s.store, selfID))
			}
		}); err != nil {
			return err
		}

		cursor = page.ResponseMetadata.NextCursor
		if cursor == "" {
			return nil
		}
	}
}

// fetchDetails looks up every conversation of a page concurrently and waits for
// all of them. Failed lookups leave a nil slot.
func (s *Syncer) fetchDetails(ctx context.Context, summaries []wire.Conversation) []*wire.Conversation {
	details := make([]*wire.Conversation, len(summaries))

	var group errgroup.Group
	for i, summary := range summaries {
		group.Go(func() error {
			method := api.InfoMethod(summary)
			info, err := s.api.ConversationInfo(ctx, method, summary.ID)
			if err != nil {
				s.sugar.Warnf("Skipping conversation ID [%s], %s failed: %v", summary.ID, method, err)
				return nil
			}
			merged := withKind(info, summary)
			details[i] = &merged
			return nil
		})
	}
	_ = group.Wait()

	return details
}

// withKind keeps the listing's kind flags when the detail lookup omits them.
func withKind(info wire.Conversation, summary wire.Conversation) wire.Conversation {
	if info.ID == "" {
		info.ID = summary.ID
	}
	if !info.IsChannel && !info.IsGroup && !info.IsIM && !info.IsMPIM {
		info.IsChannel = summary.IsChannel
		info.IsGroup = summary.IsGroup
		info.IsIM = summary.IsIM
		info.IsMPIM = summary.IsMPIM
	}
	if info.User == "" {
		info.User = summary.User
	}
	return info
}

func (s *Syncer) connect(ctx context.Context) error {
	url, err := s.api.RTMConnect(ctx)
	if err != nil {
		s.sugar.Errorf("rtm.connect failed: %v", err)
		_ = s.apply(ctx, func() {
			s.hub.Emit(hub.Disconnected, nil)
			s.hub.Emit(hub.InitFailed, hub.NewFailure("rtm.connect", "", err))
		})
		return err
	}

	// loaded histories belong to the previous connection and must be gone
	// before the new one delivers frames
	if err := s.apply(ctx, s.store.ClearMessages); err != nil {
		return err
	}

	if err := s.connector.Connect(ctx, url); err != nil {
		_ = s.apply(ctx, func() {
			s.hub.Emit(hub.InitFailed, hub.NewFailure("connect", "", err))
		})
		return err
	}

	return s.apply(ctx, func() {
		s.hub.Emit(hub.InitSucceeded, s.store.ListChannels())
	})
}
