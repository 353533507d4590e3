// Package sync owns the client's view of relay truth: the phased bootstrap,
// ingestion of durable events into the local store, and the outbound intent
// path with its offline semantics.
package sync

import (
	"context"

	"github.com/google/uuid"
	"github.com/lcrispim/hush/internal/bus"
	"github.com/lcrispim/hush/internal/crypto"
	"github.com/lcrispim/hush/internal/protocol"
	"github.com/lcrispim/hush/internal/relay"
	"github.com/lcrispim/hush/internal/session"
	"github.com/lcrispim/hush/internal/status"
	"github.com/lcrispim/hush/internal/store"
	"go.uber.org/zap"
)

// Sender is the outbound half of the relay connection.
type Sender interface {
	Send(ctx context.Context, intent protocol.OutboundIntent) error
	Connected() bool
}

// Checkpoint key for the last reconciled snapshot.
const checkpointSnapshot = "last_snapshot"

// Engine ingests relay events into the store and drives the bootstrap phase
// machine. It subscribes to "relay." events on the bus; streaming chunks and
// other active-chat concerns are left to the coordinator, which subscribes
// independently.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	phases *status.PhaseMachine
	sess   *session.Context
	relay  Sender
	logger *zap.Logger

	pending   pendingCell
	activePin func() string
	cancel    context.CancelFunc
}

// NewEngine creates a sync engine.
func NewEngine(db *store.DB, b *bus.Bus, phases *status.PhaseMachine, sess *session.Context, sender Sender, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		bus:    b,
		phases: phases,
		sess:   sess,
		relay:  sender,
		logger: logger,
	}
}

// SetActivePinFunc installs the coordinator's view of which chat is pinned
// active. The pending set-active-chat flush revalidates against it.
func (e *Engine) SetActivePinFunc(fn func() string) {
	e.activePin = fn
}

// Bootstrap performs the local-ready phase: read the cached chat list so the
// UI can render instantly, before any relay traffic.
func (e *Engine) Bootstrap(ctx context.Context) {
	chats, err := e.db.ListChats(0, 0)
	if err != nil {
		// Degrade to an empty list; reconciliation will refill.
		e.logger.Warn("local cache read failed", zap.Error(err))
		chats = nil
	}
	if err := e.phases.Advance(status.LocalReady); err != nil {
		e.logger.Warn("phase advance failed", zap.Error(err))
		return
	}
	e.bus.Emit("sync.local_ready", chats)
}

// Start subscribes to relay events and logout requests on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	relayCh, unsubRelay := e.bus.Subscribe("relay.", 256)
	logoutCh, unsubLogout := e.bus.Subscribe("session.logout", 1)

	go func() {
		defer unsubRelay()
		defer unsubLogout()
		for {
			select {
			case evt := <-relayCh:
				e.handleBusEvent(ctx, evt)
			case <-logoutCh:
				e.Logout()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Logout destroys all persisted state for the profile, drops the session key,
// and resets the bootstrap phases so the next login starts cold.
func (e *Engine) Logout() {
	e.phases.Reset()
	e.pending.Take()
	if err := e.db.Wipe(); err != nil {
		e.logger.Warn("store wipe failed", zap.Error(err))
	}
	e.sess.Logout()
	e.logger.Info("logged out, local state wiped")
	e.bus.Emit("sync.logged_out", nil)
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleBusEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case relay.KindConnected:
		e.onReconnect(ctx)
	case relay.KindDisconnected:
		if n, err := e.db.MarkWaiting(); err != nil {
			e.logger.Warn("mark waiting failed", zap.Error(err))
		} else if n > 0 {
			e.logger.Info("messages parked for reconnect", zap.Int64("count", n))
		}
		e.bus.Emit("sync.disconnected", nil)
	case relay.KindEvent:
		inbound, ok := evt.Payload.(protocol.InboundEvent)
		if !ok {
			return
		}
		e.handleEvent(ctx, inbound)
	}
}

func (e *Engine) onReconnect(ctx context.Context) {
	if n, err := e.db.RequeueWaiting(); err != nil {
		e.logger.Warn("requeue waiting failed", zap.Error(err))
	} else if n > 0 {
		e.logger.Info("messages requeued after reconnect", zap.Int64("count", n))
	}

	// Flush the pending active-chat notification exactly once, and only if
	// that chat is still the pinned one.
	if chatID, ok := e.pending.Take(); ok {
		if e.activePin != nil && e.activePin() != chatID {
			e.logger.Debug("dropping stale pending active-chat", zap.String("chat_id", chatID))
		} else if err := e.relay.Send(ctx, protocol.SetActiveChat{ChatID: chatID}); err != nil {
			// Connection flapped again; re-arm for the next reconnect.
			e.pending.Set(chatID)
		}
	}

	e.bus.Emit("sync.connected", nil)
}

// handleEvent ingests durable relay events. Unhandled variants belong to the
// coordinator.
func (e *Engine) handleEvent(ctx context.Context, evt protocol.InboundEvent) {
	switch ev := evt.(type) {
	case *protocol.SyncSnapshot:
		e.ingestSnapshot(ev)
	case *protocol.ChatUpdated:
		e.ingestChatUpdated(ev)
	case *protocol.MessageStatusChanged:
		e.ingestStatusChange(ev)
	case *protocol.ChatDeleted:
		if err := e.db.DeleteChat(ev.ChatID); err != nil {
			e.logger.Warn("delete chat failed", zap.Error(err), zap.String("chat_id", ev.ChatID))
		}
		e.bus.Emit("chat.deleted", ev.ChatID)
	case *protocol.DraftUpdated:
		applied, err := e.db.SaveDraft(ev.ChatID, ev.Ciphertext, ev.Version)
		if err != nil {
			e.logger.Warn("apply server draft failed", zap.Error(err), zap.String("chat_id", ev.ChatID))
			return
		}
		if applied {
			e.bus.Emit("draft.updated", ev.ChatID)
		} else {
			e.logger.Debug("stale server draft discarded",
				zap.String("chat_id", ev.ChatID), zap.Int64("version", ev.Version))
		}
	case *protocol.FullSyncReady:
		e.ingestFullSyncReady(ev)
	}
}

func (e *Engine) ingestSnapshot(ev *protocol.SyncSnapshot) {
	for i := range ev.Chats {
		c := chatFromMeta(&ev.Chats[i])
		if err := e.db.UpsertChat(c); err != nil {
			e.logger.Warn("reconcile chat failed", zap.Error(err), zap.String("chat_id", c.ID))
		}
	}
	if ev.Checkpoint != "" {
		if err := e.db.SetCheckpoint(checkpointSnapshot, ev.Checkpoint); err != nil {
			e.logger.Warn("checkpoint write failed", zap.Error(err))
		}
	}
	if e.phases.Current() == status.LocalReady {
		if err := e.phases.Advance(status.Reconciled); err != nil {
			e.logger.Warn("phase advance failed", zap.Error(err))
		}
	}
	e.bus.Emit("sync.reconciled", len(ev.Chats))
}

func (e *Engine) ingestChatUpdated(ev *protocol.ChatUpdated) {
	if ev.Chat != nil {
		if err := e.db.UpsertChat(chatFromMeta(ev.Chat)); err != nil {
			e.logger.Warn("upsert chat failed", zap.Error(err), zap.String("chat_id", ev.ChatID))
		}
		e.bus.Emit("chat.updated", ev.ChatID)
	}
	if ev.Message != nil {
		m := messageFromData(ev.ChatID, ev.Message)
		if err := e.db.UpsertMessage(m); err != nil {
			e.logger.Warn("upsert message failed", zap.Error(err), zap.String("message_id", m.MessageID))
		}
		e.bus.Emit("message.upserted", m)
	}
	if ev.ReplaceMessages {
		msgs := make([]store.Message, 0, len(ev.Messages))
		for i := range ev.Messages {
			msgs = append(msgs, *messageFromData(ev.ChatID, &ev.Messages[i]))
		}
		if err := e.db.ReplaceMessages(ev.ChatID, msgs); err != nil {
			e.logger.Warn("replace messages failed", zap.Error(err), zap.String("chat_id", ev.ChatID))
		}
		e.bus.Emit("message.replaced", ev.ChatID)
	}
}

func (e *Engine) ingestStatusChange(ev *protocol.MessageStatusChanged) {
	if !status.Valid(ev.Status) {
		e.logger.Warn("unknown status in event",
			zap.String("status", string(ev.Status)), zap.String("message_id", ev.MessageID))
		return
	}
	// Re-read current state immediately before writing; the store's merge
	// discards regressions, so a stale event is a no-op rather than a rollback.
	cur, err := e.db.GetMessage(ev.ChatID, ev.MessageID)
	if err != nil {
		e.logger.Warn("status read failed", zap.Error(err), zap.String("message_id", ev.MessageID))
		return
	}
	if cur == nil {
		e.logger.Debug("status change for unknown message dropped", zap.String("message_id", ev.MessageID))
		return
	}
	if !status.CanAdvance(cur.Status, ev.Status) {
		e.logger.Debug("backward status transition dropped",
			zap.String("message_id", ev.MessageID),
			zap.String("from", string(cur.Status)), zap.String("to", string(ev.Status)))
		return
	}
	cur.Status = ev.Status
	if err := e.db.UpsertMessage(cur); err != nil {
		e.logger.Warn("status write failed", zap.Error(err), zap.String("message_id", ev.MessageID))
		return
	}
	if ev.Chat != nil {
		if err := e.db.UpsertChat(chatFromMeta(ev.Chat)); err != nil {
			e.logger.Warn("upsert chat failed", zap.Error(err), zap.String("chat_id", ev.ChatID))
		}
	}
	e.bus.Emit("message.status_changed", ev)
}

func (e *Engine) ingestFullSyncReady(ev *protocol.FullSyncReady) {
	// New-chat suggestions are account-scoped, so they are sealed under the
	// master key rather than a chat key.
	if masterKey, err := e.sess.MasterKey(); err == nil && len(ev.Suggestions) > 0 {
		list := make([]store.Suggestion, 0, len(ev.Suggestions))
		for _, s := range ev.Suggestions {
			ct, err := crypto.SealString(masterKey, s.Text)
			if err != nil {
				e.logger.Warn("seal suggestion failed", zap.Error(err))
				continue
			}
			id := s.ID
			if id == "" {
				id = uuid.New().String()
			}
			list = append(list, store.Suggestion{ID: id, Kind: store.SuggestionNewChat, BodyCiphertext: ct})
		}
		if err := e.db.ReplaceSuggestions(store.SuggestionNewChat, list); err != nil {
			e.logger.Warn("replace suggestions failed", zap.Error(err))
		}
	}

	if e.phases.Current() == status.Reconciled {
		if err := e.phases.Advance(status.FullSyncReady); err != nil {
			e.logger.Warn("phase advance failed", zap.Error(err))
		}
	}
	e.bus.Emit("sync.full_sync_ready", nil)
}

// NotifyActiveChat sends the set-active-chat intent, or parks it in the
// single-slot pending cell while disconnected.
func (e *Engine) NotifyActiveChat(ctx context.Context, chatID string) {
	if err := e.relay.Send(ctx, protocol.SetActiveChat{ChatID: chatID}); err != nil {
		e.pending.Set(chatID)
	}
}

// SendIntent writes a best-effort intent (scroll bookmarks, read counters,
// suggestion deletion). Failures while offline are dropped: the next full
// sync carries the same information.
func (e *Engine) SendIntent(ctx context.Context, intent protocol.OutboundIntent) {
	if err := e.relay.Send(ctx, intent); err != nil {
		e.logger.Debug("best-effort intent dropped", zap.Error(err))
	}
}

func chatFromMeta(m *protocol.ChatMeta) *store.Chat {
	return &store.Chat{
		ID:              m.ID,
		Title:           m.Title,
		UnreadCount:     m.UnreadCount,
		ScrollMessageID: m.ScrollMessageID,
		LastOpenedAt:    m.LastOpenedAt,
		MetadataRev:     m.MetadataRev,
	}
}

func messageFromData(chatID string, d *protocol.MessageData) *store.Message {
	st := d.Status
	if !status.Valid(st) {
		st = status.Synced
	}
	return &store.Message{
		ChatID:          chatID,
		MessageID:       d.ID,
		ParentMessageID: d.ParentMessageID,
		Role:            d.Role,
		Status:          st,
		Seq:             d.Seq,
		BodyCiphertext:  d.Ciphertext,
		Category:        d.Category,
		Sender:          d.Sender,
		CreatedAt:       d.CreatedAt,
	}
}
