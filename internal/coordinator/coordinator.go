// Package coordinator owns the active-chat surface: which chat is open, the
// decrypted message list rendered for it, the typing indicator, and the
// streaming reconciliation that folds AI chunks into that view. Presentation
// talks only to this package, never to the store or the sync engine.
package coordinator

import (
	"context"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/lcrispim/hush/internal/bus"
	"github.com/lcrispim/hush/internal/crypto"
	"github.com/lcrispim/hush/internal/draft"
	"github.com/lcrispim/hush/internal/keyring"
	"github.com/lcrispim/hush/internal/protocol"
	"github.com/lcrispim/hush/internal/relay"
	"github.com/lcrispim/hush/internal/status"
	"github.com/lcrispim/hush/internal/store"
	"github.com/lcrispim/hush/internal/sync"
	"go.uber.org/zap"
)

// UnavailablePlaceholder is rendered in place of a body that cannot be
// decrypted (missing key, corrupt ciphertext).
const UnavailablePlaceholder = "[unavailable]"

// Message is one entry of the rendered message list, body already decrypted.
type Message struct {
	ID       string
	ParentID string
	Role     string
	Status   status.Message
	// Seq is the chat-order key: server-assigned once synced, locally
	// assigned one past the tail until then.
	Seq     int64
	Content string
}

// Syncer is the slice of the sync engine the coordinator drives.
type Syncer interface {
	NotifyActiveChat(ctx context.Context, chatID string)
	SendIntent(ctx context.Context, intent protocol.OutboundIntent)
}

// Coordinator mediates between the active chat's view state and the rest of
// the core. All mutable state is guarded by mu; the event loop goroutine and
// the public API share it.
type Coordinator struct {
	db     *store.DB
	bus    *bus.Bus
	syncer Syncer
	sender sync.Sender
	keys   *keyring.Keyring
	drafts *draft.Manager
	logger *zap.Logger

	// persistDebounce bounds how often a streaming message is flushed to the
	// store. Zero flushes on every chunk.
	persistDebounce time.Duration

	mu          gosync.Mutex
	current     *store.Chat
	messages    []Message
	typing      string
	justCreated map[string]bool
	lastPersist map[string]time.Time
	// pendingCompletion holds a completion intent that failed to send;
	// single slot, flushed once on reconnect.
	pendingCompletion *protocol.CompletedResponse

	cancel context.CancelFunc
}

// New creates a coordinator.
func New(db *store.DB, b *bus.Bus, syncer Syncer, sender sync.Sender, keys *keyring.Keyring, drafts *draft.Manager, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		db:          db,
		bus:         b,
		syncer:      syncer,
		sender:      sender,
		keys:        keys,
		drafts:      drafts,
		logger:      logger,
		justCreated: make(map[string]bool),
		lastPersist: make(map[string]time.Time),
	}
}

// SetPersistDebounce bounds store writes during streaming to at most one per
// interval and message; the final chunk always persists.
func (c *Coordinator) SetPersistDebounce(d time.Duration) {
	c.persistDebounce = d
}

// Start subscribes to relay events on the bus.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	ch, unsub := c.bus.Subscribe("relay.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.handleBusEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the coordinator.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// ActivePin returns the currently pinned chat id, or "" when no chat is open.
// The sync engine revalidates pending active-chat flushes against it.
func (c *Coordinator) ActivePin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.ID
}

// CurrentChat returns the open chat, or nil.
func (c *Coordinator) CurrentChat() *store.Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cp := *c.current
	return &cp
}

// Messages returns a snapshot of the rendered message list.
func (c *Coordinator) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// TypingIndicator returns the typing indicator text, or "" when idle.
func (c *Coordinator) TypingIndicator() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// OpenChat makes a chat the active one: loads and decrypts its messages,
// resets its unread counter, pins it, and notifies the relay so streaming is
// routed here.
func (c *Coordinator) OpenChat(ctx context.Context, chatID string) {
	chat, err := c.db.GetChat(chatID)
	if err != nil || chat == nil {
		if err != nil {
			c.logger.Warn("open chat: read failed", zap.Error(err), zap.String("chat_id", chatID))
		}
		chat = &store.Chat{ID: chatID}
	}
	msgs := c.loadMessages(chatID)

	c.mu.Lock()
	c.current = chat
	c.messages = msgs
	c.typing = ""
	c.justCreated = make(map[string]bool)
	c.lastPersist = make(map[string]time.Time)
	c.mu.Unlock()

	if err := c.db.TouchChatOpened(chatID); err != nil {
		c.logger.Warn("touch chat failed", zap.Error(err), zap.String("chat_id", chatID))
	}
	if chat.UnreadCount != 0 {
		if err := c.db.UpdateUnreadCount(chatID, 0); err != nil {
			c.logger.Warn("reset unread failed", zap.Error(err), zap.String("chat_id", chatID))
		}
		c.syncer.SendIntent(ctx, protocol.ReadStatusUpdate{ChatID: chatID, Count: 0})
	}

	c.syncer.NotifyActiveChat(ctx, chatID)
	c.bus.Emit("chat.selected", chatID)
}

// StartNewChat creates a fresh local chat, pins it, and issues exactly one
// set-active-chat notification and one selected event. The chat reaches the
// relay with the first message sent into it.
func (c *Coordinator) StartNewChat(ctx context.Context) string {
	chat := &store.Chat{ID: uuid.New().String(), LastOpenedAt: time.Now().UnixMilli()}
	if err := c.db.UpsertChat(chat); err != nil {
		// View state carries the chat until sync persists it.
		c.logger.Warn("persist new chat failed", zap.Error(err), zap.String("chat_id", chat.ID))
	}

	c.mu.Lock()
	c.current = chat
	c.messages = nil
	c.typing = ""
	c.justCreated = make(map[string]bool)
	c.lastPersist = make(map[string]time.Time)
	c.mu.Unlock()

	c.syncer.NotifyActiveChat(ctx, chat.ID)
	c.bus.Emit("chat.selected", chat.ID)
	return chat.ID
}

// SendMessage submits a user message into the active chat, creating a new
// chat first when none is open. The body is sealed under the chat key before
// it is persisted or leaves the process.
func (c *Coordinator) SendMessage(ctx context.Context, content string) {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	chatID := ""
	if cur != nil {
		chatID = cur.ID
	}
	if chatID == "" {
		chatID = c.StartNewChat(ctx)
	}

	c.mu.Lock()
	seq := int64(1)
	if c.current != nil && c.current.ID == chatID {
		seq = c.nextSeqLocked()
	}
	c.mu.Unlock()

	m := store.Message{
		ChatID:    chatID,
		MessageID: uuid.New().String(),
		Role:      store.RoleUser,
		Status:    status.Sending,
		Seq:       seq,
		CreatedAt: time.Now().UnixMilli(),
	}

	var ciphertext []byte
	key, err := c.keys.ChatKey(chatID)
	if err != nil {
		c.logger.Warn("send: no chat key", zap.Error(err), zap.String("chat_id", chatID))
	} else if ct, err := crypto.SealString(key, content); err != nil {
		c.logger.Warn("send: seal failed", zap.Error(err), zap.String("chat_id", chatID))
	} else {
		ciphertext = ct
	}
	m.BodyCiphertext = ciphertext

	sendErr := c.sender.Send(ctx, protocol.SendMessage{
		ChatID:     chatID,
		MessageID:  m.MessageID,
		Ciphertext: ciphertext,
	})
	if sendErr != nil {
		m.Status = status.WaitingForInternet
	}
	if err := c.db.UpsertMessage(&m); err != nil {
		c.logger.Warn("persist send failed", zap.Error(err), zap.String("message_id", m.MessageID))
	}
	c.drafts.Clear(chatID, true)

	c.mu.Lock()
	if c.current != nil && c.current.ID == chatID {
		c.messages = append(c.messages, Message{
			ID:      m.MessageID,
			Role:    m.Role,
			Status:  m.Status,
			Seq:     m.Seq,
			Content: content,
		})
	}
	c.mu.Unlock()
	c.bus.Emit("chat.messages_updated", chatID)
}

// ScrollTo records the scroll bookmark locally and server-side.
func (c *Coordinator) ScrollTo(ctx context.Context, chatID, messageID string) {
	if err := c.db.UpdateScrollBookmark(chatID, messageID); err != nil {
		c.logger.Warn("scroll bookmark failed", zap.Error(err), zap.String("chat_id", chatID))
	}
	c.syncer.SendIntent(ctx, protocol.ScrollPositionUpdate{ChatID: chatID, MessageID: messageID})
}

// DeleteSuggestion removes a new-chat suggestion locally and server-side.
func (c *Coordinator) DeleteSuggestion(ctx context.Context, id string) {
	if err := c.db.DeleteSuggestion(id); err != nil {
		c.logger.Warn("delete suggestion failed", zap.Error(err), zap.String("id", id))
	}
	c.syncer.SendIntent(ctx, protocol.DeleteSuggestion{ID: id})
}

// Logout clears the active-chat view and pin, then best-effort loads the
// fallback chat. Every store access tolerates failure: logout races the wipe
// of the store itself and must never raise.
func (c *Coordinator) Logout(ctx context.Context) {
	c.mu.Lock()
	c.current = nil
	c.messages = nil
	c.typing = ""
	c.justCreated = make(map[string]bool)
	c.pendingCompletion = nil
	c.mu.Unlock()

	c.syncer.NotifyActiveChat(ctx, "")
	c.drafts.Clear("", false)
	// The sync engine wipes persisted state and drops the session key.
	c.bus.Emit("session.logout", nil)

	chats, err := c.db.ListChats(1, 0)
	if err != nil || len(chats) == 0 {
		return
	}
	fallback := chats[0]
	c.mu.Lock()
	c.current = &fallback
	c.mu.Unlock()
	c.bus.Emit("chat.selected", fallback.ID)
}

func (c *Coordinator) handleBusEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case relay.KindConnected:
		c.flushCompletion(ctx)
	case relay.KindEvent:
		inbound, ok := evt.Payload.(protocol.InboundEvent)
		if !ok {
			return
		}
		c.handleEvent(ctx, inbound)
	}
}

// handleEvent covers the active-chat subset of the inbound event set; durable
// variants are ingested by the sync engine on its own subscription.
func (c *Coordinator) handleEvent(ctx context.Context, evt protocol.InboundEvent) {
	switch ev := evt.(type) {
	case *protocol.MessageChunk:
		c.handleChunk(ctx, ev)
	case *protocol.TaskInitiated:
		c.advanceMessage(ev.ChatID, ev.MessageID, status.Processing)
	case *protocol.AssistantTyping:
		c.handleTyping(ev)
	case *protocol.TaskEnded:
		c.mu.Lock()
		if c.current != nil && c.current.ID == ev.ChatID {
			c.typing = ""
		}
		c.mu.Unlock()
		c.bus.Emit("chat.typing", "")
	case *protocol.PostProcessingCompleted:
		c.handleFollowups(ev)
	case *protocol.ChatDeleted:
		c.mu.Lock()
		deleted := c.current != nil && c.current.ID == ev.ChatID
		if deleted {
			c.current = nil
			c.messages = nil
			c.typing = ""
		}
		c.mu.Unlock()
		if deleted {
			c.bus.Emit("chat.selected", "")
		}
	}
}

// handleChunk folds one streamed increment into the active chat's view.
// Content is cumulative, so applying the same chunk twice is a no-op.
func (c *Coordinator) handleChunk(ctx context.Context, ev *protocol.MessageChunk) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != ev.ChatID {
		// Background streaming is not rendered or persisted eagerly; the
		// cumulative content is re-delivered when that chat is opened.
		c.mu.Unlock()
		c.logger.Debug("chunk for background chat ignored",
			zap.String("chat_id", ev.ChatID), zap.String("message_id", ev.MessageID))
		return
	}

	idx := c.indexOf(ev.MessageID)
	created := false
	wasSynced := false
	if idx < 0 {
		if !c.firstChunkLegitimate(ev) {
			c.mu.Unlock()
			c.logger.Warn("out-of-order chunk dropped",
				zap.String("message_id", ev.MessageID), zap.Int64("seq", ev.Seq))
			return
		}
		// The chunk counter restarts per message; the chat-order seq is
		// assigned locally and overwritten by the server's on the next sync.
		c.messages = append(c.messages, Message{
			ID:       ev.MessageID,
			ParentID: ev.ParentMessageID,
			Role:     store.RoleAssistant,
			Status:   status.Streaming,
			Seq:      c.nextSeqLocked(),
			Content:  ev.Content,
		})
		idx = len(c.messages) - 1
		c.justCreated[ev.MessageID] = true
		created = true
	} else {
		m := &c.messages[idx]
		wasSynced = m.Status == status.Synced
		m.Content = ev.Content
		m.Status = status.Merge(m.Status, status.Streaming)
	}
	if ev.Final {
		c.messages[idx].Status = status.Synced
		c.typing = ""
	}
	view := c.messages[idx]
	skipPersist := !created && c.justCreated[ev.MessageID]
	if skipPersist {
		delete(c.justCreated, ev.MessageID)
	}
	c.mu.Unlock()

	c.persistChunk(ev, view, skipPersist)
	// A replayed final chunk must not emit a second completion.
	if ev.Final && !wasSynced {
		c.pushCompletion(ctx, ev)
	}
	c.bus.Emit("chat.messages_updated", ev.ChatID)
}

// firstChunkLegitimate decides whether a chunk for an unknown message may
// start a new exchange: sequence one, or a tail that is not already a
// dangling assistant placeholder. Caller holds mu.
func (c *Coordinator) firstChunkLegitimate(ev *protocol.MessageChunk) bool {
	if ev.Seq == 1 {
		return true
	}
	if len(c.messages) == 0 {
		return true
	}
	tail := c.messages[len(c.messages)-1]
	dangling := tail.Role == store.RoleAssistant && tail.Status != status.Synced
	return !dangling
}

// persistChunk writes the current view of a streamed message to the store.
// The in-memory view stays authoritative for rendering; a failed write is
// repaired the next time the chat is loaded fresh.
func (c *Coordinator) persistChunk(ev *protocol.MessageChunk, view Message, skip bool) {
	if !ev.Final {
		if skip {
			return
		}
		if c.persistDebounce > 0 {
			c.mu.Lock()
			last := c.lastPersist[ev.MessageID]
			c.mu.Unlock()
			if time.Since(last) < c.persistDebounce {
				return
			}
		}
	}
	key, err := c.keys.ChatKey(ev.ChatID)
	if err != nil {
		c.logger.Warn("chunk persist: no chat key", zap.Error(err), zap.String("chat_id", ev.ChatID))
		return
	}
	if ev.Final {
		// Persist the terminal write only when the stored status lags.
		stored, err := c.db.GetMessage(ev.ChatID, ev.MessageID)
		if err == nil && stored != nil && stored.Status == status.Synced {
			return
		}
	}
	ct, err := crypto.SealString(key, view.Content)
	if err != nil {
		c.logger.Warn("chunk persist: seal failed", zap.Error(err), zap.String("message_id", ev.MessageID))
		return
	}
	m := store.Message{
		ChatID:          ev.ChatID,
		MessageID:       ev.MessageID,
		ParentMessageID: ev.ParentMessageID,
		Role:            store.RoleAssistant,
		Status:          view.Status,
		Seq:             view.Seq,
		BodyCiphertext:  ct,
	}
	if err := c.db.UpsertMessage(&m); err != nil {
		c.logger.Warn("chunk persist failed", zap.Error(err), zap.String("message_id", ev.MessageID))
		return
	}
	c.mu.Lock()
	c.lastPersist[ev.MessageID] = time.Now()
	c.mu.Unlock()
}

// pushCompletion seals the fully assembled response and pushes it back to the
// relay. The relay never generated the content, so this copy is the only one
// it can store; the intent type is distinct from a send and never re-triggers
// generation. A failed push is parked and retried once on reconnect.
func (c *Coordinator) pushCompletion(ctx context.Context, ev *protocol.MessageChunk) {
	key, err := c.keys.ChatKey(ev.ChatID)
	if err != nil {
		c.logger.Warn("completion: no chat key", zap.Error(err), zap.String("chat_id", ev.ChatID))
		return
	}
	ct, err := crypto.SealString(key, ev.Content)
	if err != nil {
		c.logger.Warn("completion: seal failed", zap.Error(err), zap.String("message_id", ev.MessageID))
		return
	}
	intent := &protocol.CompletedResponse{
		ChatID:          ev.ChatID,
		MessageID:       ev.MessageID,
		ParentMessageID: ev.ParentMessageID,
		Seq:             ev.Seq,
		Ciphertext:      ct,
	}
	if err := c.sender.Send(ctx, *intent); err != nil {
		c.mu.Lock()
		c.pendingCompletion = intent
		c.mu.Unlock()
		c.logger.Info("completion parked for reconnect", zap.String("message_id", ev.MessageID))
	}
}

func (c *Coordinator) flushCompletion(ctx context.Context) {
	c.mu.Lock()
	intent := c.pendingCompletion
	c.pendingCompletion = nil
	c.mu.Unlock()
	if intent == nil {
		return
	}
	if err := c.sender.Send(ctx, *intent); err != nil {
		c.logger.Warn("completion retry failed, dropped", zap.Error(err), zap.String("message_id", intent.MessageID))
	}
}

// handleTyping shows the indicator and marks the originating user message
// synced: the assistant answering it doubles as acceptance confirmation.
func (c *Coordinator) handleTyping(ev *protocol.AssistantTyping) {
	label := ev.Label
	if label == "" {
		label = "Assistant is typing"
	}
	c.mu.Lock()
	if c.current != nil && c.current.ID == ev.ChatID {
		c.typing = label
	}
	c.mu.Unlock()
	c.bus.Emit("chat.typing", label)

	if ev.ParentMessageID != "" {
		c.advanceMessage(ev.ChatID, ev.ParentMessageID, status.Synced)
	}
}

// advanceMessage applies a forward-only status transition to a message, in
// the store and, when the chat is open, in the view.
func (c *Coordinator) advanceMessage(chatID, messageID string, to status.Message) {
	cur, err := c.db.GetMessage(chatID, messageID)
	if err != nil {
		c.logger.Warn("status read failed", zap.Error(err), zap.String("message_id", messageID))
	} else if cur != nil && status.CanAdvance(cur.Status, to) {
		cur.Status = to
		if err := c.db.UpsertMessage(cur); err != nil {
			c.logger.Warn("status write failed", zap.Error(err), zap.String("message_id", messageID))
		}
	}

	c.mu.Lock()
	if c.current != nil && c.current.ID == chatID {
		if idx := c.indexOf(messageID); idx >= 0 {
			m := &c.messages[idx]
			m.Status = status.Merge(m.Status, to)
		}
	}
	c.mu.Unlock()
}

// handleFollowups seals the freshly computed follow-up suggestions under the
// chat key and replaces the chat's follow-up blob wholesale.
func (c *Coordinator) handleFollowups(ev *protocol.PostProcessingCompleted) {
	key, err := c.keys.ChatKey(ev.ChatID)
	if err != nil {
		c.logger.Warn("followups: no chat key", zap.Error(err), zap.String("chat_id", ev.ChatID))
		return
	}
	ct, err := crypto.SealStrings(key, ev.Followups)
	if err != nil {
		c.logger.Warn("followups: seal failed", zap.Error(err), zap.String("chat_id", ev.ChatID))
		return
	}
	if err := c.db.ReplaceFollowups(ev.ChatID, ct); err != nil {
		c.logger.Warn("followups: store failed", zap.Error(err), zap.String("chat_id", ev.ChatID))
		return
	}
	c.bus.Emit("chat.followups_updated", ev.ChatID)
}

// loadMessages reads and decrypts a chat's messages for display. A body that
// cannot be decrypted renders as a placeholder rather than failing the load.
func (c *Coordinator) loadMessages(chatID string) []Message {
	stored, err := c.db.ListMessages(chatID, 0)
	if err != nil {
		c.logger.Warn("load messages failed", zap.Error(err), zap.String("chat_id", chatID))
		return nil
	}
	if len(stored) == 0 {
		return nil
	}
	key, keyErr := c.keys.ChatKey(chatID)

	msgs := make([]Message, 0, len(stored))
	for _, m := range stored {
		content := ""
		if len(m.BodyCiphertext) > 0 {
			if keyErr != nil {
				content = UnavailablePlaceholder
			} else if pt, err := crypto.OpenString(key, m.BodyCiphertext); err != nil {
				c.logger.Warn("message decrypt failed", zap.Error(err), zap.String("message_id", m.MessageID))
				content = UnavailablePlaceholder
			} else {
				content = pt
			}
		}
		msgs = append(msgs, Message{
			ID:       m.MessageID,
			ParentID: m.ParentMessageID,
			Role:     m.Role,
			Status:   m.Status,
			Seq:      m.Seq,
			Content:  content,
		})
	}
	return msgs
}

// nextSeqLocked returns the next chat-order sequence for a locally created
// message: one past the highest seq in the view. Caller holds mu.
func (c *Coordinator) nextSeqLocked() int64 {
	var max int64
	for i := range c.messages {
		if c.messages[i].Seq > max {
			max = c.messages[i].Seq
		}
	}
	return max + 1
}

// indexOf returns the view index of a message, or -1. Caller holds mu.
func (c *Coordinator) indexOf(messageID string) int {
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}
