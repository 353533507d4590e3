// Package protocol defines the closed set of inbound events and outbound
// intents exchanged with the relay, plus the JSON envelope codec. The relay
// is content-blind: message bodies and drafts cross the wire as ciphertext,
// AI-generated content arrives as plaintext over the secured channel and is
// encrypted client-side before it is persisted or pushed back.
//
// Events and intents are tagged variants dispatched by type switch, so a
// handler that forgets a case is visible at review rather than failing as a
// missed string key at runtime.
package protocol

import "github.com/lcrispim/hush/internal/status"

// InboundEvent is implemented by every event the relay can deliver.
type InboundEvent interface {
	isInboundEvent()
}

// ChatMeta is chat metadata as carried on the wire.
type ChatMeta struct {
	ID              string `json:"id"`
	Title           string `json:"title,omitempty"`
	UnreadCount     int    `json:"unread_count,omitempty"`
	ScrollMessageID string `json:"scroll_message_id,omitempty"`
	LastOpenedAt    int64  `json:"last_opened_at,omitempty"`
	MetadataRev     int64  `json:"metadata_rev"`
}

// MessageData is a full message record as carried on the wire. Ciphertext is
// the E2E-encrypted body; the relay stores and forwards it without reading it.
type MessageData struct {
	ID              string         `json:"id"`
	ParentMessageID string         `json:"parent_message_id,omitempty"`
	Role            string         `json:"role"`
	Status          status.Message `json:"status"`
	Seq             int64          `json:"seq"`
	Ciphertext      []byte         `json:"ciphertext,omitempty"`
	Category        string         `json:"category,omitempty"`
	Sender          string         `json:"sender,omitempty"`
	CreatedAt       int64          `json:"created_at,omitempty"`
}

// SuggestionData is one suggestion entry as carried on the wire.
type SuggestionData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ChatUpdated carries optional full chat metadata, a single new message, or a
// full message-list replacement. Exactly the fields present are applied.
type ChatUpdated struct {
	ChatID   string        `json:"chat_id"`
	Chat     *ChatMeta     `json:"chat,omitempty"`
	Message  *MessageData  `json:"message,omitempty"`
	Messages []MessageData `json:"messages,omitempty"`
	// ReplaceMessages distinguishes "full replacement" from "empty batch".
	ReplaceMessages bool `json:"replace_messages,omitempty"`
}

// MessageStatusChanged reports a lifecycle transition for one message.
type MessageStatusChanged struct {
	ChatID    string         `json:"chat_id"`
	MessageID string         `json:"message_id"`
	Status    status.Message `json:"status"`
	Chat      *ChatMeta      `json:"chat,omitempty"`
}

// MessageChunk is one increment of a streamed AI response. Content is the
// cumulative text generated so far, never a delta, so replay is idempotent.
type MessageChunk struct {
	ChatID          string `json:"chat_id"`
	MessageID       string `json:"message_id"`
	ParentMessageID string `json:"parent_message_id"`
	Seq             int64  `json:"seq"`
	Content         string `json:"content"`
	Final           bool   `json:"final"`
}

// TaskInitiated confirms an AI task was started for a user message.
type TaskInitiated struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// AssistantTyping signals the assistant began answering the given user
// message. Decoupled from content: it also confirms the user message was
// accepted.
type AssistantTyping struct {
	ChatID          string `json:"chat_id"`
	ParentMessageID string `json:"parent_message_id"`
	Label           string `json:"label,omitempty"`
}

// TaskEnded signals the AI task for a chat finished (success or not).
type TaskEnded struct {
	ChatID string `json:"chat_id"`
}

// ChatDeleted signals a chat was deleted on another device.
type ChatDeleted struct {
	ChatID string `json:"chat_id"`
}

// PostProcessingCompleted carries freshly computed follow-up suggestions for
// a chat, replacing the previous set wholesale.
type PostProcessingCompleted struct {
	ChatID    string   `json:"chat_id"`
	Followups []string `json:"followups"`
}

// FullSyncReady marks the end of bootstrap and carries derived artifacts that
// depend on full history, such as recomputed new-chat suggestions.
type FullSyncReady struct {
	Suggestions []SuggestionData `json:"suggestions,omitempty"`
}

// SyncSnapshot is the server's authoritative chat list, delivered during the
// reconcile phase of bootstrap.
type SyncSnapshot struct {
	Chats      []ChatMeta `json:"chats"`
	Checkpoint string     `json:"checkpoint,omitempty"`
}

// DraftUpdated carries a server-known draft for a chat. Applied only if
// Version is not older than the locally known draft version.
type DraftUpdated struct {
	ChatID     string `json:"chat_id"`
	Ciphertext []byte `json:"ciphertext"`
	Version    int64  `json:"version"`
}

func (ChatUpdated) isInboundEvent()             {}
func (MessageStatusChanged) isInboundEvent()    {}
func (MessageChunk) isInboundEvent()            {}
func (TaskInitiated) isInboundEvent()           {}
func (AssistantTyping) isInboundEvent()         {}
func (TaskEnded) isInboundEvent()               {}
func (ChatDeleted) isInboundEvent()             {}
func (PostProcessingCompleted) isInboundEvent() {}
func (FullSyncReady) isInboundEvent()           {}
func (SyncSnapshot) isInboundEvent()            {}
func (DraftUpdated) isInboundEvent()            {}
