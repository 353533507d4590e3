package store

import "github.com/lcrispim/hush/internal/status"

// Chat is the persisted record of one conversation. Content fields hold
// ciphertext; everything else is non-sensitive metadata usable for sorting
// and filtering without decryption.
type Chat struct {
	ID                  string
	Title               string
	LastOpenedAt        int64
	UnreadCount         int
	ScrollMessageID     string
	DraftVersion        int64
	DraftCiphertext     []byte
	FollowupsCiphertext []byte
	// MetadataRev increases monotonically; upserts carrying an older revision
	// are discarded.
	MetadataRev int64
	CreatedAt   int64
	UpdatedAt   int64
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is the persisted record of one message. Seq is the server-assigned
// ordering key within the chat, independent of wall-clock time.
type Message struct {
	ChatID          string
	MessageID       string
	ParentMessageID string // for assistant messages, the user message answered
	Role            string
	Status          status.Message
	Seq             int64
	BodyCiphertext  []byte
	Category        string
	Sender          string
	CreatedAt       int64
	UpdatedAt       int64
}

// Suggestion kinds.
const (
	SuggestionNewChat = "new_chat"
)

// Suggestion is an encrypted suggestion entry with a stable identity.
type Suggestion struct {
	ID             string
	Kind           string
	BodyCiphertext []byte
	CreatedAt      int64
}

// Draft is the decoded draft state of a chat.
type Draft struct {
	ChatID     string
	Ciphertext []byte
	Version    int64
}
