package protocol

// OutboundIntent is implemented by every intent the client can send.
type OutboundIntent interface {
	isOutboundIntent()
	intentType() string
}

// SetActiveChat tells the relay which chat this device has open, so streaming
// is routed eagerly. An empty ChatID means no chat is open.
type SetActiveChat struct {
	ChatID string `json:"chat_id"`
}

// ScrollPositionUpdate records the scroll bookmark server-side so other
// devices can restore it.
type ScrollPositionUpdate struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// ReadStatusUpdate reports the chat's unread counter.
type ReadStatusUpdate struct {
	ChatID string `json:"chat_id"`
	Count  int    `json:"count"`
}

// SendMessage submits a new user message. Ciphertext is the E2E-encrypted
// body; the relay never sees plaintext.
type SendMessage struct {
	ChatID          string `json:"chat_id"`
	MessageID       string `json:"message_id"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
	Ciphertext      []byte `json:"ciphertext"`
}

// CompletedResponse pushes the fully assembled, client-encrypted assistant
// response back to the relay for durable storage. The relay never generated
// the content (zero-knowledge), so this is the only way it gets a copy.
// Distinct from SendMessage: it must never re-trigger generation.
type CompletedResponse struct {
	ChatID          string `json:"chat_id"`
	MessageID       string `json:"message_id"`
	ParentMessageID string `json:"parent_message_id"`
	Seq             int64  `json:"seq"`
	Ciphertext      []byte `json:"ciphertext"`
}

// DeleteSuggestion removes a new-chat suggestion by id.
type DeleteSuggestion struct {
	ID string `json:"id"`
}

func (SetActiveChat) isOutboundIntent()        {}
func (ScrollPositionUpdate) isOutboundIntent() {}
func (ReadStatusUpdate) isOutboundIntent()     {}
func (SendMessage) isOutboundIntent()          {}
func (CompletedResponse) isOutboundIntent()    {}
func (DeleteSuggestion) isOutboundIntent()     {}

func (SetActiveChat) intentType() string        { return "set_active_chat" }
func (ScrollPositionUpdate) intentType() string { return "scroll_position_update" }
func (ReadStatusUpdate) intentType() string     { return "read_status_update" }
func (SendMessage) intentType() string          { return "send_message" }
func (CompletedResponse) intentType() string    { return "completed_response" }
func (DeleteSuggestion) intentType() string     { return "delete_suggestion" }
