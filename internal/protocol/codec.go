package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType marks a wire envelope this client version does not know.
// Callers treat it as a protocol violation: log and ignore.
var ErrUnknownType = errors.New("unknown envelope type")

// envelope is the wire frame around every event and intent.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEvent parses an inbound wire frame into its typed event.
func DecodeEvent(data []byte) (InboundEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var evt InboundEvent
	switch env.Type {
	case "chat_updated":
		evt = &ChatUpdated{}
	case "message_status_changed":
		evt = &MessageStatusChanged{}
	case "message_chunk":
		evt = &MessageChunk{}
	case "task_initiated":
		evt = &TaskInitiated{}
	case "assistant_typing":
		evt = &AssistantTyping{}
	case "task_ended":
		evt = &TaskEnded{}
	case "chat_deleted":
		evt = &ChatDeleted{}
	case "post_processing_completed":
		evt = &PostProcessingCompleted{}
	case "full_sync_ready":
		evt = &FullSyncReady{}
	case "sync_snapshot":
		evt = &SyncSnapshot{}
	case "draft_updated":
		evt = &DraftUpdated{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(env.Payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return evt, nil
}

// EncodeIntent wraps an outbound intent in its wire frame.
func EncodeIntent(intent OutboundIntent) ([]byte, error) {
	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", intent.intentType(), err)
	}
	return json.Marshal(envelope{Type: intent.intentType(), Payload: payload})
}
