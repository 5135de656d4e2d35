package models

// These structs define the JSON payloads of the intake chat HTTP and
// WebSocket API.

// CreateSessionResponse is returned when a chat session is opened.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// MessageRequest carries one user turn.
type MessageRequest struct {
	Message string `json:"message"`
}

// MessageResponse carries the assistant reply.
type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EndChatResponse reports the number the transcript was stored under.
type EndChatResponse struct {
	TranscriptNumber int `json:"transcript_number"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WSMessage is the envelope of every WebSocket frame in both directions.
type WSMessage struct {
	Type             string `json:"type"`
	SessionID        string `json:"session_id,omitempty"`
	Message          string `json:"message,omitempty"`
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	TranscriptNumber int    `json:"transcript_number,omitempty"`
	Error            string `json:"error,omitempty"`
}

// WebSocket frame types.
const (
	WSTypeSessionID = "session_id"
	WSTypeMessage   = "message"
	WSTypeEndChat   = "end_chat"
	WSTypeChatEnded = "chat_ended"
	WSTypeError     = "error"
)

// WebhookRequest is the subset of a Dialogflow fulfillment request the
// intake webhook reads.
type WebhookRequest struct {
	QueryResult struct {
		Parameters map[string]any `json:"parameters"`
	} `json:"queryResult"`
}

// WebhookResponse is the fulfillment reply.
type WebhookResponse struct {
	FulfillmentText string `json:"fulfillmentText"`
}
