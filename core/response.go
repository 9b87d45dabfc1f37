package core

type ResponseBase[T any] struct {
	Status  string `json:"status"`
	Content T      `json:"content"`
	Error   string `json:"error,omitempty"`
}

type SendRequest struct {
	Wallet  string  `json:"wallet"`
	Content string  `json:"content"`
	ReplyTo *string `json:"replyTo,omitempty"`
}

type EditRequest struct {
	Wallet  string `json:"wallet"`
	Content string `json:"content"`
}

// SocketRequest is a frame sent by a websocket client
type SocketRequest struct {
	Type  SignalType `json:"type"`
	Label string     `json:"label,omitempty"`
}
