package api

import (
	"encoding/json"
	"time"

	"github.com/ry-diffusion/Tina/internal/status"
	"github.com/ry-diffusion/Tina/internal/store"
)

type Empty struct{}

// AccountRequest targets one account.
type AccountRequest struct {
	AccountID string `json:"account_id"`
}

type CreateAccountRequest struct {
	AccountID string  `json:"account_id"`
	Name      *string `json:"name"`
}

type AccountResponse struct {
	Account *store.Account `json:"account"`
}

type ListAccountsResponse struct {
	Accounts []store.Account `json:"accounts"`
}

type ContactsResponse struct {
	Contacts []store.Contact `json:"contacts"`
}

type GroupsResponse struct {
	Groups []store.Group `json:"groups"`
}

// GetMessagesRequest pages through stored messages, newest first.
type GetMessagesRequest struct {
	AccountID string  `json:"account_id"`
	ChatJID   *string `json:"chat_jid"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
}

type MessagesResponse struct {
	Messages []store.Message `json:"messages"`
}

type ChatsResponse struct {
	Chats []string `json:"chats"`
}

type ChatPreviewsRequest struct {
	AccountID string `json:"account_id"`
	Limit     int    `json:"limit"`
}

type ChatPreviewsResponse struct {
	Previews []store.ChatPreview `json:"previews"`
}

type ChatNameRequest struct {
	AccountID string `json:"account_id"`
	ChatJID   string `json:"chat_jid"`
}

// ChatNameResponse has a nil Name when nothing is known about the chat.
type ChatNameResponse struct {
	Name *string `json:"name"`
}

type SendMessageRequest struct {
	AccountID string `json:"account_id"`
	To        string `json:"to"`
	Content   string `json:"content"`
}

// HistoryRequest asks the engine for older messages.
type HistoryRequest struct {
	AccountID string  `json:"account_id"`
	ChatJID   *string `json:"chat_jid"`
	Limit     int64   `json:"limit"`
}

// AccountStatus combines the live state of an account with its stored
// totals.
type AccountStatus struct {
	status.Account
	Counts *store.Counts `json:"counts,omitempty"`
}

type StatusResponse struct {
	EngineRunning bool            `json:"engine_running"`
	UptimeMs      int64           `json:"uptime_ms"`
	Accounts      []AccountStatus `json:"accounts"`
}

// WatchRequest subscribes to bus events whose kind starts with Prefix.
type WatchRequest struct {
	Prefix string `json:"prefix"`
}

// WatchEvent is one bus event. Payload is a worker.Event for pipeline kinds
// and a status.StatusChange for status.changed.
type WatchEvent struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e *WatchEvent) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}
