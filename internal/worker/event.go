package worker

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds published on the outbound stream.
const (
	KindEngineReady         = "engine.ready"
	KindAccountReady        = "account.ready"
	KindQrCode              = "account.qr_code"
	KindConnected           = "account.connected"
	KindDisconnected        = "account.disconnected"
	KindLoggedOut           = "account.logged_out"
	KindSyncStarted         = "sync.started"
	KindSyncProgress        = "sync.progress"
	KindSyncCompleted       = "sync.completed"
	KindContactsSynced      = "sync.contacts_synced"
	KindGroupsSynced        = "sync.groups_synced"
	KindMessagesSynced      = "sync.messages_synced"
	KindHistorySyncComplete = "sync.history_complete"
	KindNewMessage          = "message.new"
	KindError               = "error"
)

// SyncType names what a sync event is about.
type SyncType string

const (
	SyncContacts SyncType = "contacts"
	SyncGroups   SyncType = "groups"
	SyncMessages SyncType = "messages"
	SyncHistory  SyncType = "history"
)

// Event is a domain event. Only the fields relevant to Kind are set.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	AccountID string    `json:"account_id,omitempty"`

	SyncType SyncType `json:"sync_type,omitempty"`
	Current  int      `json:"current,omitempty"`
	Total    int      `json:"total,omitempty"`
	Count    int      `json:"count,omitempty"`

	QR          string  `json:"qr,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Reason      string  `json:"reason,omitempty"`

	MessageID        string  `json:"message_id,omitempty"`
	ChatJID          string  `json:"chat_jid,omitempty"`
	SenderJID        string  `json:"sender_jid,omitempty"`
	Content          *string `json:"content,omitempty"`
	MessageTimestamp int64   `json:"message_timestamp,omitempty"`
	FromMe           bool    `json:"from_me,omitempty"`

	Error string `json:"error,omitempty"`
}

func newEvent(kind, accountID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now(),
		AccountID: accountID,
	}
}

func syncEvent(kind, accountID string, st SyncType) Event {
	e := newEvent(kind, accountID)
	e.SyncType = st
	return e
}
