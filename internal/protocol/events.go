package protocol

// ContactData is a contact as reported by the engine. Nil fields are unknown.
type ContactData struct {
	JID          string  `json:"jid"`
	LID          *string `json:"lid"`
	PhoneNumber  *string `json:"phone_number"`
	Name         *string `json:"name"`
	Notify       *string `json:"notify"`
	VerifiedName *string `json:"verified_name"`
	ImgURL       *string `json:"img_url"`
	Status       *string `json:"status"`
}

// ParticipantData is one member of a group.
type ParticipantData struct {
	ID          string  `json:"id"`
	Admin       *string `json:"admin"`
	PhoneNumber *string `json:"phone_number"`
}

// GroupData is a group as reported by the engine.
type GroupData struct {
	JID          string            `json:"jid"`
	Subject      *string           `json:"subject"`
	Owner        *string           `json:"owner"`
	Description  *string           `json:"description"`
	Participants []ParticipantData `json:"participants"`
}

// MessageData is a single chat message. Timestamp is in Unix seconds.
type MessageData struct {
	MessageID   string  `json:"message_id"`
	ChatJID     string  `json:"chat_jid"`
	SenderJID   string  `json:"sender_jid"`
	Content     *string `json:"content"`
	MessageType string  `json:"message_type"`
	Timestamp   int64   `json:"timestamp"`
	IsFromMe    bool    `json:"is_from_me"`
	RawJSON     *string `json:"raw_json"`
}

// Ready is emitted once by the engine with an empty account id when it boots,
// and once per account when that account's session is ready.
type Ready struct {
	AccountID string `json:"account_id"`
}

type QrCode struct {
	AccountID string `json:"account_id"`
	QR        string `json:"qr"`
}

type Connected struct {
	AccountID   string  `json:"account_id"`
	PhoneNumber *string `json:"phone_number"`
}

type Disconnected struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

type LoggedOut struct {
	AccountID string `json:"account_id"`
}

// AuthStateUpdated carries an opaque credential blob to persist verbatim.
type AuthStateUpdated struct {
	AccountID string `json:"account_id"`
	AuthState string `json:"auth_state"`
}

type ContactsUpsert struct {
	AccountID string        `json:"account_id"`
	Contacts  []ContactData `json:"contacts"`
}

type ContactsUpdate struct {
	AccountID string        `json:"account_id"`
	Contacts  []ContactData `json:"contacts"`
}

type GroupsUpsert struct {
	AccountID string      `json:"account_id"`
	Groups    []GroupData `json:"groups"`
}

type GroupsUpdate struct {
	AccountID string      `json:"account_id"`
	Groups    []GroupData `json:"groups"`
}

type MessagesUpsert struct {
	AccountID string        `json:"account_id"`
	Messages  []MessageData `json:"messages"`
}

type HistorySyncComplete struct {
	AccountID     string `json:"account_id"`
	MessagesCount int    `json:"messages_count"`
}

// Error is an engine-reported failure. A nil AccountID means the failure is
// not scoped to an account.
type Error struct {
	AccountID *string `json:"account_id"`
	Error     string  `json:"error"`
}

// CommandResult acknowledges a command by its envelope id.
type CommandResult struct {
	CommandID string  `json:"command_id"`
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
}

func (Ready) Type() string               { return "Ready" }
func (QrCode) Type() string              { return "QrCode" }
func (Connected) Type() string           { return "Connected" }
func (Disconnected) Type() string        { return "Disconnected" }
func (LoggedOut) Type() string           { return "LoggedOut" }
func (AuthStateUpdated) Type() string    { return "AuthStateUpdated" }
func (ContactsUpsert) Type() string      { return "ContactsUpsert" }
func (ContactsUpdate) Type() string      { return "ContactsUpdate" }
func (GroupsUpsert) Type() string        { return "GroupsUpsert" }
func (GroupsUpdate) Type() string        { return "GroupsUpdate" }
func (MessagesUpsert) Type() string      { return "MessagesUpsert" }
func (HistorySyncComplete) Type() string { return "HistorySyncComplete" }
func (Error) Type() string               { return "Error" }
func (CommandResult) Type() string       { return "CommandResult" }

func (Ready) isEvent()               {}
func (QrCode) isEvent()              {}
func (Connected) isEvent()           {}
func (Disconnected) isEvent()        {}
func (LoggedOut) isEvent()           {}
func (AuthStateUpdated) isEvent()    {}
func (ContactsUpsert) isEvent()      {}
func (ContactsUpdate) isEvent()      {}
func (GroupsUpsert) isEvent()        {}
func (GroupsUpdate) isEvent()        {}
func (MessagesUpsert) isEvent()      {}
func (HistorySyncComplete) isEvent() {}
func (Error) isEvent()               {}
func (CommandResult) isEvent()       {}
