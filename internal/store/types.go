package store

// Account is a messaging identity managed by the engine. AuthState is an
// opaque credential handed back verbatim on the next start. Timestamps are
// Unix seconds throughout the store.
type Account struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phone_number"`
	AuthState   *string `json:"-"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

// Contact is a per-account address book entry. Nil fields mean unknown.
type Contact struct {
	ID           int64   `json:"id"`
	AccountID    string  `json:"account_id"`
	JID          string  `json:"jid"`
	LID          *string `json:"lid"`
	PhoneNumber  *string `json:"phone_number"`
	Name         *string `json:"name"`
	NotifyName   *string `json:"notify_name"`
	VerifiedName *string `json:"verified_name"`
	ImgURL       *string `json:"img_url"`
	Status       *string `json:"status"`
	IsLocal      bool    `json:"is_local"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

// Participant is a group member, stored serialized on its group row.
type Participant struct {
	ID          string  `json:"id"`
	Admin       *string `json:"admin"`
	PhoneNumber *string `json:"phone_number"`
}

type Group struct {
	ID           int64         `json:"id"`
	AccountID    string        `json:"account_id"`
	JID          string        `json:"jid"`
	Subject      *string       `json:"subject"`
	Owner        *string       `json:"owner"`
	Description  *string       `json:"description"`
	Participants []Participant `json:"participants"`
	CreatedAt    int64         `json:"created_at"`
	UpdatedAt    int64         `json:"updated_at"`
}

// Message rows are append-only.
type Message struct {
	ID          int64   `json:"id"`
	AccountID   string  `json:"account_id"`
	MessageID   string  `json:"message_id"`
	ChatJID     string  `json:"chat_jid"`
	SenderJID   string  `json:"sender_jid"`
	Content     *string `json:"content"`
	MessageType string  `json:"message_type"`
	Timestamp   int64   `json:"timestamp"`
	IsFromMe    bool    `json:"is_from_me"`
	RawJSON     *string `json:"raw_json,omitempty"`
	CreatedAt   int64   `json:"created_at"`
}

// ChatPreview is one row of the chat list: the latest message of a chat
// joined with its resolved display name.
type ChatPreview struct {
	ChatJID         string  `json:"chat_jid"`
	Name            string  `json:"name"`
	IsGroup         bool    `json:"is_group"`
	LastMessage     *string `json:"last_message"`
	LastMessageType string  `json:"last_message_type"`
	LastMessageAt   int64   `json:"last_message_at"`
	FromMe          bool    `json:"from_me"`
}

// Counts summarizes what is stored for one account.
type Counts struct {
	Contacts int64 `json:"contacts"`
	Groups   int64 `json:"groups"`
	Messages int64 `json:"messages"`
}
