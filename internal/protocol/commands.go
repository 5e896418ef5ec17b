package protocol

// StartAccount asks the engine to open a session for an account.
type StartAccount struct {
	AccountID string `json:"account_id"`
}

// StopAccount closes an account session.
type StopAccount struct {
	AccountID string `json:"account_id"`
}

// GetQrCode requests a fresh pairing QR code.
type GetQrCode struct {
	AccountID string `json:"account_id"`
}

// SendMessage sends a text message to a chat.
type SendMessage struct {
	AccountID string `json:"account_id"`
	To        string `json:"to"`
	Content   string `json:"content"`
}

// GetContacts asks the engine to re-emit the contact list.
type GetContacts struct {
	AccountID string `json:"account_id"`
}

// GetGroups asks the engine to re-emit the group list.
type GetGroups struct {
	AccountID string `json:"account_id"`
}

// GetMessages asks the engine for recent messages, optionally for one chat.
type GetMessages struct {
	AccountID string  `json:"account_id"`
	ChatJID   *string `json:"chat_jid"`
	Limit     int64   `json:"limit"`
}

// SetAuthState hands a previously persisted credential back to the engine.
type SetAuthState struct {
	AccountID string `json:"account_id"`
	AuthState string `json:"auth_state"`
}

// Shutdown asks the engine to exit. It carries no payload on the wire.
type Shutdown struct{}

func (StartAccount) Type() string { return "StartAccount" }
func (StopAccount) Type() string  { return "StopAccount" }
func (GetQrCode) Type() string    { return "GetQrCode" }
func (SendMessage) Type() string  { return "SendMessage" }
func (GetContacts) Type() string  { return "GetContacts" }
func (GetGroups) Type() string    { return "GetGroups" }
func (GetMessages) Type() string  { return "GetMessages" }
func (SetAuthState) Type() string { return "SetAuthState" }
func (Shutdown) Type() string     { return "Shutdown" }

func (StartAccount) isCommand() {}
func (StopAccount) isCommand()  {}
func (GetQrCode) isCommand()    {}
func (SendMessage) isCommand()  {}
func (GetContacts) isCommand()  {}
func (GetGroups) isCommand()    {}
func (GetMessages) isCommand()  {}
func (SetAuthState) isCommand() {}
func (Shutdown) isCommand()     {}
