// Package protocol implements the line-delimited JSON envelope exchanged with
// the engine process over its standard streams.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payload is the content of an envelope. Every variant reports the tag it is
// written under.
type Payload interface {
	Type() string
}

// Command is a Payload sent from the bridge to the engine.
type Command interface {
	Payload
	isCommand()
}

// Event is a Payload sent from the engine to the bridge.
type Event interface {
	Payload
	isEvent()
}

// Message is one decoded envelope.
type Message struct {
	ID      string
	Payload Payload
}

// Command returns the payload as a Command, if it is one.
func (m Message) Command() (Command, bool) {
	c, ok := m.Payload.(Command)
	return c, ok
}

// Event returns the payload as an Event, if it is one.
func (m Message) Event() (Event, bool) {
	e, ok := m.Payload.(Event)
	return e, ok
}

// NewCommand wraps c in a message with a fresh ID.
func NewCommand(c Command) Message {
	return Message{ID: NewID(), Payload: c}
}

// NewEvent wraps e in a message with a fresh ID.
func NewEvent(e Event) Message {
	return Message{ID: NewID(), Payload: e}
}

// NewID returns the current Unix time in nanoseconds, hex-encoded. Good
// enough for log correlation, not guaranteed unique.
func NewID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 16)
}

type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode renders m as a single JSON object followed by exactly one newline.
func Encode(m Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, errors.New("encode: nil payload")
	}
	env := envelope{ID: m.ID, Type: m.Payload.Type()}
	if !isUnit(env.Type) {
		raw, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", env.Type, err)
		}
		env.Payload = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Type, err)
	}
	return append(b, '\n'), nil
}

// Frame returns line terminated by exactly one newline.
func Frame(line string) string {
	return strings.TrimRight(line, "\r\n") + "\n"
}

// Parse decodes a single line, reporting why it was rejected.
func Parse(line string) (Message, error) {
	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 {
		return Message{}, errors.New("empty line")
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Message{}, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Type == "" {
		return Message{}, errors.New("missing type")
	}

	decode, ok := registry[env.Type]
	if !ok {
		return Message{}, fmt.Errorf("unknown type %q", env.Type)
	}
	if !isUnit(env.Type) && isAbsent(env.Payload) {
		return Message{}, fmt.Errorf("%s: missing payload", env.Type)
	}

	p, err := decode(env.Payload)
	if err != nil {
		return Message{}, fmt.Errorf("%s payload: %w", env.Type, err)
	}
	return Message{ID: env.ID, Payload: p}, nil
}

// Decode parses a single line. Malformed or empty input yields false.
func Decode(line string) (Message, bool) {
	m, err := Parse(line)
	if err != nil {
		return Message{}, false
	}
	return m, true
}

func isAbsent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func isUnit(typ string) bool {
	return typ == (Shutdown{}).Type()
}

type decodeFunc func(json.RawMessage) (Payload, error)

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var registry = map[string]decodeFunc{
	// commands
	"StartAccount": decodeAs[StartAccount],
	"StopAccount":  decodeAs[StopAccount],
	"GetQrCode":    decodeAs[GetQrCode],
	"SendMessage":  decodeAs[SendMessage],
	"GetContacts":  decodeAs[GetContacts],
	"GetGroups":    decodeAs[GetGroups],
	"GetMessages":  decodeAs[GetMessages],
	"SetAuthState": decodeAs[SetAuthState],
	"Shutdown":     func(json.RawMessage) (Payload, error) { return Shutdown{}, nil },

	// events
	"Ready":               decodeAs[Ready],
	"QrCode":              decodeAs[QrCode],
	"Connected":           decodeAs[Connected],
	"Disconnected":        decodeAs[Disconnected],
	"LoggedOut":           decodeAs[LoggedOut],
	"AuthStateUpdated":    decodeAs[AuthStateUpdated],
	"ContactsUpsert":      decodeAs[ContactsUpsert],
	"ContactsUpdate":      decodeAs[ContactsUpdate],
	"GroupsUpsert":        decodeAs[GroupsUpsert],
	"GroupsUpdate":        decodeAs[GroupsUpdate],
	"MessagesUpsert":      decodeAs[MessagesUpsert],
	"HistorySyncComplete": decodeAs[HistorySyncComplete],
	"Error":               decodeAs[Error],
	"CommandResult":       decodeAs[CommandResult],
}
