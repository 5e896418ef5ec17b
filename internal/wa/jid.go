// Package wa classifies and validates the JIDs the engine reports.
package wa

import (
	"errors"
	"fmt"

	"go.mau.fi/whatsmeow/types"
)

// ErrInvalidJID is returned for recipients that cannot be addressed.
var ErrInvalidJID = errors.New("invalid JID")

// ParseJID parses s and requires both a user and a server part.
func ParseJID(s string) (types.JID, error) {
	jid, err := types.ParseJID(s)
	if err != nil {
		return types.JID{}, fmt.Errorf("%w %q: %v", ErrInvalidJID, s, err)
	}
	if jid.User == "" || jid.Server == "" {
		return types.JID{}, fmt.Errorf("%w %q: missing user or server", ErrInvalidJID, s)
	}
	return jid, nil
}

// ValidateRecipient checks that s can be used as the target of a message.
func ValidateRecipient(s string) error {
	_, err := ParseJID(s)
	return err
}

// Normalize strips the device and agent parts so every device of a user
// maps to one chat. Strings that do not parse are returned unchanged.
func Normalize(s string) string {
	jid, err := types.ParseJID(s)
	if err != nil || jid.User == "" {
		return s
	}
	return jid.ToNonAD().String()
}

// IsGroup reports whether s addresses a group chat.
func IsGroup(s string) bool {
	jid, err := types.ParseJID(s)
	return err == nil && jid.Server == types.GroupServer
}
