package whatsapp

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/wagate/pkg/errors"
	waTypes "go.mau.fi/whatsmeow/types"
)

// IdentityKind separates the network's two identifier spaces: the
// classical phone-number JID and the opaque Linked Identity form.
type IdentityKind int

const (
	IdentityPhone IdentityKind = iota
	IdentityLID
)

// Identity is a sender identity decoded from a JID. Reply routing always
// threads the original chat JID regardless of kind.
type Identity struct {
	Kind  IdentityKind
	Value string
}

func (i Identity) IsLID() bool { return i.Kind == IdentityLID }

// Phone returns the extractable phone number, or a LID_<digits> pseudo
// identifier when only a linked identity is known.
func (i Identity) Phone() string {
	if i.Kind == IdentityLID {
		return "LID_" + i.Value
	}
	return i.Value
}

// IdentityFromJID classifies a JID by its server. The lid server marks a
// linked identity; so does an implausibly long user part with no known
// country prefix, which some relays emit on the default server.
func IdentityFromJID(jid waTypes.JID) Identity {
	if jid.Server == waTypes.HiddenUserServer {
		return Identity{Kind: IdentityLID, Value: jid.User}
	}
	if looksLikeLID(jid.User) {
		return Identity{Kind: IdentityLID, Value: jid.User}
	}
	return Identity{Kind: IdentityPhone, Value: jid.User}
}

// knownCountryPrefixes is not exhaustive; it covers the prefixes this
// gateway's tenants actually serve.
var knownCountryPrefixes = []string{"1", "7", "20", "27", "30", "31", "32", "33", "34", "39", "40", "41", "44", "49", "52", "55", "60", "61", "62", "63", "64", "65", "66", "81", "82", "84", "86", "90", "91", "92", "95", "234", "880", "966", "971"}

func looksLikeLID(user string) bool {
	if len(user) <= 15 {
		return false
	}
	for _, prefix := range knownCountryPrefixes {
		if strings.HasPrefix(user, prefix) && len(user) <= len(prefix)+13 {
			return false
		}
	}
	return true
}

func IsGroupJID(jid waTypes.JID) bool {
	return jid.Server == waTypes.GroupServer
}

var phoneCleaner = regexp.MustCompile(`[^\d+]`)

// PhoneToJID converts a raw phone number into a user JID.
func PhoneToJID(phoneNumber string) (waTypes.JID, error) {
	cleanPhone := phoneCleaner.ReplaceAllString(phoneNumber, "")
	cleanPhone = strings.TrimPrefix(cleanPhone, "+")

	if len(cleanPhone) < 10 {
		return waTypes.JID{}, apperrors.InvalidArg(fmt.Sprintf("invalid phone number %q: too short", phoneNumber))
	}

	return waTypes.NewJID(cleanPhone, waTypes.DefaultUserServer), nil
}
