package broadcast

import (
	"strings"

	"github.com/wagate/pkg/domains/whatsapp"
	waTypes "go.mau.fi/whatsmeow/types"
)

// waParseJID accepts either a bare phone number or a full JID (used for
// group targets).
func waParseJID(raw string) (waTypes.JID, error) {
	if strings.Contains(raw, "@") {
		return waTypes.ParseJID(raw)
	}
	return whatsapp.PhoneToJID(raw)
}
