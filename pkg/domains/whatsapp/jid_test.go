package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wagate/pkg/errors"
	waTypes "go.mau.fi/whatsmeow/types"
)

func TestIdentityFromPhoneJID(t *testing.T) {
	jid := waTypes.NewJID("628123456789", waTypes.DefaultUserServer)
	identity := IdentityFromJID(jid)

	assert.False(t, identity.IsLID())
	assert.Equal(t, "628123456789", identity.Phone())
}

func TestIdentityFromLIDServer(t *testing.T) {
	jid := waTypes.NewJID("132987654321098765", waTypes.HiddenUserServer)
	identity := IdentityFromJID(jid)

	assert.True(t, identity.IsLID())
	assert.Equal(t, "LID_132987654321098765", identity.Phone())
}

func TestIdentityDetectsDisguisedLID(t *testing.T) {
	// Long user part, no known country prefix: a LID leaked onto the
	// default server.
	jid := waTypes.NewJID("9932190876543210321", waTypes.DefaultUserServer)
	assert.True(t, IdentityFromJID(jid).IsLID())
}

func TestIdentityKeepsLongNationalNumbers(t *testing.T) {
	// 62-prefixed and within plausible length: still a phone.
	jid := waTypes.NewJID("628123456789012", waTypes.DefaultUserServer)
	assert.False(t, IdentityFromJID(jid).IsLID())
}

func TestIsGroupJID(t *testing.T) {
	assert.True(t, IsGroupJID(waTypes.NewJID("12036304", waTypes.GroupServer)))
	assert.False(t, IsGroupJID(waTypes.NewJID("628123456789", waTypes.DefaultUserServer)))
}

func TestPhoneToJID(t *testing.T) {
	jid, err := PhoneToJID("+62 812-3456-789")
	require.NoError(t, err)
	assert.Equal(t, "628123456789", jid.User)
	assert.Equal(t, waTypes.DefaultUserServer, jid.Server)
}

func TestPhoneToJIDRejectsShortNumbers(t *testing.T) {
	_, err := PhoneToJID("12345")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))
}
