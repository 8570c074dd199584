package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageStatusProgression(t *testing.T) {
	assert.True(t, MessageStatusPending.CanProgressTo(MessageStatusSent))
	assert.True(t, MessageStatusSent.CanProgressTo(MessageStatusDelivered))
	assert.True(t, MessageStatusDelivered.CanProgressTo(MessageStatusRead))
	assert.True(t, MessageStatusPending.CanProgressTo(MessageStatusRead))
}

func TestMessageStatusNeverRegresses(t *testing.T) {
	assert.False(t, MessageStatusRead.CanProgressTo(MessageStatusDelivered))
	assert.False(t, MessageStatusDelivered.CanProgressTo(MessageStatusSent))
	assert.False(t, MessageStatusSent.CanProgressTo(MessageStatusPending))
	assert.False(t, MessageStatusSent.CanProgressTo(MessageStatusSent))
}

func TestMessageStatusFailedIsTerminal(t *testing.T) {
	assert.True(t, MessageStatusPending.CanProgressTo(MessageStatusFailed))
	assert.True(t, MessageStatusDelivered.CanProgressTo(MessageStatusFailed))
	assert.False(t, MessageStatusFailed.CanProgressTo(MessageStatusSent))
	assert.False(t, MessageStatusFailed.CanProgressTo(MessageStatusRead))
}

func TestCampaignTransitions(t *testing.T) {
	assert.True(t, CampaignStatusDraft.CanStart())
	assert.True(t, CampaignStatusScheduled.CanStart())
	assert.False(t, CampaignStatusProcessing.CanStart())
	assert.False(t, CampaignStatusCompleted.CanStart())

	assert.True(t, CampaignStatusDraft.CanCancel())
	assert.True(t, CampaignStatusProcessing.CanCancel())
	assert.False(t, CampaignStatusCompleted.CanCancel())
	assert.False(t, CampaignStatusCancelled.CanCancel())
}
