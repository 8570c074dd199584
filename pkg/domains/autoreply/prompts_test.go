package autoreply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wagate/pkg/entities"
	"gorm.io/datatypes"
)

func TestSystemPromptByAssistantType(t *testing.T) {
	session := entities.Session{Name: "Toko Maju", AIAssistantType: "sales"}
	prompt := SystemPrompt(session)
	assert.Contains(t, prompt, "sales assistant")
	assert.Contains(t, prompt, "Toko Maju")
}

func TestSystemPromptFromAIConfigCategory(t *testing.T) {
	session := entities.Session{
		Name:     "Toko Maju",
		AIConfig: datatypes.JSON(`{"agent_category":"technical_support"}`),
	}
	assert.Contains(t, SystemPrompt(session), "technical support specialist")
}

func TestSystemPromptCustomOverride(t *testing.T) {
	session := entities.Session{
		Name:     "Toko Maju",
		Settings: datatypes.JSON(`{"customSystemPrompt":"You are a pirate."}`),
	}
	assert.Equal(t, "You are a pirate.", SystemPrompt(session))
}

func TestSystemPromptFallsBackToGeneral(t *testing.T) {
	session := entities.Session{AIAssistantType: "unknown-kind"}
	prompt := SystemPrompt(session)
	assert.Contains(t, prompt, "helpful assistant")
	assert.Contains(t, prompt, "this business")
}
