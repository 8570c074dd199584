package autoreply

import (
	"encoding/json"
	"fmt"

	"github.com/wagate/pkg/entities"
)

const (
	assistantSales     = "sales"
	assistantSupport   = "customer_service"
	assistantTechnical = "technical_support"
	assistantGeneral   = "general"
)

var systemPrompts = map[string]string{
	assistantSales: "You are a friendly sales assistant for %s. Answer in the customer's language, " +
		"keep replies short and conversational, and guide the customer toward a purchase without being pushy.",
	assistantSupport: "You are a customer service agent for %s. Answer in the customer's language, " +
		"be warm and concise, and resolve the customer's issue or collect the details needed to escalate it.",
	assistantTechnical: "You are a technical support specialist for %s. Answer in the customer's language, " +
		"ask for the details you need, and give precise step-by-step instructions.",
	assistantGeneral: "You are a helpful assistant for %s. Answer in the customer's language and keep " +
		"replies short and friendly.",
}

// SystemPrompt picks the prompt for a session: an explicit
// customSystemPrompt wins, then the assistant category from the session
// or its AI config, then the general fallback.
func SystemPrompt(session entities.Session) string {
	if custom := session.SettingString("customSystemPrompt"); custom != "" {
		return custom
	}

	category := session.AIAssistantType
	if category == "" && len(session.AIConfig) > 0 {
		var cfg map[string]any
		if err := json.Unmarshal(session.AIConfig, &cfg); err == nil {
			category, _ = cfg["agent_category"].(string)
		}
	}

	tpl, ok := systemPrompts[category]
	if !ok {
		tpl = systemPrompts[assistantGeneral]
	}

	business := session.Name
	if business == "" {
		business = "this business"
	}
	return fmt.Sprintf(tpl, business)
}

// AIFailureReply is the canned response when the AI collaborator errors.
const AIFailureReply = "Maaf, saya sedang mengalami kendala teknis. Mohon coba beberapa saat lagi 🙏"
