package action

// Template names overridable per character.
const (
	TemplateActionDecision = "actionDecision"
	TemplateReply          = "reply"
)

const defaultActionDecisionTemplate = `{{.context}}

# Task
Decide how {{.agentName}} should respond to the received message.
Available actions: {{.actionNames}}

Respond with a single JSON block:
` + "```json" + `
{
  "thought": "<brief private reasoning>",
  "actions": ["<ACTION_NAME>"],
  "text": "<the reply text, if any>"
}
` + "```" + `
Your response must contain exactly one JSON block and nothing else.`

const defaultReplyTemplate = `{{.context}}

# Task
Write {{.agentName}}'s reply to the received message, staying in character.

Respond with a single JSON block:
` + "```json" + `
{
  "thought": "<brief private reasoning>",
  "text": "<the reply text>"
}
` + "```" + `
Your response must contain exactly one JSON block and nothing else.`
