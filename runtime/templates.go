package runtime

// TemplateShouldRespond names the character override for the respond/ignore
// gate prompt.
const TemplateShouldRespond = "shouldRespond"

const defaultShouldRespondTemplate = `{{.context}}

# Task
Decide whether {{.agentName}} should respond to the received message. Respond
when directly addressed or when the agent can clearly add value; ignore idle
chatter between other participants.

Respond with a single JSON block:
` + "```json" + `
{
  "action": "RESPOND" | "IGNORE",
  "reason": "<brief reason>"
}
` + "```" + `
Your response must contain exactly one JSON block and nothing else.`
