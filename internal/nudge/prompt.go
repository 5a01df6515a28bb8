package nudge

import (
	"fmt"
	"strings"
)

type template struct {
	title    string
	emoji    string
	priority Priority
	prompt   string
}

var templates = map[Type]template{
	TypeMorning: {
		title:    "Good morning",
		emoji:    "🌅",
		priority: PriorityHigh,
		prompt: "Greet %s warmly for the start of the day. Ask how they slept and what " +
			"they want to focus on today. Mention anything you remember that is relevant to today. " +
			"Keep it to two or three sentences.",
	},
	TypeMidday: {
		title:    "Midday check-in",
		emoji:    "☀️",
		priority: PriorityMedium,
		prompt: "Check in with %s around midday. Ask how the morning went and remind them " +
			"to take a break, drink water, and eat lunch. Keep it short and encouraging.",
	},
	TypeEvening: {
		title:    "Evening reflection",
		emoji:    "🌙",
		priority: PriorityMedium,
		prompt: "Help %s wind down for the evening. Ask what went well today and whether " +
			"there is anything to prepare for tomorrow. Keep a calm tone.",
	},
	TypeManual: {
		title:    "Let's talk",
		emoji:    "💬",
		priority: PriorityMedium,
		prompt: "%s asked you to start the conversation. Offer a friendly opener based on " +
			"the time of day and anything you remember about them, then ask an open question.",
	},
	TypeReminder: {
		title:    "Thinking of you",
		emoji:    "🔔",
		priority: PriorityLow,
		prompt: "It has been a while since %s last talked to you. Send a gentle, " +
			"low-pressure check-in and offer help with anything on their plate.",
	},
}

var fallbackTemplate = template{
	title:    "Hello",
	emoji:    "👋",
	priority: PriorityLow,
	prompt:   "Say a short, friendly hello to %s and ask how you can help.",
}

// Build returns the message for nudge type t addressed to userName.
// Unknown types get a generic low-priority greeting. Build is pure.
func Build(t Type, userName string) Message {
	tpl, ok := templates[t]
	if !ok {
		tpl = fallbackTemplate
	}
	name := strings.TrimSpace(userName)
	if name == "" {
		name = "the user"
	}
	return Message{
		Type:       t,
		Title:      tpl.title,
		Emoji:      tpl.emoji,
		Priority:   tpl.priority,
		PromptText: fmt.Sprintf(tpl.prompt, name),
	}
}
