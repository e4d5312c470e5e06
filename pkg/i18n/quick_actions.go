package i18n

// QuickActionIDs is the display order of the quick-action buttons.
var QuickActionIDs = []string{"services", "fleet", "branches", "contact"}

// QuickAction is a localized quick-action button.
type QuickAction struct {
	ID     string
	Label  string
	Prompt string
}

// QuickActions returns the localized quick actions for l in display order.
// IDs without a translation are skipped.
func QuickActions(l Language) []QuickAction {
	t := For(l)
	actions := make([]QuickAction, 0, len(QuickActionIDs))
	for _, id := range QuickActionIDs {
		text, ok := t.QuickActions[id]
		if !ok {
			continue
		}
		actions = append(actions, QuickAction{ID: id, Label: text.Label, Prompt: text.Prompt})
	}
	return actions
}

// QuickActionPrompt returns the prompt for id in l.
func QuickActionPrompt(l Language, id string) (string, bool) {
	text, ok := For(l).QuickActions[id]
	if !ok {
		return "", false
	}
	return text.Prompt, true
}
