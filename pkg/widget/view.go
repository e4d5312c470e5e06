package widget

import (
	"github.com/realtime-ai/assistant-widget/pkg/conversation"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
)

// Mode is the composer input mode.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

// QuickActionView is one rendered quick action chip.
type QuickActionView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

// View is a render-ready snapshot of the panel.
type View struct {
	Open      bool          `json:"open"`
	Language  i18n.Language `json:"language"`
	Direction string        `json:"direction"`
	Title     string        `json:"title"`
	Status    string        `json:"status"`

	Mode      Mode `json:"mode"`
	APIReady  bool `json:"api_ready"`
	Loading   bool `json:"loading"`
	Listening bool `json:"listening"`

	Placeholder        string            `json:"placeholder"`
	ComposerDisabled   bool              `json:"composer_disabled"`
	ModeToggleDisabled bool              `json:"mode_toggle_disabled"`
	QuickActions       []QuickActionView `json:"quick_actions"`

	Turns         []conversation.Turn `json:"turns"`
	LiveUser      string              `json:"live_user,omitempty"`
	LiveAssistant string              `json:"live_assistant,omitempty"`
}
