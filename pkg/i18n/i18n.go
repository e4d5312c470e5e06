// Package i18n holds the static UI strings, quick actions and system prompts
// for every supported widget language.
package i18n

import (
	"errors"
	"fmt"
	"strings"
)

// Language is a supported UI language tag.
type Language string

const (
	English Language = "en"
	Arabic  Language = "ar"
)

// DefaultLanguage is the language the widget opens in.
const DefaultLanguage = Arabic

// ErrUnknownLanguage is returned by ParseLanguage for unsupported tags.
var ErrUnknownLanguage = errors.New("unknown language")

// Languages lists the supported languages in selector order.
var Languages = []Language{English, Arabic}

// ParseLanguage normalises a language tag.
func ParseLanguage(tag string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(tag))) {
	case English:
		return English, nil
	case Arabic:
		return Arabic, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, tag)
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == English || l == Arabic
}

func (l Language) String() string {
	return string(l)
}

// QuickActionText is the label and prompt of one quick action.
type QuickActionText struct {
	Label  string
	Prompt string
}

// Strings is the full set of UI strings for a language.
type Strings struct {
	Title                     string
	Status                    string
	InitialMessage            string
	InputPlaceholder          string
	InputPlaceholderListening string
	Error                     string
	APIKeyError               string
	QuickActions              map[string]QuickActionText
}

var translations = map[Language]Strings{
	Arabic: {
		Title:                     "مساعد الجري",
		Status:                    "متصل",
		InitialMessage:            "يا هلا والله! أنا مساعد الجري للنقليات. أقدر أوضح لك خدماتنا مثل نقل الوقود أو السيارات، أو أطلعك على فروعنا. وش تبي تعرف اليوم؟",
		InputPlaceholder:          "اكتب رسالتك...",
		InputPlaceholderListening: "أستمع...",
		Error:                     "عفواً، حدث خطأ ما. الرجاء المحاولة مرة أخرى.",
		APIKeyError:               "مفتاح الواجهة البرمجية (API key) غير مُعد. الرجاء التأكد من إعداده في متغيرات البيئة لاستخدام المساعد.",
		QuickActions: map[string]QuickActionText{
			"services": {Label: "الخدمات", Prompt: "ما هي الخدمات التي تقدمونها؟"},
			"fleet":    {Label: "أسطولنا", Prompt: "حدثني عن حجم أسطولكم."},
			"branches": {Label: "الفروع", Prompt: "أين تقع فروعكم؟"},
			"contact":  {Label: "تواصل معنا", Prompt: "كيف يمكنني التواصل معكم؟"},
		},
	},
	English: {
		Title:                     "Al Jeri Assistant",
		Status:                    "Online",
		InitialMessage:            "Hi there! I'm Al Jeri Transportation's assistant. I can tell you about our services, fleet, and branches. What would you like to know today?",
		InputPlaceholder:          "Type your message...",
		InputPlaceholderListening: "Listening...",
		Error:                     "Sorry, I encountered an error. Please try again.",
		APIKeyError:               "API key is not configured. Please ensure it is set in the environment variables to use the assistant.",
		QuickActions: map[string]QuickActionText{
			"services": {Label: "Services", Prompt: "What services do you offer?"},
			"fleet":    {Label: "Our Fleet", Prompt: "Tell me about your fleet size."},
			"branches": {Label: "Branches", Prompt: "Where are your branches located?"},
			"contact":  {Label: "Contact", Prompt: "How can I contact you?"},
		},
	},
}

// For returns the strings for l, falling back to the default language.
func For(l Language) Strings {
	if s, ok := translations[l]; ok {
		return s
	}
	return translations[DefaultLanguage]
}

// Direction returns the text direction for l.
func Direction(l Language) string {
	if l == Arabic {
		return "rtl"
	}
	return "ltr"
}

// VoiceName returns the prebuilt voice used for live audio in l.
func VoiceName(l Language) string {
	if l == Arabic {
		return "Kore"
	}
	return "Puck"
}
