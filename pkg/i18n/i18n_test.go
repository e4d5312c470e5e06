package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguage(t *testing.T) {
	l, err := ParseLanguage(" EN ")
	require.NoError(t, err)
	assert.Equal(t, English, l)

	l, err = ParseLanguage("ar")
	require.NoError(t, err)
	assert.Equal(t, Arabic, l)

	_, err = ParseLanguage("fr")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestForFallsBackToDefault(t *testing.T) {
	assert.Equal(t, For(DefaultLanguage).Title, For(Language("xx")).Title)
	assert.Equal(t, "Al Jeri Assistant", For(English).Title)
}

func TestEveryLanguageHasAllQuickActions(t *testing.T) {
	for _, l := range Languages {
		actions := QuickActions(l)
		require.Len(t, actions, len(QuickActionIDs), "language %s", l)
		for i, a := range actions {
			assert.Equal(t, QuickActionIDs[i], a.ID)
			assert.NotEmpty(t, a.Label)
			assert.NotEmpty(t, a.Prompt)
		}
	}
}

func TestQuickActionPrompt(t *testing.T) {
	p, ok := QuickActionPrompt(English, "fleet")
	assert.True(t, ok)
	assert.Equal(t, "Tell me about your fleet size.", p)

	_, ok = QuickActionPrompt(English, "missing")
	assert.False(t, ok)
}

func TestDirectionAndVoice(t *testing.T) {
	assert.Equal(t, "rtl", Direction(Arabic))
	assert.Equal(t, "ltr", Direction(English))
	assert.Equal(t, "Kore", VoiceName(Arabic))
	assert.Equal(t, "Puck", VoiceName(English))
}

func TestSystemPrompt(t *testing.T) {
	assert.Contains(t, SystemPrompt(Arabic), "Najdi Arabic")
	assert.Contains(t, SystemPrompt(English), "EN-GB English")
	assert.Contains(t, SystemPrompt(English), "920000918")
}
