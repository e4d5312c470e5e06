package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/widget"
)

func newPanel() *widget.Panel {
	return widget.NewPanel(widget.Config{Language: i18n.English}, widget.WithLogger(zerolog.Nop()))
}

func TestHandleLineCommands(t *testing.T) {
	ctx := context.Background()
	p := newPanel()
	var out bytes.Buffer

	assert.False(t, handleLine(ctx, p, "/open", &out))
	assert.True(t, p.View().Open)

	assert.False(t, handleLine(ctx, p, "/lang ar", &out))
	assert.Equal(t, i18n.Arabic, p.View().Language)

	assert.False(t, handleLine(ctx, p, "/lang", &out))
	assert.Contains(t, out.String(), "usage: /lang")

	assert.False(t, handleLine(ctx, p, "hello", &out))
	assert.Contains(t, out.String(), "(message not sent)")

	assert.False(t, handleLine(ctx, p, "/voice", &out))
	assert.Contains(t, out.String(), widget.ErrNotReady.Error())

	assert.False(t, handleLine(ctx, p, "/quick", &out))
	assert.Contains(t, out.String(), "services, fleet, branches, contact")

	assert.False(t, handleLine(ctx, p, "/dance", &out))
	assert.Contains(t, out.String(), "unknown command /dance")

	assert.False(t, handleLine(ctx, p, "/close", &out))
	assert.False(t, p.View().Open)

	assert.False(t, handleLine(ctx, p, "   ", &out))
	assert.True(t, handleLine(ctx, p, "/quit", &out))
}

func TestPrinterPrintsTurnsOnce(t *testing.T) {
	p := newPanel()
	require.NoError(t, p.Open(context.Background()))

	var out bytes.Buffer
	pr := newPrinter(&out)
	pr.render(p.View())
	pr.render(p.View())

	s := out.String()
	assert.Equal(t, 1, bytes.Count([]byte(s), []byte(i18n.For(i18n.English).InitialMessage)))
	assert.Equal(t, 1, bytes.Count([]byte(s), []byte(i18n.For(i18n.English).APIKeyError)))
	assert.Contains(t, s, "== "+i18n.For(i18n.English).Title)

	require.NoError(t, p.SetLanguage(context.Background(), i18n.Arabic))
	pr.render(p.View())
	assert.Contains(t, out.String(), i18n.For(i18n.Arabic).InitialMessage)
}
