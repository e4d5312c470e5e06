package widget

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/assistant-widget/pkg/audio"
	"github.com/realtime-ai/assistant-widget/pkg/conversation"
	"github.com/realtime-ai/assistant-widget/pkg/device"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/pipeline"
	"github.com/realtime-ai/assistant-widget/pkg/textchat"
	"github.com/realtime-ai/assistant-widget/pkg/voice"
)

type echoStreamer struct {
	lang    i18n.Language
	release chan struct{}
}

func (e *echoStreamer) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if e.release != nil {
			select {
			case <-e.release:
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
		yield(string(e.lang)+":"+text, nil)
	}
}

type streamerFactory struct {
	mu      sync.Mutex
	calls   []i18n.Language
	err     error
	release chan struct{}
}

func (f *streamerFactory) build(ctx context.Context, lang i18n.Language) (textchat.Streamer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, lang)
	if f.err != nil {
		return nil, f.err
	}
	return &echoStreamer{lang: lang, release: f.release}, nil
}

func (f *streamerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeVoice struct {
	mu       sync.Mutex
	startErr error
	active   bool
	// gate holds Start until closed, then fails with startErr.
	gate     chan struct{}
	entered  chan struct{}
	starts   int
	stops    int
	lang     i18n.Language

	turn  func(user, assistant string)
	trans func(user, assistant string)
	state func(voice.State)
}

func (v *fakeVoice) Start(ctx context.Context) error {
	v.mu.Lock()
	v.starts++
	if v.gate != nil {
		gate, err := v.gate, v.startErr
		v.mu.Unlock()
		close(v.entered)
		<-gate
		return err
	}
	if v.startErr != nil {
		v.mu.Unlock()
		return v.startErr
	}
	v.active = true
	v.mu.Unlock()
	v.state(voice.StateActive)
	return nil
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	v.stops++
	was := v.active
	v.active = false
	v.mu.Unlock()
	if was {
		v.state(voice.StateIdle)
	}
}

func (v *fakeVoice) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *fakeVoice) SetLanguage(l i18n.Language) {
	v.mu.Lock()
	v.lang = l
	v.mu.Unlock()
}

func (v *fakeVoice) factory(h VoiceHooks) VoiceController {
	v.turn = h.TurnComplete
	v.trans = h.Transcript
	v.state = h.StateChange
	return v
}

func newTestPanel(t *testing.T, key string, sf *streamerFactory, fv *fakeVoice) *Panel {
	t.Helper()
	opts := []Option{
		WithLogger(zerolog.Nop()),
		WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())),
	}
	if sf != nil {
		opts = append(opts, WithStreamerFactory(sf.build))
	}
	if fv != nil {
		opts = append(opts, WithVoiceFactory(fv.factory))
	}
	return NewPanel(Config{APIKey: key, Language: i18n.English}, opts...)
}

func contents(turns []conversation.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Content
	}
	return out
}

func TestNewPanelShowsGreeting(t *testing.T) {
	p := newTestPanel(t, "key", nil, nil)
	turns := p.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.GreetingID, turns[0].ID)
	assert.Equal(t, i18n.For(i18n.English).InitialMessage, turns[0].Content)

	v := p.View()
	assert.False(t, v.Open)
	assert.Equal(t, ModeText, v.Mode)
	assert.Equal(t, "ltr", v.Direction)
}

func TestNewPanelDefaultsLanguage(t *testing.T) {
	p := NewPanel(Config{APIKey: "key"}, WithLogger(zerolog.Nop()))
	assert.Equal(t, i18n.DefaultLanguage, p.View().Language)
	assert.Equal(t, "rtl", p.View().Direction)
}

func TestOpenWithoutKeyAddsNoticeOnce(t *testing.T) {
	sf := &streamerFactory{}
	p := newTestPanel(t, "", sf, nil)
	ctx := context.Background()

	require.NoError(t, p.Open(ctx))
	p.Close()
	require.NoError(t, p.Open(ctx))

	turns := p.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.ConfigErrorID, turns[1].ID)
	assert.Equal(t, i18n.For(i18n.English).APIKeyError, turns[1].Content)
	assert.Equal(t, 0, sf.count())

	v := p.View()
	assert.False(t, v.APIReady)
	assert.True(t, v.ComposerDisabled)
	assert.True(t, v.ModeToggleDisabled)
	for _, qa := range v.QuickActions {
		assert.True(t, qa.Disabled, qa.ID)
	}

	assert.False(t, p.Send(ctx, "hello"))
	assert.ErrorIs(t, p.ToggleMode(ctx), ErrNotReady)
}

func TestOpenBuildsFreshStreamerEachTime(t *testing.T) {
	sf := &streamerFactory{}
	p := newTestPanel(t, "key", sf, nil)
	ctx := context.Background()

	require.NoError(t, p.Open(ctx))
	p.Close()
	require.NoError(t, p.Open(ctx))
	assert.Equal(t, 2, sf.count())
	assert.True(t, p.View().APIReady)
}

func TestOpenStreamerFailure(t *testing.T) {
	sf := &streamerFactory{err: errors.New("boom")}
	p := newTestPanel(t, "key", sf, nil)

	err := p.Open(context.Background())
	require.Error(t, err)
	assert.False(t, p.Send(context.Background(), "hi"))
}

func TestSendStreamsReply(t *testing.T) {
	sf := &streamerFactory{}
	p := newTestPanel(t, "key", sf, nil)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))

	require.True(t, p.Send(ctx, "hello"))
	require.Eventually(t, func() bool {
		return !p.View().Loading && len(p.Turns()) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{i18n.For(i18n.English).InitialMessage, "hello", "en:hello"}, contents(p.Turns()))
}

func TestQuickActionsDisabledWhileLoading(t *testing.T) {
	sf := &streamerFactory{release: make(chan struct{})}
	p := newTestPanel(t, "key", sf, nil)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))

	for _, qa := range p.View().QuickActions {
		assert.False(t, qa.Disabled, qa.ID)
	}

	require.True(t, p.QuickAction(ctx, "fleet"))
	v := p.View()
	assert.True(t, v.Loading)
	assert.True(t, v.ComposerDisabled)
	for _, qa := range v.QuickActions {
		assert.True(t, qa.Disabled, qa.ID)
	}
	assert.False(t, p.QuickAction(ctx, "services"))

	close(sf.release)
	require.Eventually(t, func() bool { return !p.View().Loading }, time.Second, 5*time.Millisecond)

	turns := p.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "Tell me about your fleet size.", turns[1].Content)
}

func TestQuickActionUnknownID(t *testing.T) {
	p := newTestPanel(t, "key", &streamerFactory{}, nil)
	require.NoError(t, p.Open(context.Background()))
	assert.False(t, p.QuickAction(context.Background(), "nope"))
}

func TestSetLanguageReplacesOnlyGreeting(t *testing.T) {
	sf := &streamerFactory{}
	fv := &fakeVoice{}
	p := newTestPanel(t, "key", sf, fv)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))

	require.True(t, p.Send(ctx, "hello"))
	require.Eventually(t, func() bool { return len(p.Turns()) == 3 && !p.View().Loading }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.ToggleMode(ctx))
	require.NoError(t, p.ToggleMode(ctx))

	require.NoError(t, p.SetLanguage(ctx, i18n.Arabic))

	got := contents(p.Turns())
	assert.Equal(t, []string{i18n.For(i18n.Arabic).InitialMessage, "hello", "en:hello"}, got)
	assert.Equal(t, []i18n.Language{i18n.English, i18n.Arabic}, sf.calls)
	assert.Equal(t, i18n.Arabic, fv.lang)

	v := p.View()
	assert.Equal(t, "rtl", v.Direction)
	assert.Equal(t, i18n.For(i18n.Arabic).Title, v.Title)
	assert.Equal(t, "أسطولنا", v.QuickActions[1].Label)
}

func TestSetLanguageRelocalizesNotice(t *testing.T) {
	p := newTestPanel(t, "", nil, nil)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))
	require.NoError(t, p.SetLanguage(ctx, i18n.Arabic))

	notice, ok := listTurn(p, conversation.ConfigErrorID)
	require.True(t, ok)
	assert.Equal(t, i18n.For(i18n.Arabic).APIKeyError, notice.Content)
}

func TestSetLanguageRejectsUnknown(t *testing.T) {
	p := newTestPanel(t, "key", nil, nil)
	assert.ErrorIs(t, p.SetLanguage(context.Background(), i18n.Language("fr")), i18n.ErrUnknownLanguage)
}

func TestSetLanguageClosedPanelDoesNotBuildStreamer(t *testing.T) {
	sf := &streamerFactory{}
	p := newTestPanel(t, "key", sf, nil)
	require.NoError(t, p.SetLanguage(context.Background(), i18n.Arabic))
	assert.Equal(t, 0, sf.count())
}

func TestToggleModeStartsAndStopsVoice(t *testing.T) {
	fv := &fakeVoice{}
	p := newTestPanel(t, "key", &streamerFactory{}, fv)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))

	require.NoError(t, p.ToggleMode(ctx))
	v := p.View()
	assert.Equal(t, ModeVoice, v.Mode)
	assert.True(t, v.Listening)
	assert.True(t, v.ComposerDisabled)
	assert.Equal(t, i18n.For(i18n.English).InputPlaceholderListening, v.Placeholder)
	for _, qa := range v.QuickActions {
		assert.True(t, qa.Disabled, qa.ID)
	}
	assert.False(t, p.Send(ctx, "typed while listening"))

	require.NoError(t, p.ToggleMode(ctx))
	v = p.View()
	assert.Equal(t, ModeText, v.Mode)
	assert.False(t, v.Listening)
	assert.Equal(t, i18n.For(i18n.English).InputPlaceholder, v.Placeholder)
	assert.Equal(t, 1, fv.starts)
	assert.Equal(t, 1, fv.stops)
}

func TestToggleModeStartFailureRevertsToText(t *testing.T) {
	fv := &fakeVoice{startErr: voice.ErrNoCredential}
	p := newTestPanel(t, "key", &streamerFactory{}, fv)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))

	errs := make(chan pipeline.Event, 1)
	p.Bus().Subscribe(pipeline.EventError, errs)

	err := p.ToggleMode(ctx)
	assert.ErrorIs(t, err, voice.ErrNoCredential)
	assert.Equal(t, ModeText, p.View().Mode)
	assert.False(t, p.View().ComposerDisabled)

	select {
	case evt := <-errs:
		assert.Equal(t, voice.ErrNoCredential.Error(), evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no error event")
	}
}

// heldDialer holds its first dial until gate closes, whatever the context.
type heldDialer struct {
	gate    chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	dials int
}

func (d *heldDialer) Dial(ctx context.Context, _ voice.LiveConfig) (voice.LiveSession, error) {
	d.mu.Lock()
	d.dials++
	first := d.dials == 1
	d.mu.Unlock()
	if first {
		close(d.entered)
		<-d.gate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return &idleLive{done: make(chan struct{})}, nil
}

type idleLive struct {
	once sync.Once
	done chan struct{}
}

func (l *idleLive) SendAudio(voice.Blob) error { return nil }

func (l *idleLive) Receive() (*voice.ServerMessage, error) {
	<-l.done
	return nil, errors.New("closed")
}

func (l *idleLive) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

type nopInput struct{}

func (nopInput) Stop() error { return nil }

// countingDevices tracks how many output contexts are open at once.
type countingDevices struct {
	mu      sync.Mutex
	open    int
	maxOpen int
}

func (d *countingDevices) OpenInput(context.Context, int, int, func([]float32)) (voice.InputStream, error) {
	return nopInput{}, nil
}

func (d *countingDevices) OpenOutput(rate int) (voice.OutputContext, error) {
	d.mu.Lock()
	d.open++
	d.maxOpen = max(d.maxOpen, d.open)
	d.mu.Unlock()
	tl := audio.NewTimelineWithConfig(audio.TimelineConfig{SampleRate: rate})
	return device.NewTimelineOutput(tl, func() error {
		d.mu.Lock()
		d.open--
		d.mu.Unlock()
		return nil
	}), nil
}

func (d *countingDevices) maxOpenOutputs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

func TestToggleOffOnDuringPendingStart(t *testing.T) {
	dialer := &heldDialer{gate: make(chan struct{}), entered: make(chan struct{})}
	devices := &countingDevices{}
	factory := ManagerFactory(voice.Config{APIKey: "key"}, dialer, devices, voice.WithLogger(zerolog.Nop()))

	p := NewPanel(Config{APIKey: "key", Language: i18n.English},
		WithLogger(zerolog.Nop()),
		WithStreamerFactory((&streamerFactory{}).build),
		WithVoiceFactory(factory),
	)
	t.Cleanup(p.Stop)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))

	errs := make(chan pipeline.Event, 4)
	p.Bus().Subscribe(pipeline.EventError, errs)

	first := make(chan error, 1)
	go func() { first <- p.ToggleMode(ctx) }()
	<-dialer.entered

	require.NoError(t, p.ToggleMode(ctx))
	assert.Equal(t, ModeText, p.View().Mode)

	third := make(chan error, 1)
	go func() { third <- p.ToggleMode(ctx) }()
	require.Eventually(t, func() bool { return p.View().Mode == ModeVoice }, time.Second, 5*time.Millisecond)
	close(dialer.gate)

	for _, errc := range []chan error{first, third} {
		select {
		case err := <-errc:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("toggle did not return")
		}
	}

	require.Eventually(t, func() bool { return p.View().Listening }, time.Second, 5*time.Millisecond)
	v := p.View()
	assert.Equal(t, ModeVoice, v.Mode)
	assert.True(t, v.ComposerDisabled)
	assert.Equal(t, 1, devices.maxOpenOutputs())
	assert.Empty(t, errs, "a cancelled start is not reported as an error")
}

func TestLateStartFailureKeepsNewerMode(t *testing.T) {
	gate := make(chan struct{})
	fv := &fakeVoice{startErr: errors.New("device lost"), gate: gate, entered: make(chan struct{})}
	p := newTestPanel(t, "key", &streamerFactory{}, fv)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))

	first := make(chan error, 1)
	go func() { first <- p.ToggleMode(ctx) }()
	<-fv.entered

	// Off, then on again while the first start is still pending.
	require.NoError(t, p.ToggleMode(ctx))
	fv.mu.Lock()
	fv.gate, fv.startErr = nil, nil
	fv.mu.Unlock()
	require.NoError(t, p.ToggleMode(ctx))

	close(gate)
	assert.EqualError(t, <-first, "device lost")
	assert.Equal(t, ModeVoice, p.View().Mode)
}

func TestManagerFactoryBuildsManager(t *testing.T) {
	f := ManagerFactory(voice.Config{}, nil, nil, voice.WithLogger(zerolog.Nop()))
	vc := f(VoiceHooks{})
	m, ok := vc.(*voice.Manager)
	require.True(t, ok)
	assert.False(t, m.Active())
	assert.ErrorIs(t, m.Start(context.Background()), voice.ErrNoCredential)
}

func TestToggleModeWithoutVoiceBackend(t *testing.T) {
	p := newTestPanel(t, "key", &streamerFactory{}, nil)
	require.NoError(t, p.Open(context.Background()))
	assert.ErrorIs(t, p.ToggleMode(context.Background()), ErrVoiceUnavailable)
	assert.Equal(t, ModeText, p.View().Mode)
}

func TestVoiceTurnAppendsPair(t *testing.T) {
	fv := &fakeVoice{}
	p := newTestPanel(t, "key", &streamerFactory{}, fv)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))
	require.NoError(t, p.ToggleMode(ctx))

	fv.trans("what are", "")
	v := p.View()
	assert.Equal(t, "what are", v.LiveUser)

	fv.turn("what are your hours", "We are open daily.")
	turns := p.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, conversation.RoleUser, turns[1].Role)
	assert.Equal(t, "what are your hours", turns[1].Content)
	assert.Equal(t, conversation.RoleModel, turns[2].Role)
	assert.Equal(t, "We are open daily.", turns[2].Content)
}

func TestCloseStopsVoiceAndResetsMode(t *testing.T) {
	fv := &fakeVoice{}
	p := newTestPanel(t, "key", &streamerFactory{}, fv)
	ctx := context.Background()
	require.NoError(t, p.Open(ctx))
	require.NoError(t, p.ToggleMode(ctx))

	p.Close()
	v := p.View()
	assert.False(t, v.Open)
	assert.Equal(t, ModeText, v.Mode)
	assert.False(t, v.Listening)
	assert.Equal(t, 1, fv.stops)
}

func TestStatePublishedOnChange(t *testing.T) {
	p := newTestPanel(t, "key", &streamerFactory{}, nil)
	states := make(chan pipeline.Event, 16)
	p.Bus().Subscribe(pipeline.EventStateChanged, states)

	require.NoError(t, p.Open(context.Background()))

	select {
	case evt := <-states:
		v, ok := evt.Payload.(View)
		require.True(t, ok)
		assert.True(t, v.Open)
	case <-time.After(time.Second):
		t.Fatal("no state event")
	}
}

func listTurn(p *Panel, id string) (conversation.Turn, bool) {
	for _, t := range p.Turns() {
		if t.ID == id {
			return t, true
		}
	}
	return conversation.Turn{}, false
}
