// Command widget-cli runs the assistant in a terminal, with voice mode on
// the local microphone and speakers.
//
// Type a message and press enter to chat. Commands:
//
//	/voice        toggle voice mode
//	/lang en|ar   switch language
//	/quick <id>   send a quick action (services, fleet, branches, contact)
//	/open /close  open or close the panel
//	/quit         exit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/realtime-ai/assistant-widget/pkg/app"
	"github.com/realtime-ai/assistant-widget/pkg/config"
	"github.com/realtime-ai/assistant-widget/pkg/conversation"
	"github.com/realtime-ai/assistant-widget/pkg/device"
	"github.com/realtime-ai/assistant-widget/pkg/i18n"
	"github.com/realtime-ai/assistant-widget/pkg/logging"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/pipeline"
	"github.com/realtime-ai/assistant-widget/pkg/widget"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	envFile := flag.String("env", ".env", "dotenv file to load")
	noAudio := flag.Bool("no-audio", false, "disable voice mode")
	flag.Parse()

	if err := run(*configPath, *envFile, *noAudio); err != nil {
		fmt.Fprintf(os.Stderr, "widget-cli: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, noAudio bool) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Logging.Level, "console", os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := pipeline.NewEventBus()
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer bus.Stop()

	deps := app.Deps{Log: logger, Metrics: metrics.NewMetrics(prometheus.NewRegistry())}

	var devices *device.Malgo
	if !noAudio {
		devices, err = device.NewMalgo(logging.Component(logger, "device"))
		if err != nil {
			logger.Warn().Err(err).Msg("audio unavailable, voice mode disabled")
		} else {
			defer devices.Close()
		}
	}

	var panel *widget.Panel
	if devices != nil {
		panel = app.NewPanel(cfg, deps, devices, bus)
	} else {
		panel = app.NewPanel(cfg, deps, nil, bus)
	}
	defer panel.Stop()

	printer := newPrinter(os.Stdout)
	events := make(chan pipeline.Event, 64)
	bus.Subscribe(pipeline.EventStateChanged, events)
	bus.Subscribe(pipeline.EventTranscript, events)
	bus.Subscribe(pipeline.EventError, events)
	bus.Subscribe(pipeline.EventWarning, events)
	go printer.run(ctx, panel, events)

	if err := panel.Open(ctx); err != nil {
		logger.Error().Err(err).Msg("open panel")
	}
	printer.render(panel.View())
	fmt.Fprintln(os.Stdout, "type /help for commands")

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, panel, line, os.Stdout); quit {
				return nil
			}
		}
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// handleLine runs one input line and reports whether the user quit.
func handleLine(ctx context.Context, panel *widget.Panel, line string, w io.Writer) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if !panel.Send(ctx, line) {
			fmt.Fprintln(w, "(message not sent)")
		}
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(w, "/voice  /lang en|ar  /quick <id>  /open  /close  /quit")
	case "/voice":
		if err := panel.ToggleMode(ctx); err != nil {
			fmt.Fprintf(w, "voice: %v\n", err)
		}
	case "/lang":
		if len(fields) < 2 {
			fmt.Fprintln(w, "usage: /lang en|ar")
			return false
		}
		lang, err := i18n.ParseLanguage(fields[1])
		if err == nil {
			err = panel.SetLanguage(ctx, lang)
		}
		if err != nil {
			fmt.Fprintf(w, "language: %v\n", err)
		}
	case "/quick":
		if len(fields) < 2 || !panel.QuickAction(ctx, fields[1]) {
			fmt.Fprintf(w, "quick actions: %s\n", strings.Join(i18n.QuickActionIDs, ", "))
		}
	case "/open":
		if err := panel.Open(ctx); err != nil {
			fmt.Fprintf(w, "open: %v\n", err)
		}
	case "/close":
		panel.Close()
	default:
		fmt.Fprintf(w, "unknown command %s\n", fields[0])
	}
	return false
}

// printer writes each finalized turn once, plus live voice transcripts.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[string]bool
	lang    i18n.Language
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, printed: make(map[string]bool)}
}

func (p *printer) run(ctx context.Context, panel *widget.Panel, events <-chan pipeline.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			switch evt.Type {
			case pipeline.EventStateChanged:
				p.render(panel.View())
			case pipeline.EventTranscript:
				if tp, ok := evt.Payload.(pipeline.TranscriptPayload); ok && (tp.User != "" || tp.Assistant != "") {
					p.live(tp)
				}
			case pipeline.EventError, pipeline.EventWarning:
				p.line(fmt.Sprintf("! %v", evt.Payload))
			}
		}
	}
}

func (p *printer) render(v widget.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.Language != p.lang {
		p.lang = v.Language
		fmt.Fprintf(p.w, "== %s (%s) ==\n", v.Title, v.Status)
		// Re-localized notices print again.
		delete(p.printed, conversation.GreetingID)
		delete(p.printed, conversation.ConfigErrorID)
	}
	for _, t := range v.Turns {
		if t.Pending || p.printed[t.ID] {
			continue
		}
		p.printed[t.ID] = true
		fmt.Fprintln(p.w, t.String())
	}
}

func (p *printer) live(tp pipeline.TranscriptPayload) {
	p.line(fmt.Sprintf("  [you] %s  [assistant] %s", tp.User, tp.Assistant))
}

func (p *printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}
