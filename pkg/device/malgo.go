package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/realtime-ai/assistant-widget/pkg/audio"
	"github.com/realtime-ai/assistant-widget/pkg/voice"
)

const periodMillis = 20

// Malgo opens the default system microphone and speaker through miniaudio.
type Malgo struct {
	ctx *malgo.AllocatedContext
	log zerolog.Logger
}

var _ voice.Devices = (*Malgo)(nil)

// NewMalgo initializes the audio backend.
func NewMalgo(log zerolog.Logger) (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("backend", "miniaudio").Msg(message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &Malgo{ctx: ctx, log: log}, nil
}

// OpenInput captures mono float32 audio and delivers fixed-size frames.
// Capture stops when ctx ends or Stop is called.
func (d *Malgo) OpenInput(ctx context.Context, sampleRate, frameSize int, onFrame func([]float32)) (voice.InputStream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = periodMillis
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = audio.Channels
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	framer := audio.NewFramer(frameSize, onFrame)
	dev, err := malgo.InitDevice(d.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			framer.Write(audio.BytesToFloat32(inputSamples))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	stream := &captureStream{dev: dev}
	go func() {
		<-ctx.Done()
		_ = stream.Stop()
	}()
	d.log.Debug().Int("sample_rate", sampleRate).Int("frame_size", frameSize).Msg("capture started")
	return stream, nil
}

// OpenOutput starts a playback device rendering from a fresh timeline.
func (d *Malgo) OpenOutput(sampleRate int) (voice.OutputContext, error) {
	tl := audio.NewTimelineWithConfig(audio.TimelineConfig{SampleRate: sampleRate})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.PeriodSizeInMilliseconds = periodMillis
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = audio.Channels
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(d.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, _ []byte, _ uint32) {
			tl.ReadInto(outputSamples)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	d.log.Debug().Int("sample_rate", sampleRate).Msg("playback started")
	return NewTimelineOutput(tl, func() error {
		err := dev.Stop()
		dev.Uninit()
		return err
	}), nil
}

// Close releases the audio backend. Open streams must be stopped first.
func (d *Malgo) Close() error {
	if err := d.ctx.Uninit(); err != nil {
		return err
	}
	d.ctx.Free()
	return nil
}

type captureStream struct {
	once sync.Once
	dev  *malgo.Device
	err  error
}

func (c *captureStream) Stop() error {
	c.once.Do(func() {
		c.err = c.dev.Stop()
		c.dev.Uninit()
	})
	return c.err
}
