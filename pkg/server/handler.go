package server

import (
	"context"

	"github.com/realtime-ai/assistant-widget/pkg/device"
	"github.com/realtime-ai/assistant-widget/pkg/widget"
)

// PanelFactory builds the widget panel of a new connection. devices are
// the browser audio endpoints of that connection; ctx ends when it closes.
type PanelFactory func(ctx context.Context, peerID string, devices *device.Remote) (*widget.Panel, error)
