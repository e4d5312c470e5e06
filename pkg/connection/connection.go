// Package connection carries the widget protocol over a bidirectional
// transport.
package connection

// ConnectionState represents the state of a connection.
type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateConnected
	// ConnectionStateFailed means the transport broke.
	ConnectionStateFailed
	// ConnectionStateClosed means the connection was closed by either side.
	ConnectionStateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is a widget client attached to the server.
type Connection interface {
	// PeerID returns the unique identifier for this connection.
	PeerID() string

	// RegisterHandler installs the handler for inbound traffic. It must be
	// called before Start.
	RegisterHandler(handler Handler)

	// Start begins reading and writing.
	Start()

	// Send queues msg for the peer. It reports false when the connection
	// is closed or its outbound queue is full.
	Send(msg Message) bool

	// Done is closed once the connection has shut down.
	Done() <-chan struct{}

	// Close closes the connection and releases resources.
	Close() error
}
