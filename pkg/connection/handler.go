package connection

// Handler receives connection events. OnMessage calls for one connection
// are made from its read goroutine, in arrival order.
type Handler interface {
	OnStateChange(conn Connection, state ConnectionState)
	OnMessage(conn Connection, msg Message)
	OnError(conn Connection, err error)
}

// NoOpHandler ignores every event.
type NoOpHandler struct{}

func (NoOpHandler) OnStateChange(Connection, ConnectionState) {}
func (NoOpHandler) OnMessage(Connection, Message)             {}
func (NoOpHandler) OnError(Connection, error)                 {}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	StateChange func(conn Connection, state ConnectionState)
	Message     func(conn Connection, msg Message)
	Error       func(conn Connection, err error)
}

func (h HandlerFuncs) OnStateChange(conn Connection, state ConnectionState) {
	if h.StateChange != nil {
		h.StateChange(conn, state)
	}
}

func (h HandlerFuncs) OnMessage(conn Connection, msg Message) {
	if h.Message != nil {
		h.Message(conn, msg)
	}
}

func (h HandlerFuncs) OnError(conn Connection, err error) {
	if h.Error != nil {
		h.Error(conn, err)
	}
}
