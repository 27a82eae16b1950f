package bus

import "time"

// Event kinds published by the engine. Subscribers filter on the namespace
// prefix ("store.", "transport.").
const (
	KindConversations = "store.conversations"
	KindMessages      = "store.messages"
	KindSelection     = "store.selection"
	KindTyping        = "store.typing"
	KindUpload        = "store.upload"
	KindError         = "store.error"

	KindTransportConnected    = "transport.connected"
	KindTransportDisconnected = "transport.disconnected"
	KindLinkChanged           = "transport.link"
)

// Event represents a state change published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
