package core

//go:generate mockgen -destination=mocks/signal_connection.go -package=mocks . SignalConnection

// Frame is one encoded outbound message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must drain and release it after Close().
type SignalConnection interface {
	// TrySend enqueues f without blocking.
	TrySend(Frame) error
	Close()
}
