package pipeline

// Transport abstracts the kernel pass-through adaptor that the RX/TX
// stages sit on top of. The pipeline only needs to pull raw requests
// off it and push encoded replies back; framing, session setup, and
// the actual kernel protocol are the adaptor's concern, not ours.
type Transport interface {
	// Receive blocks until the next request arrives, or returns
	// ok==false once the transport is closed (e.g. unmount).
	Receive() (req any, ok bool)
	// Send delivers one encoded reply. Errors are logged by TX and
	// otherwise swallowed: a client that already hung up isn't the
	// pipeline's problem to recover from.
	Send(reply any) error
}
