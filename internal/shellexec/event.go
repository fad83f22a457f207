package shellexec

// Stream identifies a child output pipe.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// OutputEvent is delivered to the listener passed to Execute. It is one of
// DataEvent, BinaryDetectedEvent or BinaryProgressEvent.
type OutputEvent interface {
	outputEvent()
}

// DataEvent carries decoded, ANSI-stripped text from one stream.
type DataEvent struct {
	Stream Stream
	Chunk  string
}

// BinaryDetectedEvent is sent once when the output is found to be binary.
// No DataEvent follows it.
type BinaryDetectedEvent struct{}

// BinaryProgressEvent replaces DataEvent after binary detection.
type BinaryProgressEvent struct {
	// BytesReceived is the total across both streams so far.
	BytesReceived int
}

func (DataEvent) outputEvent()           {}
func (BinaryDetectedEvent) outputEvent() {}
func (BinaryProgressEvent) outputEvent() {}
