package shellexec

import (
	"bytes"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// IsBinary reports whether data looks like binary content, which is any
// NUL byte. Callers bound data to the sniff window.
func IsBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

// outputState accumulates a command's output. It is owned by the single
// goroutine that delivers events.
type outputState struct {
	sniffLimit  int
	sniffChunks int
	emit        func(OutputEvent)

	decoders map[Stream]*streamDecoder
	chunks   [][]byte
	total    int
	sniffed  int
	binary   bool
	stdout   strings.Builder
	stderr   strings.Builder
}

func newOutputState(opts Options, onEvent func(OutputEvent)) *outputState {
	if onEvent == nil {
		onEvent = func(OutputEvent) {}
	}
	return &outputState{
		sniffLimit:  opts.SniffLimit,
		sniffChunks: opts.SniffChunks,
		emit:        onEvent,
	}
}

func (s *outputState) handle(c chunk) {
	if s.decoders == nil {
		enc := DetectEncoding(c.data)
		log.Debug("decoding output as %s", EncodingName(enc))
		s.decoders = map[Stream]*streamDecoder{
			StreamStdout: newStreamDecoder(enc),
			StreamStderr: newStreamDecoder(enc),
		}
	}
	s.chunks = append(s.chunks, c.data)
	s.total += len(c.data)

	// The sniff buffer only changes while chunks are still among the first
	// sniffChunks.
	if !s.binary && s.sniffed < s.sniffLimit && len(s.chunks) <= s.sniffChunks {
		sniff := bytes.Join(s.chunks, nil)
		if len(sniff) > s.sniffLimit {
			sniff = sniff[:s.sniffLimit]
		}
		s.sniffed = len(sniff)
		if IsBinary(sniff) {
			s.binary = true
			s.emit(BinaryDetectedEvent{})
		}
	}

	text := ansi.Strip(s.decoders[c.stream].Decode(c.data, false))
	s.builder(c.stream).WriteString(text)

	switch {
	case s.binary:
		s.emit(BinaryProgressEvent{BytesReceived: s.total})
	case text != "":
		s.emit(DataEvent{Stream: c.stream, Chunk: text})
	}
}

func (s *outputState) builder(stream Stream) *strings.Builder {
	if stream == StreamStderr {
		return &s.stderr
	}
	return &s.stdout
}

// result flushes the decoders and builds the output fields of a Result.
func (s *outputState) result() *Result {
	for _, stream := range []Stream{StreamStdout, StreamStderr} {
		if dec := s.decoders[stream]; dec != nil {
			s.builder(stream).WriteString(ansi.Strip(dec.Decode(nil, true)))
		}
	}

	res := &Result{
		Stdout:    s.stdout.String(),
		Stderr:    s.stderr.String(),
		RawOutput: bytes.Join(s.chunks, nil),
	}
	res.Output = res.Stdout
	if res.Stderr != "" {
		res.Output += "\n" + res.Stderr
	}
	return res
}
