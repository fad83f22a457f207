package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoAPIKey is returned by ReadAPIKey when the user enters nothing.
var ErrNoAPIKey = errors.New("no API key entered")

// SecretReader reads a value without echoing it.
type SecretReader interface {
	ReadSecret(label string) (string, error)
}

// TerminalSecretReader reads secrets from a terminal with echo disabled.
type TerminalSecretReader struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalSecretReader creates a TerminalSecretReader reading from in,
// normally os.Stdin, and writing the label to out.
func NewTerminalSecretReader(in *os.File, out io.Writer) *TerminalSecretReader {
	return &TerminalSecretReader{In: in, Out: out}
}

// ReadSecret writes label and reads one line with echo disabled.
func (r *TerminalSecretReader) ReadSecret(label string) (string, error) {
	_, _ = fmt.Fprint(r.Out, label)
	secret, err := term.ReadPassword(int(r.In.Fd()))
	// The newline typed by the user was not echoed.
	_, _ = fmt.Fprintln(r.Out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(secret), nil
}

// ReadAPIKey asks for the model API key that envVar would have supplied and
// returns it trimmed.
func ReadAPIKey(r SecretReader, envVar string) (string, error) {
	key, err := r.ReadSecret(fmt.Sprintf("Gemini API key (%s is not set): ", envVar))
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}
