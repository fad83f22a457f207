package shellexec

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DetectEncoding chooses the decoding for a command's output from its first
// chunk. In order it honours a byte order mark, the charset of the locale
// (LC_ALL, LC_CTYPE, LANG), valid UTF-8, and finally content sniffing.
// Anything unrecognised decodes as UTF-8.
func DetectEncoding(first []byte) encoding.Encoding {
	switch {
	case bytes.HasPrefix(first, []byte{0xEF, 0xBB, 0xBF}):
		return unicode.UTF8BOM
	case bytes.HasPrefix(first, []byte{0xFF, 0xFE}):
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case bytes.HasPrefix(first, []byte{0xFE, 0xFF}):
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	}

	if name := localeCharset(); name != "" {
		if enc, err := htmlindex.Get(name); err == nil {
			return enc
		}
		log.Debug("unsupported locale charset %q", name)
	}

	if validUTF8Prefix(first) {
		return unicode.UTF8
	}

	enc, name, _ := charset.DetermineEncoding(first, "text/plain")
	if enc == nil {
		return unicode.UTF8
	}
	log.Debug("sniffed output charset %s", name)
	return enc
}

// EncodingName returns the WHATWG name of enc, or "unknown".
func EncodingName(enc encoding.Encoding) string {
	if enc == unicode.UTF8 || enc == unicode.UTF8BOM {
		return "utf-8"
	}
	if name, err := htmlindex.Name(enc); err == nil {
		return name
	}
	return "unknown"
}

// localeCharset extracts the charset from the first set locale variable,
// e.g. "UTF-8" from "en_US.UTF-8@euro".
func localeCharset() string {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		_, cs, ok := strings.Cut(v, ".")
		if !ok {
			return ""
		}
		cs, _, _ = strings.Cut(cs, "@")
		return cs
	}
	return ""
}

// validUTF8Prefix reports whether b is valid UTF-8, ignoring an incomplete
// rune at the end.
func validUTF8Prefix(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		tail := b[len(b)-i:]
		if utf8.RuneStart(tail[0]) {
			return !utf8.FullRune(tail) && utf8.Valid(b[:len(b)-i])
		}
	}
	return false
}

// streamDecoder decodes a byte stream incrementally. Bytes that end in the
// middle of a character are held until the next call.
type streamDecoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newStreamDecoder(enc encoding.Encoding) *streamDecoder {
	return &streamDecoder{
		t:   enc.NewDecoder(),
		dst: make([]byte, 4*readBufferSize),
	}
}

// Decode converts p, plus any bytes held from earlier calls, to a string.
// With final set the held bytes are flushed and invalid input is replaced
// with U+FFFD.
func (d *streamDecoder) Decode(p []byte, final bool) string {
	src := make([]byte, 0, len(d.pending)+len(p))
	src = append(append(src, d.pending...), p...)
	d.pending = nil

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, final)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String()
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case errors.Is(err, transform.ErrShortSrc) && !final:
			d.pending = src
			return out.String()
		default:
			// Unrecoverable input: emit a replacement and skip a byte.
			out.WriteRune(utf8.RuneError)
			if len(src) == 0 {
				return out.String()
			}
			src = src[1:]
		}
	}
}
