// Package encoding encodes text inputs into the bytes piped to processes.
package encoding

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/slok/stager/internal/model"
)

const (
	UTF8    = "utf8"
	UTF16LE = "utf16le"
	Latin1  = "latin1"
)

// Names returns the supported encoding names.
func Names() []string { return []string{UTF8, UTF16LE, Latin1} }

// Encode encodes s with the named encoding, empty means UTF8.
func Encode(s, name string) ([]byte, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "", UTF8:
		return []byte(s), nil
	case UTF16LE, "ucs2":
		enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case Latin1, "iso88591":
		enc = charmap.ISO8859_1
	default:
		return nil, fmt.Errorf("unknown encoding %q: %w", name, model.ErrNotValid)
	}

	b, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("could not encode input as %s: %w", name, err)
	}
	return b, nil
}
