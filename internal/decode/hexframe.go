package decode

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseHexFrame parses a bare or AVR-bracketed ("*...;") hex string
// into raw Mode S message bytes, accepting any 7- or 14-byte frame.
// Used to load the hex fixtures in this package's tests; the CLI's
// --ifile reads raw I/Q samples and does not use it.
func ParseHexFrame(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "*")
	s = strings.TrimSuffix(s, ";")

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode: invalid hex frame %q: %w", s, err)
	}
	if len(raw) != 7 && len(raw) != 14 {
		return nil, fmt.Errorf("decode: frame %q has %d bytes, want 7 or 14", s, len(raw))
	}
	return raw, nil
}
