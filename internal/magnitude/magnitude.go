// Package magnitude precomputes the (I,Q) -> magnitude lookup table
// used to turn raw 8-bit I/Q sample pairs into 16-bit signal
// magnitudes (spec component C1).
package magnitude

import "math"

// Table is a 256x256 lookup, flattened as i*256+q, mapping a raw
// (I,Q) sample pair to its 16-bit magnitude.
type Table struct {
	lut [256 * 256]uint16
}

// New builds the magnitude table. The formula centres each 8-bit
// sample about 127.5 by computing 2*x-255, which keeps the
// intermediate arithmetic in integers while avoiding a half-integer
// bias, then scales to use the full 16-bit output range.
func New() *Table {
	t := &Table{}
	for i := 0; i < 256; i++ {
		for q := 0; q < 256; q++ {
			di := float64(2*i - 255)
			dq := float64(2*q - 255)
			mag := 258.433254*math.Sqrt(di*di+dq*dq) - 365.4798
			t.lut[i*256+q] = clamp(mag)
		}
	}
	return t
}

func clamp(v float64) uint16 {
	r := math.Round(v)
	switch {
	case r < 0:
		return 0
	case r > 65535:
		return 65535
	default:
		return uint16(r)
	}
}

// Lookup returns the magnitude for a given (I,Q) sample pair.
func (t *Table) Lookup(i, q uint8) uint16 {
	return t.lut[int(i)*256+int(q)]
}

// Convert fills out with the magnitudes of the interleaved I,Q byte
// pairs in iq. len(iq) must be even; len(out) must be len(iq)/2.
func (t *Table) Convert(iq []byte, out []uint16) {
	n := len(iq) / 2
	for j := 0; j < n; j++ {
		out[j] = t.lut[int(iq[2*j])*256+int(iq[2*j+1])]
	}
}
