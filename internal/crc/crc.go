// Package crc implements the 24-bit Mode S CRC and a precomputed
// single/two-bit error syndrome table, so single- and two-bit errors
// can be corrected by a direct lookup instead of a brute-force re-scan.
package crc

// Polynomial is the Mode S CRC generator polynomial, 0x1FFF409.
const Polynomial = 0x1FFF409

// checksumTable contains, for each of the first 112 bit positions of a
// message, the 24-bit value to XOR into the running checksum if that
// bit is set. The last 24 entries are zero: the parity field itself
// must not affect the checksum it is protecting.
var checksumTable = [112]uint32{
	0x3935ea, 0x1c9af5, 0xf1b77e, 0x78dbbf, 0xc397db, 0x9e31e9, 0xb0e2f0, 0x587178,
	0x2c38bc, 0x161c5e, 0x0b0e2f, 0xfa7d13, 0x82c48d, 0xbe9842, 0x5f4c21, 0xd05c14,
	0x682e0a, 0x341705, 0xe5f186, 0x72f8c3, 0xc68665, 0x9cb936, 0x4e5c9b, 0xd8d449,
	0x939020, 0x49c810, 0x24e408, 0x127204, 0x093902, 0x049c81, 0xfdb444, 0x7eda22,
	0x3f6d11, 0xe04c8c, 0x702646, 0x381323, 0xe3f395, 0x8e03ce, 0x4701e7, 0xdc7af7,
	0x91c77f, 0xb719bb, 0xa476d9, 0xadc168, 0x56e0b4, 0x2b705a, 0x15b82d, 0xf52612,
	0x7a9309, 0xc2b380, 0x6159c0, 0x30ace0, 0x185670, 0x0c2b38, 0x06159c, 0x030ace,
	0x018567, 0xff38b7, 0x80665f, 0xbfc92b, 0xa01e91, 0xaff54c, 0x57faa6, 0x2bfd53,
	0xea04ad, 0x8af852, 0x457c29, 0xdd4410, 0x6ea208, 0x375104, 0x1ba882, 0x0dd441,
	0xf91024, 0x7c8812, 0x3e4409, 0xe0d800, 0x706c00, 0x383600, 0x1c1b00, 0x0e0d80,
	0x0706c0, 0x038360, 0x01c1b0, 0x00e0d8, 0x00706c, 0x003836, 0x001c1b, 0xfff409,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
}

// Checksum computes the 24-bit Mode S CRC over the first 'bits' bits
// of msg. For 56-bit messages it uses the last 56 entries of the
// table.
func Checksum(msg []byte, bits int) uint32 {
	var offset int
	if bits != 112 {
		offset = 112 - 56
	}

	var crc uint32
	for j := 0; j < bits; j++ {
		sByte := j / 8
		bitmask := byte(1) << (7 - uint(j%8))
		if msg[sByte]&bitmask != 0 {
			crc ^= checksumTable[j+offset]
		}
	}
	return crc
}

// ParityOf extracts the trailing 24-bit parity field of a message of
// the given bit length.
func ParityOf(msg []byte, bits int) uint32 {
	n := bits / 8
	return uint32(msg[n-3])<<16 | uint32(msg[n-2])<<8 | uint32(msg[n-1])
}

// Syndrome is the CRC remainder: zero iff the message is intact.
func Syndrome(msg []byte, bits int) uint32 {
	return ParityOf(msg, bits) ^ Checksum(msg, bits)
}

// errorPattern names the bit position(s) that, flipped, produce a
// given syndrome. Single-bit patterns have Bit2 == -1.
type errorPattern struct {
	Bit1, Bit2 int
}

// SyndromeTable maps a 24-bit syndrome to the shortest known bit-flip
// pattern that produces it, built once for a fixed message length.
type SyndromeTable struct {
	bits    int
	entries map[uint32]errorPattern
}

// BuildSyndromeTable precomputes every single-bit and two-bit error
// syndrome for a message of the given length (56 or 112). Single-bit
// patterns are inserted first so that a two-bit combination that
// aliases a single-bit syndrome never overwrites the shorter pattern.
func BuildSyndromeTable(bits int) *SyndromeTable {
	t := &SyndromeTable{bits: bits, entries: make(map[uint32]errorPattern)}

	msgBytes := bits / 8
	zero := make([]byte, msgBytes)

	flip := func(msg []byte, bit int) {
		msg[bit/8] ^= 1 << (7 - uint(bit%8))
	}

	for j := 0; j < bits; j++ {
		aux := make([]byte, msgBytes)
		copy(aux, zero)
		flip(aux, j)
		s := Syndrome(aux, bits)
		if s == 0 {
			continue
		}
		if _, ok := t.entries[s]; !ok {
			t.entries[s] = errorPattern{Bit1: j, Bit2: -1}
		}
	}

	for j := 0; j < bits; j++ {
		for i := j + 1; i < bits; i++ {
			aux := make([]byte, msgBytes)
			copy(aux, zero)
			flip(aux, j)
			flip(aux, i)
			s := Syndrome(aux, bits)
			if s == 0 {
				continue
			}
			if _, ok := t.entries[s]; !ok {
				t.entries[s] = errorPattern{Bit1: j, Bit2: i}
			}
		}
	}

	return t
}

// tables caches the two fixed-length syndrome tables; building them
// is O(bits^2) and only needs to happen once per process.
var tables = map[int]*SyndromeTable{
	56:  BuildSyndromeTable(56),
	112: BuildSyndromeTable(112),
}

// TableFor returns the precomputed syndrome table for a message length.
func TableFor(bits int) *SyndromeTable {
	return tables[bits]
}

// dfFieldBit reports whether bit position j falls within the 5-bit DF
// field at the head of the message.
func dfFieldBit(j int) bool { return j < 5 }

// Correct attempts to fix msg in place using the syndrome table.
// allowTwoBit gates whether two-bit patterns are applied (aggressive
// mode). allowDFChange gates whether a correction that flips a bit
// inside the 5-bit DF field may be applied at all: by default a
// correction that would change the frame's message type is rejected
// as more likely a false match than a genuine bit error. It returns
// the number of corrected bits (0, 1 or 2) and whether a correction
// was applied.
func (t *SyndromeTable) Correct(msg []byte, allowTwoBit, allowDFChange bool) (corrected int, ok bool) {
	s := Syndrome(msg, t.bits)
	if s == 0 {
		return 0, true
	}
	pat, found := t.entries[s]
	if !found {
		return 0, false
	}
	if pat.Bit2 != -1 && !allowTwoBit {
		return 0, false
	}
	if !allowDFChange && (dfFieldBit(pat.Bit1) || (pat.Bit2 != -1 && dfFieldBit(pat.Bit2))) {
		return 0, false
	}
	msg[pat.Bit1/8] ^= 1 << (7 - uint(pat.Bit1%8))
	if pat.Bit2 == -1 {
		return 1, true
	}
	msg[pat.Bit2/8] ^= 1 << (7 - uint(pat.Bit2%8))
	return 2, true
}
