// Package decode implements the Mode S message decoder: Downlink
// Format dispatch, extended-squitter content, and the CRC-based ICAO
// recovery for reply formats whose parity is XORed with the sender's
// address. It dispatches DF17 and DF18 extended squitters, including
// velocity subtypes 1-4, and corrects bit errors using
// internal/crc's precomputed syndrome table rather than a brute-force
// bit-flip search.
package decode

import (
	"fmt"
	"math"
	"time"

	cache "github.com/patrickmn/go-cache"

	"go1090/internal/crc"
	"go1090/internal/modes"
)

// aisCharset is the 6-bit callsign alphabet used by DF17/18 ME types 1-4.
var aisCharset = []byte("?ABCDEFGHIJKLMNOPQRSTUVWXYZ????? ???????????????0123456789??????")

// Flags holds the per-field validity bits of a decoded message.
type Flags struct {
	CrcOk         bool
	AltitudeValid bool
	CallsignValid bool
	SquawkValid   bool
	HeadingValid  bool
	SpeedValid    bool
	VertRateValid bool
	LatValid      bool // not set by Decode; the roster records a resolved position in Aircraft.PositionSet
	LonValid      bool
	OnGroundValid bool
	OnGround      bool
	CprOddValid   bool
	CprEvenValid  bool
}

// Message is the fully decoded Mode S (or synthetic Mode A/C) reply.
type Message struct {
	DF      int    // Downlink Format, 0-24, or modes.ModeACType for Mode A/C
	ICAO    uint32 // 24-bit ICAO address
	Raw     []byte // 56- or 112-bit raw payload
	Flags   Flags
	CA      int // responder capability (DF11/17/18)
	METype  int
	MESub   int

	Altitude      int
	AltitudeUnit  int
	Squawk        uint16 // Mode-A code: its four octal digits written as a decimal number (squawk 7700 is 7700), not bit-packed
	Heading       int    // 0-359
	Velocity      int    // knots
	VertRate      int    // ft/min
	RawLatitude   int    // 17-bit CPR latitude
	RawLongitude  int    // 17-bit CPR longitude
	Callsign      [8]byte
	Signal        uint8
	CorrectedBits int
	Tick          uint64
	FlightStatus  int // DF4/5/20/21
}

// Options configure a Decoder's error-correction and CRC policy.
type Options struct {
	FixErrors     bool // allow single-bit correction
	Aggressive    bool // also allow two-bit correction on DF17
	CheckCRC      bool // discard frames whose CRC doesn't validate
	AllowDFChange bool // permit a correction that flips the DF field
	ICAOCacheTTL  time.Duration
}

// DefaultOptions enables single-bit error correction and CRC
// checking, with no aggressive two-bit correction and no correction
// that touches the DF field.
func DefaultOptions() Options {
	return Options{
		FixErrors:    true,
		CheckCRC:     true,
		ICAOCacheTTL: modes.DefaultDeleteTTL,
	}
}

// Decoder parses raw Mode S byte frames into Messages.
type Decoder struct {
	opts      Options
	icaoCache *cache.Cache
}

// NewDecoder builds a decoder with the given options, allocating the
// recently-seen-ICAO cache bruteForceAP relies on.
func NewDecoder(opts Options) *Decoder {
	ttl := opts.ICAOCacheTTL
	if ttl <= 0 {
		ttl = modes.DefaultDeleteTTL
	}
	return &Decoder{
		opts:      opts,
		icaoCache: cache.New(ttl, ttl/6),
	}
}

// lenByType returns the message length in bits for a given DF.
func lenByType(df int) int {
	switch df {
	case 16, 17, 18, 19, 20, 21:
		return modes.LongMsgBits
	default:
		return modes.ShortMsgBits
	}
}

// Decode parses a raw Mode S frame (7 or 14 bytes) demodulated by the
// preamble detector. tick is the 12 MHz capture timestamp, signal the
// 8-bit signal level the caller measured for the frame (stored as
// is). Returns an error only
// when the buffer is too short for the DF it claims to carry; CRC
// failure is reported via Flags.CrcOk, not an error, since it is a
// routine and recoverable outcome rather than a programming fault.
func (d *Decoder) Decode(raw []byte, tick uint64, signal uint8) (*Message, error) {
	df := int(raw[0]) >> 3
	bits := lenByType(df)
	if len(raw)*8 < bits {
		return nil, fmt.Errorf("decode: frame too short for DF%d: have %d bits, need %d", df, len(raw)*8, bits)
	}
	msg := make([]byte, bits/8)
	copy(msg, raw)

	m := &Message{DF: df, Raw: msg, Tick: tick, Signal: signal}

	crcField := crc.ParityOf(msg, bits)
	computed := crc.Checksum(msg, bits)
	m.Flags.CrcOk = crcField == computed

	if !m.Flags.CrcOk && d.opts.FixErrors && (df == 11 || df == 17) {
		table := crc.TableFor(bits)
		if n, ok := table.Correct(msg, d.opts.Aggressive && df == 17, d.opts.AllowDFChange); ok {
			m.CorrectedBits = n
			m.Flags.CrcOk = true
			// DF may have changed if AllowDFChange let a fix touch it.
			df = int(msg[0]) >> 3
			m.DF = df
		}
	}

	m.CA = int(msg[0]) & 7
	m.ICAO = uint32(msg[1])<<16 | uint32(msg[2])<<8 | uint32(msg[3])

	if df != 11 && df != 17 && df != 18 {
		// These DFs XOR the parity with the sender's ICAO address
		// (reply to an interrogation); recover it by brute force
		// against recently-seen addresses.
		if addr, ok := d.bruteForceAP(msg, bits); ok {
			m.ICAO = addr
			m.Flags.CrcOk = true
		} else {
			m.Flags.CrcOk = false
		}
	} else if m.Flags.CrcOk && m.CorrectedBits == 0 {
		d.icaoCache.SetDefault(icaoKey(m.ICAO), m.ICAO)
	}

	if !d.opts.CheckCRC || m.Flags.CrcOk {
		d.decodeFields(m, msg)
	}

	return m, nil
}

func icaoKey(addr uint32) string {
	return fmt.Sprintf("%06X", addr)
}

// bruteForceAP recovers the ICAO address for AP-xored downlink
// formats by XORing the computed checksum back into the parity field
// and checking whether the result matches a recently-seen address.
// (ADDR xor CRC) xor CRC == ADDR.
func (d *Decoder) bruteForceAP(msg []byte, bits int) (uint32, bool) {
	switch msg[0] >> 3 {
	case 0, 4, 5, 16, 20, 21, 24:
	default:
		return 0, false
	}

	aux := make([]byte, len(msg))
	copy(aux, msg)
	last := bits/8 - 1

	computed := crc.Checksum(aux, bits)
	aux[last] ^= byte(computed)
	aux[last-1] ^= byte(computed >> 8)
	aux[last-2] ^= byte(computed >> 16)

	addr := uint32(aux[last-2])<<16 | uint32(aux[last-1])<<8 | uint32(aux[last])
	if _, found := d.icaoCache.Get(icaoKey(addr)); found {
		return addr, true
	}
	return 0, false
}

// decodeFields populates the DF-specific fields of m once the CRC
// (or its correction) is accepted.
func (d *Decoder) decodeFields(m *Message, msg []byte) {
	switch m.DF {
	case 0, 4, 5, 16, 20, 21:
		m.FlightStatus = int(msg[0]) & 7
		decodeIdentity(m, msg)
		if m.DF == 0 || m.DF == 4 || m.DF == 16 || m.DF == 20 {
			m.Altitude, m.AltitudeUnit = decodeAC13(msg)
			m.Flags.AltitudeValid = true
		}
		if m.DF == 5 || m.DF == 21 {
			m.Flags.SquawkValid = true
		}
		m.Flags.OnGroundValid = true
		m.Flags.OnGround = m.FlightStatus == 1 || m.FlightStatus == 3

	case 11:
		// ICAO + capability only; nothing further to extract.

	case 17, 18:
		m.METype = int(msg[4]) >> 3
		m.MESub = int(msg[4]) & 7
		decodeExtendedSquitter(m, msg)
	}
}

func decodeIdentity(m *Message, msg []byte) {
	a := ((msg[3] & 0x80) >> 5) | ((msg[2] & 0x02) >> 0) | ((msg[2] & 0x08) >> 3)
	b := ((msg[3] & 0x02) << 1) | ((msg[3] & 0x08) >> 2) | ((msg[3] & 0x20) >> 5)
	c := ((msg[2] & 0x01) << 2) | ((msg[2] & 0x04) >> 1) | ((msg[2] & 0x10) >> 4)
	d := ((msg[3] & 0x01) << 2) | ((msg[3] & 0x04) >> 1) | ((msg[3] & 0x10) >> 4)
	m.Squawk = uint16(a)*1000 + uint16(b)*100 + uint16(c)*10 + uint16(d)
}

// decodeAC13 decodes the 13-bit AC altitude field of DF0/4/16/20.
func decodeAC13(msg []byte) (altitude, unit int) {
	mBit := msg[3] & (1 << 6)
	qBit := msg[3] & (1 << 4)

	if mBit != 0 {
		return 0, modes.UnitMeters // metric AC altitude: not decoded, as upstream.
	}
	unit = modes.UnitFeet
	if qBit == 0 {
		return 0, unit // Gillham/Mode-C 100ft encoding without Q: unresolved here.
	}
	n := (int(msg[2]&31) << 6) |
		(int(msg[3]&0x80) >> 2) |
		(int(msg[3]&0x20) >> 1) |
		int(msg[3]&15)
	altitude = n*25 - 1000
	return altitude, unit
}

// decodeAC12 decodes the 12-bit AC altitude field carried by DF17/18
// airborne-position ME types.
func decodeAC12(msg []byte) (altitude, unit int) {
	qBit := msg[5] & 1
	if qBit == 0 {
		return 0, modes.UnitFeet
	}
	n := (int(msg[5]>>1) << 4) | int(msg[6]>>4)
	return n*25 - 1000, modes.UnitFeet
}

func decodeExtendedSquitter(m *Message, msg []byte) {
	switch {
	case m.METype >= 1 && m.METype <= 4:
		decodeCallsign(m, msg)

	case m.METype >= 5 && m.METype <= 8:
		// Surface position.
		decodePositionFields(m, msg)
		m.Flags.OnGroundValid = true
		m.Flags.OnGround = true

	case (m.METype >= 9 && m.METype <= 18) || (m.METype >= 20 && m.METype <= 22):
		// Airborne position (baro or GNSS height).
		m.Altitude, m.AltitudeUnit = decodeAC12(msg)
		m.Flags.AltitudeValid = true
		decodePositionFields(m, msg)
		m.Flags.OnGroundValid = true
		m.Flags.OnGround = false

	case m.METype == 19 && m.MESub >= 1 && m.MESub <= 4:
		decodeVelocity(m, msg)
	}
}

func decodeCallsign(m *Message, msg []byte) {
	idx := []byte{
		msg[5] >> 2,
		((msg[5] & 3) << 4) | (msg[6] >> 4),
		((msg[6] & 15) << 2) | (msg[7] >> 6),
		msg[7] & 63,
		msg[8] >> 2,
		((msg[8] & 3) << 4) | (msg[9] >> 4),
		((msg[9] & 15) << 2) | (msg[10] >> 6),
		msg[10] & 63,
	}
	for i, v := range idx {
		m.Callsign[i] = aisCharset[v]
	}
	m.Flags.CallsignValid = true
}

// decodePositionFields extracts the CPR format flag and raw 17-bit
// lat/lon from a surface or airborne position ME.
func decodePositionFields(m *Message, msg []byte) {
	odd := int(msg[6])&(1<<2) != 0
	if odd {
		m.Flags.CprOddValid = true
	} else {
		m.Flags.CprEvenValid = true
	}
	m.RawLatitude = ((int(msg[6]) & 3) << 15) | (int(msg[7]) << 7) | (int(msg[8]) >> 1)
	m.RawLongitude = ((int(msg[8]) & 1) << 16) | (int(msg[9]) << 8) | int(msg[10])
}

func decodeVelocity(m *Message, msg []byte) {
	switch m.MESub {
	case 1, 2:
		ewDir := (int(msg[5]) & 4) >> 2
		ewVel := ((int(msg[5]) & 3) << 8) | int(msg[6])
		nsDir := (int(msg[7]) & 0x80) >> 7
		nsVel := ((int(msg[7]) & 0x7f) << 3) | ((int(msg[8]) & 0xe0) >> 5)

		m.Velocity = int(math.Sqrt(float64(nsVel*nsVel + ewVel*ewVel)))
		m.Flags.SpeedValid = true

		if m.Velocity != 0 {
			ewv, nsv := float64(ewVel), float64(nsVel)
			if ewDir == 1 { // West
				ewv = -ewv
			}
			if nsDir == 1 { // South
				nsv = -nsv
			}
			heading := math.Atan2(ewv, nsv) * 360 / (2 * math.Pi)
			if heading < 0 {
				heading += 360
			}
			m.Heading = int(heading)
		}
		m.Flags.HeadingValid = true

		decodeVertRate(m, msg)

	case 3, 4:
		headingValid := int(msg[5])&(1<<2) != 0
		if headingValid {
			m.Heading = int((360.0 / 128) * float64(((int(msg[5])&3)<<5)|(int(msg[6])>>3)))
			m.Flags.HeadingValid = true
		}
		airspeed := ((int(msg[7]) & 0x7f) << 3) | ((int(msg[8]) & 0xe0) >> 5)
		if airspeed != 0 {
			m.Velocity = airspeed - 1
			m.Flags.SpeedValid = true
		}
		decodeVertRate(m, msg)
	}
}

// decodeVertRate decodes the vertical-rate sign and magnitude fields
// shared by ME type 19 subtypes 1-4. The baro/GNSS source bit is not
// read.
func decodeVertRate(m *Message, msg []byte) {
	sign := (int(msg[8]) & 0x8) >> 3
	magnitude := ((int(msg[8]) & 7) << 6) | ((int(msg[9]) & 0xfc) >> 2)
	rate := (magnitude - 1) * 64
	if sign != 0 {
		rate = -rate
	}
	m.VertRate = rate
	m.Flags.VertRateValid = true
}
