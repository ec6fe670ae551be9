package demod

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go1090/internal/modes"
)

const (
	testHigh uint16 = 4000
	testLow  uint16 = 50
)

// buildPreamble writes one valid 16-sample Mode S preamble into mag
// starting at offset.
func buildPreamble(mag []uint16, offset int) {
	for i := 0; i < modes.PreambleSamples; i++ {
		mag[offset+i] = testLow
	}
	for _, h := range preambleHigh {
		mag[offset+h] = testHigh
	}
}

// appendBits PPM-encodes bits (MSB-first packed, nbits long) into mag
// starting at offset, two samples per bit.
func appendBits(mag []uint16, offset int, bits []byte, nbits int) {
	for i := 0; i < nbits; i++ {
		bit := (bits[i/8] >> uint(7-i%8)) & 1
		if bit == 1 {
			mag[offset+i*2] = testHigh
			mag[offset+i*2+1] = testLow
		} else {
			mag[offset+i*2] = testLow
			mag[offset+i*2+1] = testHigh
		}
	}
}

func TestCheckPreambleAcceptsValidPattern(t *testing.T) {
	d := NewDetector(DefaultOptions())
	mag := make([]uint16, 32)
	buildPreamble(mag, 0)

	peak, ok := d.checkPreamble(mag, 0)
	require.True(t, ok)
	require.Equal(t, testHigh, peak)
}

func TestCheckPreambleRejectsFlatSignal(t *testing.T) {
	d := NewDetector(DefaultOptions())
	mag := make([]uint16, 32)
	for i := range mag {
		mag[i] = testHigh
	}

	_, ok := d.checkPreamble(mag, 0)
	require.False(t, ok)
}

func TestDemodulateBitsRoundTrip(t *testing.T) {
	want := []byte{0x5D, 0x48, 0x40, 0xD6, 0x20, 0x2C, 0xC3}
	mag := make([]uint16, len(want)*8*2)
	appendBits(mag, 0, want, len(want)*8)

	got, lowConf := demodulateBits(mag, 0, len(want)*8)
	require.Equal(t, want, got)
	require.Equal(t, 0, lowConf)
}

func TestScanBlockFindsEmbeddedDF11Frame(t *testing.T) {
	frameBits := []byte{0x5D, 0x48, 0x40, 0xD6, 0x20, 0x2C, 0xC3}

	mag := make([]uint16, modes.PreambleSamples+modes.LongMsgBits*2+64)
	buildPreamble(mag, 20)
	appendBits(mag, 20+modes.PreambleSamples, frameBits, len(frameBits)*8)

	d := NewDetector(DefaultOptions())
	frames := d.ScanBlock(mag, 1000)

	require.Len(t, frames, 1)
	require.Equal(t, frameBits, frames[0].Bits)
	require.Equal(t, 20, frames[0].Offset)
	require.Equal(t, uint64(1000+20*6), frames[0].Tick)
	require.False(t, frames[0].PhaseEnhanced)
}

func TestScanBlockFindsEmbeddedLongFrame(t *testing.T) {
	// DF17 (10001) top 5 bits selects a 112-bit frame.
	frameBits := make([]byte, modes.LongMsgBytes)
	frameBits[0] = 0x8D
	frameBits[1] = 0x48
	frameBits[2] = 0x40
	frameBits[3] = 0xD6

	mag := make([]uint16, modes.PreambleSamples+modes.LongMsgBits*2+64)
	buildPreamble(mag, 5)
	appendBits(mag, 5+modes.PreambleSamples, frameBits, len(frameBits)*8)

	d := NewDetector(DefaultOptions())
	frames := d.ScanBlock(mag, 0)

	require.Len(t, frames, 1)
	require.Len(t, frames[0].Bits, modes.LongMsgBytes)
	require.Equal(t, frameBits, frames[0].Bits)
}

func TestScanBlockIgnoresSilence(t *testing.T) {
	mag := make([]uint16, 512)
	for i := range mag {
		mag[i] = testLow
	}

	d := NewDetector(DefaultOptions())
	require.Empty(t, d.ScanBlock(mag, 0))
}
