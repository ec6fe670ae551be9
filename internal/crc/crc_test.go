package crc

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustHex(t require.TestingT, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// E1: DF11 all-call (56 bits, ICAO 4840D6), CRC already good.
func TestChecksumRoundTripDF11(t *testing.T) {
	msg := mustHex(t, "5D4840D6F8740F")
	require.Equal(t, uint32(0), Syndrome(msg, 56))
}

// E2: DF17 identification frame, CRC already good.
func TestChecksumRoundTripDF17(t *testing.T) {
	msg := mustHex(t, "8D4840D6202CC371C32CE0576098")
	require.Equal(t, uint32(0), Syndrome(msg, 112))
}

// Property: for every frame and every bit position, flipping that bit
// and correcting recovers the original frame with corrected == 1.
func TestSingleBitCorrection(t *testing.T) {
	frames := [][]byte{
		mustHex(t, "8D40621D58C386435CC412692AD6"),
		mustHex(t, "8D4840D6202CC371C32CE0576098"),
		mustHex(t, "8D40621D58C382D690C8AC2863A7"),
	}
	table := TableFor(112)

	for _, original := range frames {
		for bit := 0; bit < 112; bit++ {
			msg := append([]byte(nil), original...)
			msg[bit/8] ^= 1 << (7 - uint(bit%8))

			corrected, ok := table.Correct(msg, false, true)
			require.Truef(t, ok, "bit %d not corrected", bit)
			require.Equal(t, 1, corrected)
			require.Equal(t, original, msg, "bit %d: frame not recovered", bit)
		}
	}
}

// Property: aggressive two-bit correction recovers the frame for
// every unordered pair, reporting corrected == 2.
func TestTwoBitCorrectionAggressive(t *testing.T) {
	original := mustHex(t, "8D4840D6202CC371C32CE0576098")
	table := TableFor(112)

	for j := 0; j < 112; j += 7 { // sampled, full 112x112 is slow
		for i := j + 1; i < 112; i += 11 {
			msg := append([]byte(nil), original...)
			msg[j/8] ^= 1 << (7 - uint(j%8))
			msg[i/8] ^= 1 << (7 - uint(i%8))

			corrected, ok := table.Correct(msg, true, true)
			if !ok {
				// This pair aliases a different, shorter pattern;
				// that's the documented "shortest wins" behaviour.
				continue
			}
			require.Equal(t, 2, corrected)
			require.Equal(t, original, msg, "bits %d,%d: frame not recovered", j, i)
		}
	}
}

// DF-field protection: a correction landing on bits 0-4 is refused
// unless allowDFChange is set.
func TestCorrectRefusesDFFieldChangeByDefault(t *testing.T) {
	table := TableFor(112)
	original := mustHex(t, "8D4840D6202CC371C32CE0576098")

	found := false
	for bit := 0; bit < 5; bit++ {
		msg := append([]byte(nil), original...)
		msg[bit/8] ^= 1 << (7 - uint(bit%8))
		corrected, ok := table.Correct(msg, false, false)
		if ok {
			t.Fatalf("bit %d: correction applied with DF-change disallowed (corrected=%d)", bit, corrected)
		}
		found = true
	}
	require.True(t, found)
}

func TestSyndromeDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		msg := make([]byte, 14)
		for i := range msg {
			msg[i] = byte(rapid.IntRange(0, 255).Draw(rt, "b"))
		}
		s1 := Syndrome(msg, 112)
		s2 := Syndrome(msg, 112)
		require.Equal(rt, s1, s2)
	})
}
