package roster

import "time"

// syntheticBase marks a roster key as a synthetic Mode A/C sighting
// rather than a real 24-bit ICAO address, so the two never collide in
// the same map: a real Mode-S aircraft's address always fits in 24
// bits, so setting bit 24 guarantees a disjoint key space.
const syntheticBase = 1 << 24

func syntheticKey(modeA uint16) uint32 {
	return syntheticBase | uint32(modeA)
}

// ReceiveModeAC records a synthetic Mode A/C hit, keyed by its squawk
// so repeated sightings of the same code accumulate on one record.
// modeC, when hasModeC is true, must already be in the same 100ft
// Gillham bucket unit Mode-S altitudes are stored in (see
// GillhamBucket), so Correlate can compare the two directly.
func (r *Roster) ReceiveModeAC(modeA uint16, modeC int, hasModeC bool) *Aircraft {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := syntheticKey(modeA)
	a, existed := r.byAddr[key]
	if !existed {
		a = newAircraft(key)
		a.HexAddr = "~" + a.HexAddr
		a.ModeACFlags |= FlagModeAC
		r.byAddr[key] = a
		r.order = append([]*Aircraft{a}, r.order...)
	}

	a.Messages++
	a.Seen = time.Now()
	a.ModeA = modeA
	if hasModeC {
		a.ModeC = modeC
		a.ModeACFlags &^= FlagModeAOnly
	} else {
		a.ModeACFlags |= FlagModeAOnly
	}
	return a
}

// Correlate cross-links every synthetic Mode A/C record against the
// real Mode-S records in the roster. It is invoked periodically from
// the display tick rather than from Receive, since a useful
// correlation needs the full current roster, not just the record
// just touched:
//
//   - matching squawks increment the real record's ModeACount and set
//     FlagModeAHit on both;
//   - altitudes within one Gillham step (+-100ft) increment ModeCCount
//     and set FlagModeCHit on both;
//   - once a real record has both counters positive (or a
//     Mode-A-only synthetic record's squawk uniquely matches one real
//     record), the synthetic record is marked FlagModesHit and hidden
//     from display as a duplicate sighting.
func (r *Roster) Correlate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var synthetic, real []*Aircraft
	for _, a := range r.byAddr {
		if a.ModeACFlags&FlagModeAC != 0 {
			synthetic = append(synthetic, a)
		} else if a.Squawk != 0 || a.Altitude != 0 {
			real = append(real, a)
		}
	}

	for _, a := range synthetic {
		a.ModeACFlags &^= FlagModeAHit | FlagModeCHit | FlagModesHit

		squawkHits := 0
		for _, b := range real {
			if a.ModeA != 0 && b.Squawk == a.ModeA {
				b.ModeACount++
				b.ModeACFlags |= FlagModeAHit
				a.ModeACFlags |= FlagModeAHit
				squawkHits++
			}
			if a.ModeACFlags&FlagModeAOnly == 0 && withinOneGillhamStep(a.ModeC, b.ModeC) {
				b.ModeCCount++
				b.ModeACFlags |= FlagModeCHit
				a.ModeACFlags |= FlagModeCHit
			}
			if b.ModeACount > 0 && b.ModeCCount > 0 {
				b.ModeACFlags |= FlagModesHit
			}
		}

		modeAOnlyUniqueMatch := a.ModeACFlags&FlagModeAOnly != 0 && squawkHits == 1
		bothHit := a.ModeACFlags&FlagModeAHit != 0 && a.ModeACFlags&FlagModeCHit != 0
		if modeAOnlyUniqueMatch || bothHit {
			a.ModeACFlags |= FlagModesHit
		}
	}
}

// withinOneGillhamStep reports whether two Mode-C Gillham codes are
// within +-1 (i.e. +-100ft).
func withinOneGillhamStep(a, b int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= 1
}

// IsSynthetic reports whether a is a synthetic Mode A/C sighting.
func (a *Aircraft) IsSynthetic() bool { return a.ModeACFlags&FlagModeAC != 0 }

// Hidden reports whether a synthetic record has been identified as a
// duplicate of a known Mode-S aircraft and should be suppressed from
// display output.
func (a *Aircraft) Hidden() bool {
	return a.IsSynthetic() && a.ModeACFlags&FlagModesHit != 0
}
