// Package roster implements the tracked-aircraft table: insertion and
// update keyed by ICAO address, staleness eviction, and the CPR
// pairing logic that turns two fresh position reports into a
// resolved lat/lon. Each aircraft owns its own record in a plain map
// keyed by address, with no back-pointers between records.
package roster

import (
	"sort"
	"sync"
	"time"

	"go1090/internal/cpr"
	"go1090/internal/decode"
	"go1090/internal/modes"
)

// Mode-A/C correlation flags.
const (
	FlagModeAC     = 1 << iota // synthetic Mode-A/C-only record
	FlagModeAOnly              // valid Mode-A, no usable Mode-C
	FlagModeAHit               // squawk matched a Mode-S record
	FlagModeCHit               // altitude matched a Mode-S record
	FlagModesHit               // considered a duplicate of a known Mode-S aircraft
	FlagModeCOld               // Mode-C correlation counter stale
)

const signalRingLen = 8

// Aircraft is one tracked aircraft or synthetic Mode-A/C sighting.
type Aircraft struct {
	Addr    uint32
	HexAddr string

	Seen     time.Time
	Tick     uint64
	Messages int64

	signalRing [signalRingLen]uint8
	signalPos  int
	SignalLen  int

	Callsign string
	Altitude int
	Speed    int
	Track    int
	VertRate int
	Squawk   uint16
	OnGround bool

	evenCPRLat, evenCPRLon int
	oddCPRLat, oddCPRLon   int
	evenCPRTime            int64
	oddCPRTime             int64
	surfacePosition        bool

	Lat, Lon    float64
	PositionSet bool

	ModeACFlags int
	ModeACount  int
	ModeCCount  int
	ModeA       uint16 // raw squawk for synthetic records
	ModeC       int    // altitude in 100ft Gillham buckets (see GillhamBucket), for real and synthetic records
}

// SignalHistory returns up to the last 8 recorded signal magnitudes,
// oldest first.
func (a *Aircraft) SignalHistory() []uint8 {
	n := a.SignalLen
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		out[i] = a.signalRing[(a.signalPos-n+i+signalRingLen)%signalRingLen]
	}
	return out
}

func (a *Aircraft) pushSignal(v uint8) {
	a.signalRing[a.signalPos] = v
	a.signalPos = (a.signalPos + 1) % signalRingLen
	if a.SignalLen < signalRingLen {
		a.SignalLen++
	}
}

func newAircraft(addr uint32) *Aircraft {
	return &Aircraft{
		Addr:    addr,
		HexAddr: hexAddr(addr),
		Seen:    time.Now(),
	}
}

func hexAddr(addr uint32) string {
	const digits = "0123456789ABCDEF"
	b := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		b[i] = digits[addr&0xF]
		addr >>= 4
	}
	return string(b)
}

// ReceiverLocation is the user-configured fallback reference point for
// local CPR decoding.
type ReceiverLocation struct {
	Lat, Lon float64
	Valid    bool
}

// Roster is the owned, keyed collection of tracked aircraft. It is
// safe for concurrent use, though in practice only the decoder
// goroutine is expected to call Receive.
type Roster struct {
	mu              sync.Mutex
	byAddr          map[uint32]*Aircraft
	order           []*Aircraft // most-recent-first; reordered on update only when reorderOnUpdate is set
	deleteTTL       time.Duration
	reorderOnUpdate bool // exposed as a configuration toggle, default off
	receiver        ReceiverLocation
	lastEviction    time.Time
}

// New creates an empty roster with the default 60s staleness TTL.
func New() *Roster {
	return &Roster{
		byAddr:    make(map[uint32]*Aircraft),
		deleteTTL: modes.DefaultDeleteTTL,
	}
}

// SetDeleteTTL overrides the staleness window.
func (r *Roster) SetDeleteTTL(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteTTL = d
}

// SetReorderOnUpdate toggles whether a receive moves its aircraft to
// the front of Snapshot(). Disabled by default, since most callers
// expect an aircraft's position in the list to stay stable across
// updates.
func (r *Roster) SetReorderOnUpdate(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reorderOnUpdate = on
}

// SetReceiverLocation configures the fallback reference point used
// when no fresher position exists for local CPR decoding.
func (r *Roster) SetReceiverLocation(lat, lon float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiver = ReceiverLocation{Lat: lat, Lon: lon, Valid: true}
}

// Receive updates (or creates) the aircraft record for msg.ICAO and
// returns it. Messages that failed CRC validation are discarded,
// returning nil.
func (r *Roster) Receive(msg *decode.Message) *Aircraft {
	if !msg.Flags.CrcOk {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, existed := r.byAddr[msg.ICAO]
	if !existed {
		a = newAircraft(msg.ICAO)
		r.byAddr[msg.ICAO] = a
		r.order = append([]*Aircraft{a}, r.order...)
	} else if r.reorderOnUpdate {
		r.moveToFront(a)
	}

	a.Seen = time.Now()
	a.Tick = msg.Tick
	a.Messages++
	a.pushSignal(msg.Signal)

	r.applyFields(a, msg)

	return a
}

func (r *Roster) moveToFront(a *Aircraft) {
	for i, o := range r.order {
		if o == a {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.order = append([]*Aircraft{a}, r.order...)
}

// applyFields updates only the fields whose validity flag is set, so
// a message missing some optional field never clobbers previously
// known state.
func (r *Roster) applyFields(a *Aircraft, msg *decode.Message) {
	if msg.Flags.AltitudeValid {
		newModeC := GillhamBucket(msg.Altitude)
		if newModeC != a.ModeC {
			a.ModeCCount = 0
		}
		a.Altitude = msg.Altitude
		a.ModeC = newModeC
	}
	if msg.Flags.SquawkValid {
		a.Squawk = msg.Squawk
	}
	if msg.Flags.CallsignValid {
		a.Callsign = string(msg.Callsign[:])
	}
	if msg.Flags.SpeedValid {
		a.Speed = msg.Velocity
	}
	if msg.Flags.HeadingValid {
		a.Track = msg.Heading
	}
	if msg.Flags.VertRateValid {
		a.VertRate = msg.VertRate
	}
	if msg.Flags.OnGroundValid {
		a.OnGround = msg.OnGround
	}

	if msg.Flags.CprOddValid || msg.Flags.CprEvenValid {
		now := modes.MsTime()
		if msg.Flags.CprOddValid {
			a.oddCPRLat, a.oddCPRLon, a.oddCPRTime = msg.RawLatitude, msg.RawLongitude, now
		} else {
			a.evenCPRLat, a.evenCPRLon, a.evenCPRTime = msg.RawLatitude, msg.RawLongitude, now
		}
		a.surfacePosition = msg.OnGround

		r.resolvePosition(a)
	}
}

// GillhamBucket converts an altitude in feet to the 100ft Gillham
// slot Mode-C squawks are quantized to, so altitudes from Mode-S and
// Mode-A/C replies can be compared on the same scale.
func GillhamBucket(altitudeFt int) int {
	return altitudeFt / 100
}

// resolvePosition attempts the global even/odd CPR decode first, and
// falls back to local/relative decoding against the aircraft's last
// known fix or the configured receiver location.
func (r *Roster) resolvePosition(a *Aircraft) {
	if a.evenCPRTime != 0 && a.oddCPRTime != 0 {
		deltaMs := a.evenCPRTime - a.oddCPRTime
		if deltaMs < 0 {
			deltaMs = -deltaMs
		}
		if deltaMs <= 10000 {
			pos, ok := cpr.DecodeGlobal(cpr.Pair{
				EvenLat: a.evenCPRLat, EvenLon: a.evenCPRLon,
				OddLat: a.oddCPRLat, OddLon: a.oddCPRLon,
				EvenIsNewer: a.evenCPRTime > a.oddCPRTime,
				Surface:     a.surfacePosition,
			})
			if ok {
				a.Lat, a.Lon = pos.Lat, pos.Lon
				a.PositionSet = true
				return
			}
		}
	}

	ref, ok := r.referenceFor(a)
	if !ok {
		return
	}

	odd := a.oddCPRTime >= a.evenCPRTime
	rawLat, rawLon := a.evenCPRLat, a.evenCPRLon
	if odd {
		rawLat, rawLon = a.oddCPRLat, a.oddCPRLon
	}
	if pos, ok := cpr.DecodeLocal(rawLat, rawLon, odd, ref, a.surfacePosition); ok {
		a.Lat, a.Lon = pos.Lat, pos.Lon
		a.PositionSet = true
	}
	// On rejection the position is left unchanged.
}

func (r *Roster) referenceFor(a *Aircraft) (cpr.Position, bool) {
	if a.PositionSet {
		return cpr.Position{Lat: a.Lat, Lon: a.Lon}, true
	}
	if r.receiver.Valid {
		return cpr.Position{Lat: r.receiver.Lat, Lon: r.receiver.Lon}, true
	}
	return cpr.Position{}, false
}

// Lookup returns the aircraft record for addr, or nil.
func (r *Roster) Lookup(addr uint32) *Aircraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byAddr[addr]
}

// Snapshot returns the current roster in most-recent-first order, for
// on-demand rendering by an external consumer.
func (r *Roster) Snapshot() []*Aircraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Aircraft, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of tracked aircraft.
func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAddr)
}

// RemoveStale evicts aircraft not heard from within the configured
// TTL. It is a no-op if called more than once within the same wall
// second.
func (r *Roster) RemoveStale(now time.Time) (evicted []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastEviction.IsZero() && now.Sub(r.lastEviction) < time.Second {
		return nil
	}
	r.lastEviction = now

	for addr, a := range r.byAddr {
		if now.Sub(a.Seen) > r.deleteTTL {
			delete(r.byAddr, addr)
			evicted = append(evicted, addr)
		}
	}
	if len(evicted) > 0 {
		kept := r.order[:0:0]
		evictedSet := make(map[uint32]bool, len(evicted))
		for _, addr := range evicted {
			evictedSet[addr] = true
		}
		for _, a := range r.order {
			if !evictedSet[a.Addr] {
				kept = append(kept, a)
			}
		}
		r.order = kept
	}
	return evicted
}

// SortedByAddr returns a copy of the roster sorted by ICAO address,
// a convenience for deterministic display.
func (r *Roster) SortedByAddr() []*Aircraft {
	out := r.Snapshot()
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
