// Package engine wires the ring buffer, magnitude LUT, preamble/PPM
// and Mode A/C demodulators, the message decoder, the aircraft
// roster, the correlator, and the decoded-frame log into a
// reader/decoder concurrency split, and drives the periodic
// background tasks (staleness eviction, correlation, frame-log
// cleanup, statistics) a display or broadcast consumer would expect.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"go1090/internal/decode"
	"go1090/internal/demod"
	"go1090/internal/framelog"
	"go1090/internal/magnitude"
	"go1090/internal/modes"
	"go1090/internal/ring"
	"go1090/internal/roster"
	"go1090/internal/sampleio"
)

// Options configures an Engine. Zero value is not usable; build one
// with DefaultOptions and override fields.
type Options struct {
	Demod            demod.Options
	Decode           decode.Options
	DeleteTTL        time.Duration
	EnableModeAC     bool
	EnableFrameLog   bool
	FrameLogCapacity int
	DisplayInterval     time.Duration // minimum spacing between display/correlation ticks
	ReceiverLat         float64
	ReceiverLon         float64
	ReceiverLocationSet bool
}

// DefaultOptions returns a conservative configuration: single-bit
// error correction and CRC checking on, Mode A/C demodulation off,
// frame logging on with a 4096-entry cap.
func DefaultOptions() Options {
	return Options{
		Demod:            demod.DefaultOptions(),
		Decode:           decode.DefaultOptions(),
		DeleteTTL:        modes.DefaultDeleteTTL,
		EnableModeAC:     false,
		EnableFrameLog:   true,
		FrameLogCapacity: 4096,
		DisplayInterval:  250 * time.Millisecond,
	}
}

// StatsCounters holds the running pipeline counters. It is a plain
// value type, safe to copy; Stats guards the live copy with a mutex
// and hands out copies through Snapshot.
type StatsCounters struct {
	BlocksProcessed uint64
	BlocksDropped   uint64
	ValidPreambles  uint64
	ModeACFrames    uint64

	GoodCRC uint64
	BadCRC  uint64

	// BitFix[0] counts frames accepted with no correction needed,
	// BitFix[1]/[2] count single/two-bit corrections.
	BitFix [3]uint64
	// PhaseEnhancedBitFix mirrors BitFix for frames that only
	// demodulated cleanly after phase enhancement.
	PhaseEnhancedBitFix [3]uint64
}

// Stats accumulates StatsCounters behind a mutex so the decoder
// goroutine can update it while a stats report reads a consistent
// snapshot concurrently.
type Stats struct {
	mu sync.Mutex
	c  StatsCounters
}

func (s *Stats) recordPreamble() {
	s.mu.Lock()
	s.c.ValidPreambles++
	s.mu.Unlock()
}

func (s *Stats) recordDecode(m *decode.Message, phaseEnhanced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Flags.CrcOk {
		s.c.GoodCRC++
		bucket := m.CorrectedBits
		if bucket > 2 {
			bucket = 2
		}
		s.c.BitFix[bucket]++
		if phaseEnhanced {
			s.c.PhaseEnhancedBitFix[bucket]++
		}
	} else {
		s.c.BadCRC++
	}
}

func (s *Stats) addBlocksDropped(n uint64) {
	s.mu.Lock()
	s.c.BlocksDropped += n
	s.mu.Unlock()
}

func (s *Stats) addBlocksProcessed() {
	s.mu.Lock()
	s.c.BlocksProcessed++
	s.mu.Unlock()
}

func (s *Stats) addModeACFrame() {
	s.mu.Lock()
	s.c.ModeACFrames++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters, safe to read from
// any goroutine.
func (s *Stats) Snapshot() StatsCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Engine holds every pipeline component and threads them explicitly
// through Run, rather than relying on package-level state.
type Engine struct {
	opts Options

	mag      *magnitude.Table
	preamble *demod.Detector
	modeAC   *demod.ModeACDetector
	decoder  *decode.Decoder
	roster   *roster.Roster
	frameLog *framelog.Log
	ring     *ring.Buffer
	stats    Stats

	tick uint64 // running 12 MHz tick clock

	onMessage func(*decode.Message)
	onFrame   func(raw []byte, tick uint64)
}

// New builds an Engine from opts. The CRC syndrome tables (package
// crc) build at init() time, not here; New only allocates per-engine
// state.
func New(opts Options) *Engine {
	e := &Engine{
		opts:     opts,
		mag:      magnitude.New(),
		preamble: demod.NewDetector(opts.Demod),
		modeAC:   demod.NewModeACDetector(),
		decoder:  decode.NewDecoder(opts.Decode),
		roster:   roster.New(),
		ring:     ring.New(modes.RingDepth),
	}
	e.roster.SetDeleteTTL(opts.DeleteTTL)
	if opts.ReceiverLocationSet {
		e.roster.SetReceiverLocation(opts.ReceiverLat, opts.ReceiverLon)
	}
	if opts.EnableFrameLog {
		e.frameLog = framelog.New(opts.DeleteTTL, opts.FrameLogCapacity)
	}
	return e
}

// OnMessage registers a callback invoked for every decoded message
// (real or synthetic Mode A/C).
func (e *Engine) OnMessage(fn func(*decode.Message)) { e.onMessage = fn }

// OnFrame registers a callback invoked for every CRC-accepted Mode S
// frame with its raw payload and tick timestamp, for Beast-style
// re-encapsulation.
func (e *Engine) OnFrame(fn func(raw []byte, tick uint64)) { e.onFrame = fn }

// Roster returns the tracked-aircraft table for on-demand snapshot
// rendering.
func (e *Engine) Roster() *roster.Roster { return e.roster }

// FrameLog returns the decoded-frame log, or nil if disabled.
func (e *Engine) FrameLog() *framelog.Log { return e.frameLog }

// Stats returns a point-in-time copy of the running counters.
func (e *Engine) Stats() StatsCounters { return e.stats.Snapshot() }

// Feed pushes one raw sample block onto the ring, to be consumed by
// Run. It is the producer side of the reader/decoder split; callers
// (normally a reader goroutine fed by sampleio.Source) must not reuse
// buf afterwards. The 12 MHz tick timestamp is assigned by the
// decoder goroutine as it dequeues the block, not here, so the
// running tick counter is only ever touched by one goroutine.
func (e *Engine) Feed(buf []byte, capturedAt time.Time) {
	e.ring.Push(ring.Block{Samples: buf, CapturedAt: capturedAt})
}

// Run drives the decoder side of the reader/decoder split: one
// iteration per ready ring block, plus the periodic background tasks
// (staleness eviction, correlation, frame-log cleanup), never run
// faster than opts.DisplayInterval apart. It blocks until ctx is
// cancelled; cancellation closes the ring so that Run's own pending
// Pop returns and the loop exits.
func (e *Engine) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		e.ring.Close()
	}()

	var carry []uint16
	lastTick := time.Time{}

	for {
		blk, ok := e.ring.Pop()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		if lost := e.ring.DrainLost(); lost > 0 {
			e.stats.addBlocksDropped(lost)
			e.tick += ring.TickJumpForLoss(lost, modes.BlockSamples)
		}

		blockTick := e.tick
		carry = e.processBlock(blk, blockTick, carry)
		e.tick += uint64(len(blk.Samples)/2) * modes.TicksPerMicrosecond / modes.SamplesPerBit

		e.stats.addBlocksProcessed()

		now := time.Now()
		if now.Sub(lastTick) >= e.opts.DisplayInterval {
			lastTick = now
			e.tickBackground(now)
		}
	}
}

// processBlock converts one raw sample block to magnitudes (prefixed
// by carry-over from the previous block so a message straddling the
// boundary is never lost), scans it for Mode S and (if enabled) Mode
// A/C frames, and decodes and routes every hit. It returns the new
// carry-over tail for the next call.
func (e *Engine) processBlock(blk ring.Block, blockTick uint64, carry []uint16) []uint16 {
	n := len(blk.Samples) / 2
	magVec := make([]uint16, len(carry)+n)
	copy(magVec, carry)
	e.mag.Convert(blk.Samples, magVec[len(carry):])

	baseTick := blockTick
	if len(carry) > 0 {
		baseTick -= uint64(len(carry)) * modes.TicksPerMicrosecond / modes.SamplesPerBit
	}

	for _, f := range e.preamble.ScanBlock(magVec, baseTick) {
		e.stats.recordPreamble()
		m, err := e.decoder.Decode(f.Bits, f.Tick, signalOf(magVec, f.Offset))
		if err != nil {
			continue
		}
		e.stats.recordDecode(m, f.PhaseEnhanced)
		e.route(m)
	}

	if e.opts.EnableModeAC {
		for _, f := range e.modeAC.ScanBlock(magVec, baseTick) {
			e.stats.addModeACFrame()
			modeC := roster.GillhamBucket(f.ModeC)
			e.roster.ReceiveModeAC(f.ModeA, modeC, f.HasModeC)
			if e.onMessage != nil {
				m := &decode.Message{DF: modes.ModeACType, Squawk: f.ModeA, Tick: f.Tick}
				m.Flags.SquawkValid = true
				if f.HasModeC {
					m.Altitude = f.ModeC
					m.Flags.AltitudeValid = true
				}
				e.onMessage(m)
			}
		}
	}

	const overlap = modes.PreambleSamples + modes.LongMsgBits*modes.SamplesPerBit
	if len(magVec) > overlap {
		tail := make([]uint16, overlap)
		copy(tail, magVec[len(magVec)-overlap:])
		return tail
	}
	tail := make([]uint16, len(magVec))
	copy(tail, magVec)
	return tail
}

func signalOf(mag []uint16, preambleOffset int) uint8 {
	peak := mag[preambleOffset]
	if peak > 255 {
		return 255
	}
	return uint8(peak)
}

// route discards CRC-failed messages unless they carried a correction
// that made them valid, records accepted frames in the frame log, and
// hands the message to the roster and both external callbacks. With
// CRC checking turned off, CRC-failed messages still reach OnMessage
// (but not the roster, the frame log or OnFrame).
func (e *Engine) route(m *decode.Message) {
	if !m.Flags.CrcOk && e.opts.Decode.CheckCRC {
		return
	}
	if m.Flags.CrcOk {
		aircraft := e.roster.Receive(m)
		if e.frameLog != nil && aircraft != nil {
			e.frameLog.Append(framelog.Entry{
				Raw:       m.Raw,
				Tick:      m.Tick,
				ICAO:      m.ICAO,
				CreatedAt: time.Now(),
			})
		}
		if e.onFrame != nil {
			e.onFrame(m.Raw, m.Tick)
		}
	}
	if e.onMessage != nil {
		e.onMessage(m)
	}
}

// tickBackground runs the once-per-display-interval maintenance
// tasks: staleness eviction (itself rate-limited to once per wall
// second by roster.RemoveStale), Mode-S/Mode-A-C correlation, and
// frame-log cleanup via try-lock.
func (e *Engine) tickBackground(now time.Time) {
	e.roster.RemoveStale(now)
	e.roster.Correlate()
	if e.frameLog != nil {
		e.frameLog.TryEvict(now)
	}
}

// RunReader drives the producer side of the reader/decoder split: it
// pulls blocks from src at its natural cadence and feeds them into
// the ring until src is exhausted, an error occurs, or ctx is
// cancelled. It is meant to run on its own goroutine, paired with Run
// on the decoder side.
func RunReader(ctx context.Context, e *Engine, src sampleio.Source) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		buf, err := src.Next(ctx)
		if len(buf) > 0 {
			e.Feed(buf, time.Now())
		}
		if err != nil {
			return err
		}
	}
}

// LogStartupError writes a fatal initialization failure to stderr via
// the standard logger.
func LogStartupError(stage string, err error) {
	log.Printf("go1090: %s: %v", stage, err)
}
