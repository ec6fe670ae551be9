// Command go1090 wires the decoding pipeline (internal/engine) to a
// sample source and a plain-text console renderer.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"go1090/internal/decode"
	"go1090/internal/engine"
	"go1090/internal/modes"
	"go1090/internal/roster"
	"go1090/internal/sampleio"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		deviceIndex     = pflag.Int("device-index", 0, "RTL-SDR device index")
		ifile           = pflag.String("ifile", "", "Read raw samples from a file instead of a device (- for stdin)")
		fix             = pflag.Bool("fix", true, "Enable single-bit error correction")
		noFix           = pflag.Bool("no-fix", false, "Disable all error correction")
		aggressive      = pflag.Bool("aggressive", false, "Enable two-bit error correction (implies --fix)")
		noCRCCheck      = pflag.Bool("no-crc-check", false, "Accept frames without CRC validation")
		phaseEnhance    = pflag.Bool("phase-enhance", true, "Enable preamble phase enhancement")
		raw             = pflag.Bool("raw", false, "Print raw hex frames instead of decoded fields")
		modeAC          = pflag.Bool("modeac", false, "Enable Mode A/C demodulation")
		lat             = pflag.Float64("lat", 0, "Receiver latitude, for local CPR decoding")
		lon             = pflag.Float64("lon", 0, "Receiver longitude, for local CPR decoding")
		interactive     = pflag.Bool("interactive", false, "Show a live console roster instead of a scrolling log")
		interactiveRows = pflag.Int("interactive-rows", 22, "Max rows shown in interactive mode")
		interactiveTTL  = pflag.Int("interactive-ttl", 60, "Seconds before a silent aircraft is evicted")
		stats           = pflag.Bool("stats", false, "Print a final statistics report on shutdown")
		statsEvery      = pflag.Int("stats-every", 0, "Print a statistics report every N seconds (0 disables)")
		quiet           = pflag.Bool("quiet", false, "Suppress per-message output")
		debug           = pflag.Bool("debug", false, "Enable verbose debug logging")
	)
	// --gain, --enable-agc, --freq, --ppm, --snip, and --metric configure
	// the external device driver or a TUI this build doesn't provide;
	// they are accepted so a real go1090 invocation doesn't fail flag
	// parsing, but nothing in this package reads them.
	pflag.Int("gain", -1, "Tuner gain (-1 for auto)")
	pflag.Bool("enable-agc", false, "Enable RTL-SDR AGC")
	pflag.Int64("freq", modes.CarrierFreq, "Tuner frequency in Hz")
	pflag.Int("ppm", 0, "Tuner frequency correction in parts-per-million")
	pflag.Int("snip", 0, "Strip N leading bytes from each input block (debug)")
	pflag.Bool("metric", false, "Display altitude/speed in metric units")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: go1090 [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	opts := engine.DefaultOptions()
	opts.Decode.FixErrors = *fix && !*noFix
	opts.Decode.Aggressive = *aggressive
	if *aggressive {
		opts.Decode.FixErrors = true
	}
	opts.Decode.CheckCRC = !*noCRCCheck
	opts.Demod.PhaseEnhance = *phaseEnhance
	opts.EnableModeAC = *modeAC
	opts.DeleteTTL = time.Duration(*interactiveTTL) * time.Second
	if *lat != 0 || *lon != 0 {
		opts.ReceiverLat = *lat
		opts.ReceiverLon = *lon
		opts.ReceiverLocationSet = true
	}
	if *debug {
		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	src, err := openSource(ctx, *ifile, *deviceIndex)
	if err != nil {
		engine.LogStartupError("open sample source", err)
		return 1
	}
	defer src.Close()

	e := engine.New(opts)

	if !*quiet && !*interactive {
		e.OnMessage(func(m *decode.Message) {
			if *raw {
				fmt.Printf("*%X;\n", m.Raw)
				return
			}
			printMessage(m)
		})
	}

	go func() {
		if err := engine.RunReader(ctx, e, src); err != nil && err != context.Canceled && err != io.EOF {
			log.Printf("go1090: sample source exhausted: %v", err)
		}
		cancel()
	}()

	decoderDone := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(decoderDone)
	}()

	if *interactive {
		go runInteractive(ctx, e, *interactiveRows)
	}
	if *statsEvery > 0 {
		go runPeriodicStats(ctx, e, time.Duration(*statsEvery)*time.Second)
	}

	<-ctx.Done()
	<-decoderDone

	if *stats {
		printStats(e.Stats())
	}
	return 0
}

// openSource builds the sample-input collaborator: a file/stdin
// chunked reader when --ifile is set, or the external device-handling
// subprocess otherwise.
func openSource(ctx context.Context, ifile string, deviceIndex int) (sampleio.Source, error) {
	if ifile != "" {
		var f *os.File
		if ifile == "-" {
			f = os.Stdin
		} else {
			var err error
			f, err = os.Open(ifile)
			if err != nil {
				return nil, err
			}
		}
		return sampleio.NewFileSource(f, modes.BlockSize, sampleio.DefaultFileSleep), nil
	}
	args := []string{"-d", fmt.Sprint(deviceIndex), "-f", fmt.Sprint(modes.CarrierFreq), "-s", fmt.Sprint(modes.SampleRate), "-"}
	return sampleio.NewCommandSource(ctx, "rtl_sdr", args, modes.BlockSize)
}

func printMessage(m *decode.Message) {
	if m.DF == modes.ModeACType {
		fmt.Printf("Mode A/C squawk=%04d\n", m.Squawk)
		return
	}
	fmt.Printf("DF%-2d ICAO=%06X", m.DF, m.ICAO)
	if m.Flags.CallsignValid {
		fmt.Printf(" callsign=%q", string(m.Callsign[:]))
	}
	if m.Flags.AltitudeValid {
		fmt.Printf(" alt=%dft", m.Altitude)
	}
	if m.Flags.SquawkValid {
		fmt.Printf(" squawk=%04d", m.Squawk)
	}
	if m.Flags.SpeedValid {
		fmt.Printf(" speed=%dkt", m.Velocity)
	}
	if m.Flags.HeadingValid {
		fmt.Printf(" track=%d", m.Heading)
	}
	fmt.Println()
}

// runInteractive redraws a plain-text roster snapshot every 250ms (the
// default engine.Options.DisplayInterval; the option itself is not read
// here).
func runInteractive(ctx context.Context, e *engine.Engine, maxRows int) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renderRoster(e.Roster(), maxRows)
		}
	}
}

func renderRoster(r *roster.Roster, maxRows int) {
	aircraft := r.SortedByAddr()
	fmt.Printf("\n A/C: %02d  %s\n", len(aircraft), time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(" ICAO    CALLSIGN    ALT    SPD  HDG     LAT      LON   SEEN")
	shown := 0
	for _, ac := range aircraft {
		if ac.Hidden() {
			continue
		}
		if shown >= maxRows {
			break
		}
		fmt.Printf(" %-6s  %-9s  %6d %5d %4d  %7.3f  %7.3f  %s\n",
			ac.HexAddr, ac.Callsign, ac.Altitude, ac.Speed, ac.Track,
			ac.Lat, ac.Lon, ac.Seen.Format("15:04:05"))
		shown++
	}
}

func runPeriodicStats(ctx context.Context, e *engine.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printStats(e.Stats())
		}
	}
}

func printStats(s engine.StatsCounters) {
	fmt.Fprintf(os.Stderr, "blocks: %d processed, %d dropped\n", s.BlocksProcessed, s.BlocksDropped)
	fmt.Fprintf(os.Stderr, "preambles: %d valid\n", s.ValidPreambles)
	fmt.Fprintf(os.Stderr, "crc: %d good, %d bad\n", s.GoodCRC, s.BadCRC)
	fmt.Fprintf(os.Stderr, "bit fixes: 0=%d 1=%d 2=%d (phase-enhanced: 0=%d 1=%d 2=%d)\n",
		s.BitFix[0], s.BitFix[1], s.BitFix[2],
		s.PhaseEnhancedBitFix[0], s.PhaseEnhancedBitFix[1], s.PhaseEnhancedBitFix[2])
	if s.ModeACFrames > 0 {
		fmt.Fprintf(os.Stderr, "mode a/c: %d frames\n", s.ModeACFrames)
	}
}
