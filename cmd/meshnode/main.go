// cmd/meshnode/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/tdma-mesh/internal/config"
	"github.com/tamzrod/tdma-mesh/internal/diag"
	"github.com/tamzrod/tdma-mesh/internal/framing"
	"github.com/tamzrod/tdma-mesh/internal/hostlink"
	"github.com/tamzrod/tdma-mesh/internal/logging"
	"github.com/tamzrod/tdma-mesh/internal/radio"
	"github.com/tamzrod/tdma-mesh/internal/tdma"
	"github.com/tamzrod/tdma-mesh/internal/timesync"
)

const (
	tickInterval = time.Millisecond
	hostQueue    = 64
)

func main() {
	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		boot.Fatal().Msg("usage: meshnode <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("config load failed")
	}

	if err := config.Validate(cfg); err != nil {
		boot.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	root, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		boot.Fatal().Err(err).Msg("logger setup failed")
	}
	root = root.With().Uint8("node", cfg.Node.NodeID).Logger()
	log := logging.Component(root, "main")

	scheme, ok := framing.ByName(cfg.TDMA.FrameFormat)
	if !ok {
		log.Fatal().Str("format", cfg.TDMA.FrameFormat).Msg("unknown frame format")
	}

	// --------------------
	// Radio (serial + optional direction switch)
	// --------------------

	ser, err := radio.OpenSerial(radio.SerialConfig{
		Device:      cfg.Radio.Device,
		BaudRate:    cfg.Radio.BaudRate,
		ReadTimeout: ms(cfg.Radio.ReadTimeoutMs),
	})
	if err != nil {
		log.Fatal().Err(err).Str("device", cfg.Radio.Device).Msg("radio open failed")
	}
	defer ser.Close()

	var sw radio.ModeSetter
	if ep := cfg.Hardware.ModeSwitch; ep.Endpoint != "" {
		msw, err := radio.NewModbusSwitch(radio.SwitchConfig{
			Endpoint: ep.Endpoint,
			SlaveID:  ep.SlaveID,
			TxCoil:   ep.TxCoil,
			RxCoil:   ep.RxCoil,
			Timeout:  ms(ep.TimeoutMs),
		})
		if err != nil {
			log.Fatal().Err(err).Str("endpoint", ep.Endpoint).Msg("mode switch connect failed")
		}
		defer msw.Close()
		sw = msw
	}

	// --------------------
	// Time offset source
	// --------------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var offsets timesync.Source = &timesync.Static{Available: true}
	if to := cfg.Hardware.TimeOffset; to.Endpoint != "" {
		src := timesync.NewModbusSource(to.Register, timesync.Dial(timesync.Config{
			Endpoint: to.Endpoint,
			SlaveID:  to.SlaveID,
			Register: to.Register,
			Timeout:  ms(to.TimeoutMs),
		}), logging.Component(root, "timesync"))
		defer src.Close()
		go src.Run(ctx, seconds(cfg.TDMA.FrameLengthS))
		offsets = src
	}

	// ---- config updates ----
	var stager tdma.ConfigStager
	if staged := cfg.Update.StagedPath; staged != "" {
		stager = config.NewFileStager(cfgPath, staged)
		if h, err := config.HashFile(staged); err == nil {
			log.Info().Str("staged", staged).Hex("sha256", h[:]).Msg("staged config present")
		}
	}

	// --------------------
	// Scheduler
	// --------------------

	sched, err := tdma.New(cfg.Timing(), scheme, tdma.Deps{
		Radio:     radio.Compose(ser, sw),
		Offsets:   offsets,
		Stager:    stager,
		ReadChunk: cfg.Radio.ReadChunk,
		Log:       logging.Component(root, "tdma"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}

	// ---- host delivery ----
	var sink hostlink.Sink
	if cfg.Host.Endpoint != "" {
		c, err := hostlink.NewClient(hostlink.Config{
			Endpoint: cfg.Host.Endpoint,
			Timeout:  ms(cfg.Host.TimeoutMs),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("host link setup failed")
		}
		sink = c
	}
	fwd := hostlink.NewForwarder(sink, hostQueue, logging.Component(root, "hostlink"))
	go fwd.Run(ctx)

	var ingress *hostlink.Server
	if cfg.Host.Listen != "" {
		ingress, err = hostlink.Listen(cfg.Host.Listen, ms(cfg.Host.TimeoutMs), logging.Component(root, "hostlink"))
		if err != nil {
			log.Fatal().Err(err).Str("listen", cfg.Host.Listen).Msg("host listener failed")
		}
		go ingress.Serve(ctx)
	}

	// ---- per-tick host side ----
	diagLog := logging.Component(root, "diag")
	var lastDiag float64

	hook := func(now float64) {
		if ingress != nil {
			for _, r := range ingress.Pending() {
				r.Reply(hostlink.Apply(sched, r))
			}
		}
		for _, p := range sched.InboundPayloads() {
			fwd.Enqueue(p)
		}
		for _, n := range sched.Notices() {
			log.Info().
				Str("kind", n.Kind.String()).
				Uint8("source", n.Source).
				Uint32("counter", n.Counter).
				Float64("at", n.Time).
				Msg("notice")
		}

		if !cfg.Diag.Enabled || now-lastDiag < cfg.Diag.IntervalS {
			return
		}
		lastDiag = now
		dumpDiag(diagLog, sched)
	}

	log.Info().
		Str("device", cfg.Radio.Device).
		Str("format", cfg.TDMA.FrameFormat).
		Int("nodes", cfg.Node.MaxNumNodes).
		Msg("mesh node starting")

	tdma.NewRunner(sched, tdma.WallClock{}, tickInterval, hook).Run(ctx)

	log.Info().Msg("mesh node stopped")
}

func dumpDiag(log zerolog.Logger, sched *tdma.Scheduler) {
	nodes, err := diag.RenderNodes(sched.Nodes())
	if err != nil {
		log.Warn().Err(err).Msg("render nodes failed")
		return
	}
	links, err := diag.RenderLinkMatrix(sched.LinkStatusMatrix())
	if err != nil {
		log.Warn().Err(err).Msg("render links failed")
		return
	}

	log.Info().
		Str("mode", sched.Mode().String()).
		Bool("failsafe", sched.Failsafe()).
		Int("frame_exceedances", sched.FrameExceedances()).
		Msg("mesh diagnostics")
	os.Stderr.WriteString(nodes + "\n" + links + "\n")
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func seconds(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }
