// Command adrv9002-tune runs the SSI interface tuning of an ADRV9002 and
// reports the delay pair chosen for every channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"periph.io/x/conn/v3/physic"

	"github.com/rjboer/adrv9002/iiod"
	"github.com/rjboer/adrv9002/internal/adrv9002"
	"github.com/rjboer/adrv9002/internal/gpio"
	"github.com/rjboer/adrv9002/internal/iiodev"
	"github.com/rjboer/adrv9002/internal/logging"
	"github.com/rjboer/adrv9002/internal/mdns"
	"github.com/rjboer/adrv9002/internal/regmap"
	"github.com/rjboer/adrv9002/internal/sim"
	"github.com/rjboer/adrv9002/internal/ssi"
	"github.com/rjboer/adrv9002/internal/sysfs"
	"github.com/rjboer/adrv9002/internal/telemetry"
)

func main() {
	const configPath = "config.json"

	persistentCfg, err := loadOrCreateConfig(configPath)
	if err != nil {
		fatal("load config", err)
	}

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, persistentCfg)
	if err != nil {
		fatal("parse config", err)
	}
	if err := saveConfig(configPath, persistentFromCLI(cfg)); err != nil {
		fatal("save config", err)
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		fatal("logger", err)
	}
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, logger); err != nil {
		logger.Error("tuning failed", logging.Err(err))
		stop()
		os.Exit(1)
	}
}

// fatal reports startup errors that happen before the logger exists.
func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

func newLogger(cfg cliConfig, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format, w), nil
}

func run(ctx context.Context, cfg cliConfig, out io.Writer, logger logging.Logger) error {
	b, err := selectBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("select backend: %w", err)
	}
	defer b.Close()
	logger.Info("backend ready", logging.F("backend", b.name))

	phyCfg, err := phyConfig(cfg, b)
	if err != nil {
		return err
	}
	phyCfg.Logger = logger
	if phyCfg.SSI.Type == ssi.Disabled {
		if phyCfg.SSI.Type, err = detectSSIType(ctx, b.conv); err != nil {
			return err
		}
		logger.Info("ssi type read from fpga", logging.F("ssi", phyCfg.SSI.Type))
	}
	if cfg.spiPort != "" {
		spi, err := regmap.OpenSPI(cfg.spiPort, physic.Frequency(cfg.spiHz)*physic.Hertz)
		if err != nil {
			return err
		}
		defer spi.Close()
		phyCfg.Bus = spi
	}
	if cfg.syncGPIO != "" {
		line, err := gpio.Open(cfg.syncGPIO)
		if err != nil {
			return err
		}
		phyCfg.SyncLine = line
	}

	phy, err := adrv9002.New(phyCfg)
	if err != nil {
		return err
	}

	reporters := telemetry.MultiReporter{telemetry.NewLogReporter(logger)}
	var hub *telemetry.Hub
	if cfg.webAddr != "" {
		hub = telemetry.NewHub(cfg.historyLimit, logger)
		if d := phy.Diagnostics(); d != nil {
			hub.SetDiagnostics(d)
		}
		reporters = append(reporters, hub)
		go telemetry.NewWebServer(cfg.webAddr, hub).Start(ctx)
	}

	if cfg.configure {
		if err := phy.RegisterConverters(ctx); err != nil {
			return fmt.Errorf("register converters: %w", err)
		}
		if err := phy.SSIConfigure(ctx); err != nil {
			return fmt.Errorf("configure ssi: %w", err)
		}
	}

	report, tuneErr := phy.IntfTuning(ctx)
	reporters.Report(report, tuneErr)
	if report != nil {
		writeSummary(out, report)
	}
	if d := phy.Diagnostics(); d != nil {
		fmt.Fprint(out, d.Dump())
	}

	if hub != nil {
		logger.Info("serving telemetry until interrupted", logging.F("addr", cfg.webAddr))
		<-ctx.Done()
	}
	return tuneErr
}

func writeSummary(w io.Writer, r *adrv9002.TuningReport) {
	fmt.Fprintf(w, "ssi=%s rx2tx2=%t duration=%s\n", r.SSIType, r.RX2TX2, r.Duration)
	for _, res := range r.Results {
		switch {
		case res.Skipped:
			fmt.Fprintf(w, "%-4s skipped\n", res.Address)
		case res.Err != nil:
			fmt.Fprintf(w, "%-4s failed: %v\n", res.Address, res.Err)
		case res.Mirrored:
			fmt.Fprintf(w, "%-4s clk=%d data=%d (mirrored)\n", res.Address, res.Clk, res.Data)
		default:
			fmt.Fprintf(w, "%-4s clk=%d data=%d\n", res.Address, res.Clk, res.Data)
		}
	}
}

type backend struct {
	name   string
	device adrv9002.Device
	conv   adrv9002.Converters
	closer io.Closer
}

func (b *backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func selectBackend(ctx context.Context, cfg cliConfig, logger logging.Logger) (*backend, error) {
	n := cfg.channels
	if n == 0 {
		n = adrv9002.ChannelMax
	}
	switch cfg.backend {
	case "mock":
		t := ssi.LVDS
		if cfg.ssiType != "" {
			parsed, err := ssi.ParseType(cfg.ssiType)
			if err != nil {
				return nil, err
			}
			t = parsed
		}
		chip := sim.New(t)
		return &backend{name: "mock", device: chip, conv: trimConverters(chip.Converters(), n)}, nil
	case "iiod":
		addr, err := resolveTarget(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		c, err := iiod.DialRetry(ctx, addr, uint64(cfg.dialRetries))
		if err != nil {
			return nil, err
		}
		return &backend{name: "iiod", device: iiodev.New(c, cfg.phyName), conv: iiodev.Converters(c, n), closer: c}, nil
	case "ssh":
		addr, err := resolveTarget(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		sc := sysfs.Config{Host: addr, User: cfg.sshUser, Password: cfg.sshPassword, KeyPath: cfg.sshKey}
		if host, port, err := net.SplitHostPort(addr); err == nil {
			sc.Host = host
			// a discovered address carries the iiod port, not the ssh one
			if p, err := strconv.Atoi(port); err == nil && p != iiod.DefaultPort {
				sc.Port = p
			}
		}
		c, err := sysfs.New(sc)
		if err != nil {
			return nil, err
		}
		return &backend{name: "ssh", device: iiodev.New(c, cfg.phyName), conv: iiodev.Converters(c, n), closer: c}, nil
	default:
		return nil, fmt.Errorf("unknown backend %s", cfg.backend)
	}
}

func resolveTarget(ctx context.Context, cfg cliConfig, logger logging.Logger) (string, error) {
	if cfg.uri != "" {
		return cfg.uri, nil
	}
	if !cfg.discover {
		return "", errors.New("no target: set -uri or -discover")
	}
	hosts, err := mdns.DiscoverIIOD(ctx, cfg.discoverTimeout)
	if err != nil {
		return "", err
	}
	if len(hosts) == 0 {
		return "", errors.New("no iiod host found on the network")
	}
	for _, h := range hosts[1:] {
		logger.Info("ignoring additional iiod host", logging.F("instance", h.Instance), logging.F("addr", h.Addr()))
	}
	logger.Info("discovered iiod host", logging.F("instance", hosts[0].Instance), logging.F("addr", hosts[0].Addr()))
	return hosts[0].Addr(), nil
}

func trimConverters(conv adrv9002.Converters, n int) adrv9002.Converters {
	if n <= 0 || n >= len(conv.RxADC) {
		return conv
	}
	trimmed := adrv9002.Converters{RxADC: conv.RxADC[:n], TxDAC: conv.TxDAC[:n]}
	// DMA holds the RX engines first, then the TX ones
	if half := len(conv.DMA) / 2; half >= n {
		trimmed.DMA = append(trimmed.DMA, conv.DMA[:n]...)
		trimmed.DMA = append(trimmed.DMA, conv.DMA[half:half+n]...)
	}
	return trimmed
}

func detectSSIType(ctx context.Context, conv adrv9002.Converters) (ssi.Type, error) {
	if len(conv.RxADC) == 0 || conv.RxADC[0] == nil {
		return ssi.Disabled, errors.New("no rx core to read the ssi type from; set -ssi")
	}
	return conv.RxADC[0].SSIType(ctx)
}

func parseScanOrder(s string) (adrv9002.ScanOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clock", "clock-major":
		return adrv9002.ClockMajor, nil
	case "data", "data-major":
		return adrv9002.DataMajor, nil
	default:
		return 0, fmt.Errorf("unknown scan order %q", s)
	}
}

func profiles(n, mask int) []adrv9002.ChannelConfig {
	out := make([]adrv9002.ChannelConfig, n)
	for i := range out {
		out[i].Enabled = mask&(1<<i) != 0
	}
	return out
}

func phyConfig(cfg cliConfig, b *backend) (adrv9002.Config, error) {
	order, err := parseScanOrder(cfg.scanOrder)
	if err != nil {
		return adrv9002.Config{}, err
	}
	t, err := ssi.ParseType(cfg.ssiType)
	if err != nil {
		return adrv9002.Config{}, err
	}
	n := cfg.channels
	if n == 0 {
		n = adrv9002.ChannelMax
	}
	if cfg.lanes < 0 || cfg.lanes > 4 {
		return adrv9002.Config{}, fmt.Errorf("invalid lane count %d", cfg.lanes)
	}
	return adrv9002.Config{
		Device:     b.device,
		Converters: b.conv,
		Channels:   n,
		RX:         profiles(n, cfg.rxMask),
		TX:         profiles(n, cfg.txMask),
		RX2TX2:     cfg.rx2tx2,
		SSI:        ssi.Interface{Type: t, Lanes: uint8(cfg.lanes), CMOSDDR: cfg.cmosDDR},
		Debug:      cfg.debug,
		ScanOrder:  order,
		SettleTime: cfg.settle,
	}, nil
}
