package main

import (
	"encoding/json"
	"flag"
	"os"
	"strconv"
	"time"
)

type cliConfig struct {
	backend         string
	uri             string
	discover        bool
	discoverTimeout time.Duration
	dialRetries     int
	phyName         string
	sshUser         string
	sshPassword     string
	sshKey          string
	channels        int
	rxMask          int
	txMask          int
	rx2tx2          bool
	ssiType         string
	lanes           int
	cmosDDR         bool
	scanOrder       string
	settle          time.Duration
	configure       bool
	spiPort         string
	spiHz           int
	syncGPIO        string
	debug           bool
	logLevel        string
	logFormat       string
	historyLimit    int
	webAddr         string
}

// persistentConfig is what config.json keeps between runs. The SSH password
// is never written to disk.
type persistentConfig struct {
	Backend         string `json:"backend"`
	URI             string `json:"uri"`
	Discover        bool   `json:"discover"`
	DiscoverTimeout string `json:"discover_timeout"`
	DialRetries     int    `json:"dial_retries"`
	PhyName         string `json:"phy_name"`
	SSHUser         string `json:"ssh_user"`
	SSHKey          string `json:"ssh_key"`
	Channels        int    `json:"channels"`
	RxMask          int    `json:"rx_mask"`
	TxMask          int    `json:"tx_mask"`
	RX2TX2          bool   `json:"rx2tx2"`
	SSIType         string `json:"ssi_type"`
	Lanes           int    `json:"lanes"`
	CMOSDDR         bool   `json:"cmos_ddr"`
	ScanOrder       string `json:"scan_order"`
	Settle          string `json:"settle"`
	Configure       bool   `json:"configure"`
	SPIPort         string `json:"spi_port"`
	SPIHz           int    `json:"spi_hz"`
	SyncGPIO        string `json:"sync_gpio"`
	Debug           bool   `json:"debug"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
	HistoryLimit    int    `json:"history_limit"`
	WebAddr         string `json:"web_addr"`
}

func parseConfig(args []string, lookup func(string) (string, bool), defaults persistentConfig) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("adrv9002-tune", flag.ContinueOnError)
	fs.StringVar(&cfg.backend, "backend", envString(lookup, "ADRV_BACKEND", defaults.Backend), "Device backend (mock|iiod|ssh)")
	fs.StringVar(&cfg.uri, "uri", envString(lookup, "ADRV_URI", defaults.URI), "IIOD address (host[:port]) or SSH host")
	fs.BoolVar(&cfg.discover, "discover", envBool(lookup, "ADRV_DISCOVER", defaults.Discover), "Find the target over mDNS when no URI is given")
	fs.DurationVar(&cfg.discoverTimeout, "discover-timeout", envDuration(lookup, "ADRV_DISCOVER_TIMEOUT", durationOr(defaults.DiscoverTimeout, 3*time.Second)), "mDNS browse time")
	fs.IntVar(&cfg.dialRetries, "dial-retries", envInt(lookup, "ADRV_DIAL_RETRIES", defaults.DialRetries), "Extra IIOD connection attempts")
	fs.StringVar(&cfg.phyName, "phy", envString(lookup, "ADRV_PHY", defaults.PhyName), "IIO name of the transceiver")
	fs.StringVar(&cfg.sshUser, "ssh-user", envString(lookup, "ADRV_SSH_USER", defaults.SSHUser), "SSH user")
	fs.StringVar(&cfg.sshPassword, "ssh-password", envString(lookup, "ADRV_SSH_PASSWORD", ""), "SSH password")
	fs.StringVar(&cfg.sshKey, "ssh-key", envString(lookup, "ADRV_SSH_KEY", defaults.SSHKey), "SSH private key file")
	fs.IntVar(&cfg.channels, "channels", envInt(lookup, "ADRV_CHANNELS", defaults.Channels), "Number of channels (1 or 2)")
	fs.IntVar(&cfg.rxMask, "rx-mask", envInt(lookup, "ADRV_RX_MASK", defaults.RxMask), "Bit mask of enabled RX channels")
	fs.IntVar(&cfg.txMask, "tx-mask", envInt(lookup, "ADRV_TX_MASK", defaults.TxMask), "Bit mask of enabled TX channels")
	fs.BoolVar(&cfg.rx2tx2, "rx2tx2", envBool(lookup, "ADRV_RX2TX2", defaults.RX2TX2), "Channel 2 shares the channel 1 interface")
	fs.StringVar(&cfg.ssiType, "ssi", envString(lookup, "ADRV_SSI", defaults.SSIType), "SSI type (cmos|lvds); empty reads it from the FPGA")
	fs.IntVar(&cfg.lanes, "lanes", envInt(lookup, "ADRV_LANES", defaults.Lanes), "SSI lanes; 0 picks the default for the type")
	fs.BoolVar(&cfg.cmosDDR, "cmos-ddr", envBool(lookup, "ADRV_CMOS_DDR", defaults.CMOSDDR), "CMOS double data rate")
	fs.StringVar(&cfg.scanOrder, "scan-order", envString(lookup, "ADRV_SCAN_ORDER", defaults.ScanOrder), "Delay sweep order (clock|data)")
	fs.DurationVar(&cfg.settle, "settle", envDuration(lookup, "ADRV_SETTLE", durationOr(defaults.Settle, time.Millisecond)), "Wait between clearing and reading the PN status")
	fs.BoolVar(&cfg.configure, "configure", envBool(lookup, "ADRV_CONFIGURE", defaults.Configure), "Program the FPGA interface before tuning")
	fs.StringVar(&cfg.spiPort, "spi-port", envString(lookup, "ADRV_SPI_PORT", defaults.SPIPort), "Local SPI port for raw register access")
	fs.IntVar(&cfg.spiHz, "spi-hz", envInt(lookup, "ADRV_SPI_HZ", defaults.SPIHz), "SPI clock in Hz")
	fs.StringVar(&cfg.syncGPIO, "sync-gpio", envString(lookup, "ADRV_SYNC_GPIO", defaults.SyncGPIO), "GPIO line pulsed after interface setup in rx2tx2 mode")
	fs.BoolVar(&cfg.debug, "debug", envBool(lookup, "ADRV_DEBUG", defaults.Debug), "Keep eye diagrams and delays for inspection")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "ADRV_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "ADRV_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")
	fs.IntVar(&cfg.historyLimit, "history-limit", envInt(lookup, "ADRV_HISTORY_LIMIT", defaults.HistoryLimit), "Tuning runs kept by the web telemetry")
	fs.StringVar(&cfg.webAddr, "web-addr", envString(lookup, "ADRV_WEB_ADDR", defaults.WebAddr), "Optional web telemetry listen address (e.g. :8080)")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func persistentFromCLI(cfg cliConfig) persistentConfig {
	return persistentConfig{
		Backend:         cfg.backend,
		URI:             cfg.uri,
		Discover:        cfg.discover,
		DiscoverTimeout: cfg.discoverTimeout.String(),
		DialRetries:     cfg.dialRetries,
		PhyName:         cfg.phyName,
		SSHUser:         cfg.sshUser,
		SSHKey:          cfg.sshKey,
		Channels:        cfg.channels,
		RxMask:          cfg.rxMask,
		TxMask:          cfg.txMask,
		RX2TX2:          cfg.rx2tx2,
		SSIType:         cfg.ssiType,
		Lanes:           cfg.lanes,
		CMOSDDR:         cfg.cmosDDR,
		ScanOrder:       cfg.scanOrder,
		Settle:          cfg.settle.String(),
		Configure:       cfg.configure,
		SPIPort:         cfg.spiPort,
		SPIHz:           cfg.spiHz,
		SyncGPIO:        cfg.syncGPIO,
		Debug:           cfg.debug,
		LogLevel:        cfg.logLevel,
		LogFormat:       cfg.logFormat,
		HistoryLimit:    cfg.historyLimit,
		WebAddr:         cfg.webAddr,
	}
}

func loadOrCreateConfig(path string) (persistentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultPersistentConfig()
			if saveErr := saveConfig(path, cfg); saveErr != nil {
				return persistentConfig{}, saveErr
			}
			return cfg, nil
		}
		return persistentConfig{}, err
	}
	defer f.Close()

	cfg := defaultPersistentConfig()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return persistentConfig{}, err
	}
	return cfg, nil
}

func saveConfig(path string, cfg persistentConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func defaultPersistentConfig() persistentConfig {
	return persistentConfig{
		Backend:         "mock",
		DiscoverTimeout: "3s",
		DialRetries:     5,
		PhyName:         "adrv9002-phy",
		SSHUser:         "root",
		Channels:        2,
		RxMask:          3,
		TxMask:          3,
		ScanOrder:       "clock",
		Settle:          "1ms",
		Configure:       true,
		SPIHz:           10_000_000,
		LogLevel:        "info",
		LogFormat:       "text",
		HistoryLimit:    50,
		WebAddr:         "",
	}
}

func durationOr(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func envDuration(lookup func(string) (string, bool), key string, def time.Duration) time.Duration {
	if val, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}
