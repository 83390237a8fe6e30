package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/adrv9002/internal/adrv9002"
	"github.com/rjboer/adrv9002/internal/logging"
)

func noEnv(string) (string, bool) { return "", false }

func TestParseConfigDefaults(t *testing.T) {
	defaults := defaultPersistentConfig()
	cfg, err := parseConfig([]string{}, noEnv, defaults)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.backend != "mock" || cfg.channels != 2 || cfg.rxMask != 3 || cfg.settle != time.Millisecond || !cfg.configure {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.discoverTimeout != 3*time.Second || cfg.dialRetries != 5 {
		t.Fatalf("unexpected connection defaults: %#v", cfg)
	}
}

func TestParseConfigEnvOverrides(t *testing.T) {
	env := map[string]string{
		"ADRV_BACKEND":  "ssh",
		"ADRV_URI":      "analog.local",
		"ADRV_CHANNELS": "1",
		"ADRV_SETTLE":   "5ms",
		"ADRV_RX2TX2":   "true",
		"ADRV_LANES":    "not-a-number",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, err := parseConfig([]string{"--scan-order", "data", "-debug"}, lookup, defaultPersistentConfig())
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.backend != "ssh" || cfg.uri != "analog.local" || cfg.channels != 1 || cfg.settle != 5*time.Millisecond || !cfg.rx2tx2 {
		t.Fatalf("env overrides not applied: %#v", cfg)
	}
	if cfg.scanOrder != "data" || !cfg.debug {
		t.Fatalf("flags not applied: %#v", cfg)
	}
	if cfg.lanes != 0 {
		t.Fatalf("bad env value should fall back to the default, got %d", cfg.lanes)
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := loadOrCreateConfig(path)
	if err != nil {
		t.Fatalf("loadOrCreateConfig: %v", err)
	}
	if cfg != defaultPersistentConfig() {
		t.Fatalf("fresh config differs from defaults: %#v", cfg)
	}

	cli, err := parseConfig([]string{"-ssh-password", "secret", "-uri", "10.0.0.2", "-settle", "2ms"}, noEnv, cfg)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if err := saveConfig(path, persistentFromCLI(cli)); err != nil {
		t.Fatalf("saveConfig: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if bytes.Contains(raw, []byte("secret")) {
		t.Fatalf("password persisted:\n%s", raw)
	}

	reloaded, err := loadOrCreateConfig(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.URI != "10.0.0.2" || reloaded.Settle != "2ms" {
		t.Fatalf("reloaded config %#v", reloaded)
	}
}

func TestSelectBackendError(t *testing.T) {
	if _, err := selectBackend(context.Background(), cliConfig{backend: "unknown"}, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := selectBackend(context.Background(), cliConfig{backend: "iiod"}, logging.Discard()); err == nil {
		t.Fatalf("expected error without a target")
	}
	if _, err := selectBackend(context.Background(), cliConfig{backend: "mock", ssiType: "jesd"}, logging.Discard()); err == nil {
		t.Fatalf("expected error for unknown ssi type")
	}
}

func TestSelectBackendSSHDialsLazily(t *testing.T) {
	b, err := selectBackend(context.Background(), cliConfig{backend: "ssh", uri: "192.0.2.1:2222", channels: 2}, logging.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()
	if b.device == nil || len(b.conv.RxADC) != 2 || len(b.conv.TxDAC) != 2 {
		t.Fatalf("incomplete backend %+v", b)
	}
}

func TestTrimConverters(t *testing.T) {
	b, err := selectBackend(context.Background(), cliConfig{backend: "mock", channels: 1}, logging.Discard())
	if err != nil {
		t.Fatalf("selectBackend: %v", err)
	}
	if len(b.conv.RxADC) != 1 || len(b.conv.TxDAC) != 1 || len(b.conv.DMA) != 2 {
		t.Fatalf("converters not trimmed: %+v", b.conv)
	}
	if b.conv.DMA[0].Name() != "rx1-dmac" || b.conv.DMA[1].Name() != "tx1-dmac" {
		t.Fatalf("wrong dma engines kept: %s, %s", b.conv.DMA[0].Name(), b.conv.DMA[1].Name())
	}
}

func TestProfilesAndScanOrder(t *testing.T) {
	p := profiles(2, 2)
	if p[0].Enabled || !p[1].Enabled {
		t.Fatalf("mask 2 gave %+v", p)
	}
	if o, err := parseScanOrder("Data"); err != nil || o != adrv9002.DataMajor {
		t.Fatalf("parseScanOrder(Data) = %v, %v", o, err)
	}
	if _, err := parseScanOrder("diagonal"); err == nil {
		t.Fatalf("expected error for unknown order")
	}
}

func runMock(t *testing.T, args ...string) string {
	t.Helper()
	cfg, err := parseConfig(append([]string{"-settle", "1us"}, args...), noEnv, defaultPersistentConfig())
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	var out bytes.Buffer
	if err := run(context.Background(), cfg, &out, logging.Discard()); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	return out.String()
}

func TestRunMockTunesEveryChannel(t *testing.T) {
	out := runMock(t, "-debug")
	for _, want := range []string{"ssi=lvds", "rx1  clk=3 data=4", "tx1  clk=3 data=4", "rx2  clk=3 data=4", "tx2  clk=3 data=4"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "rx1 clk=3 data=4\n") {
		t.Fatalf("diagnostics dump missing:\n%s", out)
	}
}

func TestRunMockRX2TX2(t *testing.T) {
	out := runMock(t, "-rx2tx2")
	if !strings.Contains(out, "rx2  clk=3 data=4 (mirrored)") || !strings.Contains(out, "tx2  clk=3 data=4 (mirrored)") {
		t.Fatalf("channel 2 not mirrored:\n%s", out)
	}
}

func TestRunMockSingleChannelCMOS(t *testing.T) {
	out := runMock(t, "-channels", "1", "-ssi", "cmos", "-scan-order", "data", "-tx-mask", "0")
	if !strings.Contains(out, "ssi=cmos") || !strings.Contains(out, "rx1  clk=3 data=4") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "tx1  skipped") {
		t.Fatalf("disabled tx1 not skipped:\n%s", out)
	}
	if strings.Contains(out, "\nrx2") {
		t.Fatalf("second channel reported on a single channel run:\n%s", out)
	}
}
