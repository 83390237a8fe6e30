package adrv9002_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rjboer/adrv9002/internal/adrv9002"
	"github.com/rjboer/adrv9002/internal/axi"
	"github.com/rjboer/adrv9002/internal/regmap"
	"github.com/rjboer/adrv9002/internal/sim"
	"github.com/rjboer/adrv9002/internal/ssi"
)

func allEnabled() []adrv9002.ChannelConfig {
	return []adrv9002.ChannelConfig{{Enabled: true}, {Enabled: true}}
}

func newPhy(t *testing.T, chip *sim.Chip, mutate func(*adrv9002.Config)) *adrv9002.Phy {
	t.Helper()
	cfg := adrv9002.Config{
		Device:     chip,
		Converters: chip.Converters(),
		RX:         allEnabled(),
		TX:         allEnabled(),
		SettleTime: time.Microsecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := adrv9002.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func assertPaired(t *testing.T, chip *sim.Chip) {
	t.Helper()
	for _, port := range []adrv9002.Port{adrv9002.PortRX, adrv9002.PortTX} {
		for i := 0; i < adrv9002.ChannelMax; i++ {
			if en, ex := chip.Enters(port, i), chip.Exits(port, i); en != ex {
				t.Fatalf("%s%d: %d test mode entries, %d exits", port, i+1, en, ex)
			}
		}
	}
}

func TestNewValidatesChannels(t *testing.T) {
	chip := sim.New(ssi.LVDS)
	if _, err := adrv9002.New(adrv9002.Config{Device: chip, Channels: 3}); !errors.Is(err, adrv9002.ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}
	if _, err := adrv9002.New(adrv9002.Config{Device: chip, Channels: 1, RX2TX2: true}); !errors.Is(err, adrv9002.ErrInvalidChannel) {
		t.Fatalf("rx2tx2 with one channel accepted: %v", err)
	}
	if _, err := adrv9002.New(adrv9002.Config{}); err == nil {
		t.Fatalf("missing device accepted")
	}
	p, err := adrv9002.New(adrv9002.Config{Device: chip, Channels: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.RX(1); !errors.Is(err, adrv9002.ErrInvalidChannel) {
		t.Fatalf("rx2 reachable on a single channel phy")
	}
}

func TestAxiIntfTuneRX(t *testing.T) {
	ctx := context.Background()
	chip := sim.New(ssi.LVDS)
	p := newPhy(t, chip, nil)

	if err := p.ChannelToState(ctx, adrv9002.PortRX, 0, adrv9002.StatePrimed); err != nil {
		t.Fatalf("prime: %v", err)
	}
	clk, data, err := p.AxiIntfTune(ctx, false, 0, ssi.LVDS)
	if err != nil {
		t.Fatalf("AxiIntfTune: %v", err)
	}
	if clk != 3 || data != 4 {
		t.Fatalf("tuned to %d/%d, want 3/4", clk, data)
	}
	d := chip.Delays()
	if d.RxClkDelay[0] != 3 || d.RxStrobeDelay[0] != 4 || d.RxIDataDelay[0] != 4 || d.RxQDataDelay[0] != 4 {
		t.Fatalf("hardware delays not applied: %+v", d)
	}
	if chip.Enters(adrv9002.PortRX, 0) != 1 {
		t.Fatalf("expected one test mode entry, got %d", chip.Enters(adrv9002.PortRX, 0))
	}
	assertPaired(t, chip)

	rx, _ := p.RX(0)
	if rx.SSITest.TestData != ssi.TestNormal {
		t.Fatalf("test mode config left at %s", rx.SSITest.TestData)
	}
	if sel := regmap.Field(chip.Regs().Get(sim.RxBase(0)+axi.RegChanCntrl3(0)), axi.ADCPNSel); sel != 0 {
		t.Fatalf("pn monitor not restored, sel %d", sel)
	}
}

func TestTuneChannelTXCustomEye(t *testing.T) {
	ctx := context.Background()
	chip := sim.New(ssi.CMOS)
	var eye adrv9002.EyeDiagram
	for clk := 4; clk < 8; clk++ {
		for data := 0; data < 3; data++ {
			eye[clk][data] = true
		}
	}
	eye[0][7] = true
	chip.SetEye(adrv9002.PortTX, 1, eye)
	p := newPhy(t, chip, func(c *adrv9002.Config) { c.ScanOrder = adrv9002.DataMajor })

	if err := p.ChannelToState(ctx, adrv9002.PortTX, 1, adrv9002.StateRfEnabled); err != nil {
		t.Fatalf("enable: %v", err)
	}
	res, err := p.TuneChannel(ctx, adrv9002.PortTX, 1, ssi.CMOS)
	if err != nil {
		t.Fatalf("TuneChannel: %v", err)
	}
	if res.Clk != 5 || res.Data != 1 {
		t.Fatalf("tuned to %d/%d, want 5/1", res.Clk, res.Data)
	}
	if res.Eye != eye {
		t.Fatalf("recorded eye differs from the mask:\n%s", res.Eye.String())
	}
	if d := chip.Delays(); d.TxClkDelay[1] != 5 || d.TxIDataDelay[1] != 1 || d.TxRefClkDelay[1] != 0 {
		t.Fatalf("hardware delays not applied: %+v", d)
	}
	if sel := chip.Regs().Get(sim.TxBase(1)+axi.RegChanCntrl7(0)) & axi.DACDDSel; sel != 2 {
		t.Fatalf("dac not back on dma, sel %d", sel)
	}
	assertPaired(t, chip)
}

func TestTuneNoValidRegionRestoresDelays(t *testing.T) {
	ctx := context.Background()
	chip := sim.New(ssi.LVDS)
	chip.SetEye(adrv9002.PortRX, 0, adrv9002.EyeDiagram{})
	var before ssi.CalibrationConfig
	before.Set(false, 0, 2, 6)
	before.Set(true, 0, 1, 1)
	chip.SetDelays(before)

	p := newPhy(t, chip, nil)
	if err := p.ChannelToState(ctx, adrv9002.PortRX, 0, adrv9002.StatePrimed); err != nil {
		t.Fatalf("prime: %v", err)
	}
	_, _, err := p.AxiIntfTune(ctx, false, 0, ssi.LVDS)
	if !errors.Is(err, adrv9002.ErrNoValidRegion) {
		t.Fatalf("expected ErrNoValidRegion, got %v", err)
	}
	if got := chip.Delays(); got != before {
		t.Fatalf("delays changed: %+v, want %+v", got, before)
	}
	if chip.Enters(adrv9002.PortRX, 0) != 1 {
		t.Fatalf("test mode never entered")
	}
	assertPaired(t, chip)
}

func TestTuneEntryFailureStillExits(t *testing.T) {
	ctx := context.Background()
	chip := sim.New(ssi.LVDS)
	boom := errors.New("spi timeout")
	chip.Fail(sim.OpTestMode, adrv9002.PortTX, 0, boom)
	p := newPhy(t, chip, nil)
	if err := p.ChannelToState(ctx, adrv9002.PortTX, 0, adrv9002.StatePrimed); err != nil {
		t.Fatalf("prime: %v", err)
	}
	_, _, err := p.AxiIntfTune(ctx, true, 0, ssi.LVDS)
	if !errors.Is(err, boom) || !errors.Is(err, adrv9002.ErrBus) {
		t.Fatalf("expected bus error, got %v", err)
	}
	if chip.Enters(adrv9002.PortTX, 0) != 1 {
		t.Fatalf("entry not attempted")
	}
	assertPaired(t, chip)
	if chip.DelayWrites() != 0 {
		t.Fatalf("delays written after failed entry")
	}
}

func TestTuneRefusesUnprimedChannel(t *testing.T) {
	chip := sim.New(ssi.LVDS)
	p := newPhy(t, chip, nil)
	_, _, err := p.AxiIntfTune(context.Background(), false, 1, ssi.LVDS)
	if !errors.Is(err, adrv9002.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if chip.Enters(adrv9002.PortRX, 1) != 0 || chip.Exits(adrv9002.PortRX, 1) != 0 {
		t.Fatalf("test mode touched on a refused channel")
	}
	if err := p.IntfTestCfg(context.Background(), 1, false, false, ssi.LVDS); !errors.Is(err, adrv9002.ErrInvalidState) {
		t.Fatalf("IntfTestCfg entry accepted: %v", err)
	}
}

func TestTuneSweepIOFailure(t *testing.T) {
	ctx := context.Background()
	chip := sim.New(ssi.LVDS)
	boom := errors.New("axi bus error")
	chip.Regs().FailOn(sim.RxBase(0)+axi.RegChanStatus(0), boom)
	p := newPhy(t, chip, nil)
	if err := p.ChannelToState(ctx, adrv9002.PortRX, 0, adrv9002.StatePrimed); err != nil {
		t.Fatalf("prime: %v", err)
	}
	_, _, err := p.AxiIntfTune(ctx, false, 0, ssi.LVDS)
	if !errors.Is(err, boom) {
		t.Fatalf("expected sweep failure, got %v", err)
	}
	var de *adrv9002.DevError
	if !errors.As(err, &de) || de.Line == 0 || !strings.Contains(de.Func, "checkRxTestPattern") {
		t.Fatalf("sweep failure not tagged with its call site: %v", err)
	}
	if errors.Is(err, adrv9002.ErrNoValidRegion) {
		t.Fatalf("i/o failure reported as an empty eye")
	}
	assertPaired(t, chip)
	if d := chip.Delays(); d != (ssi.CalibrationConfig{}) {
		t.Fatalf("delays not restored: %+v", d)
	}
}

func TestIntfTuningIsolatesChannelFailure(t *testing.T) {
	ctx := context.Background()
	chip := sim.New(ssi.LVDS)
	boom := errors.New("channel 2 unreachable")
	chip.Fail(sim.OpTestMode, adrv9002.PortRX, 1, boom)
	chip.Fail(sim.OpTxStatus, adrv9002.PortTX, 1, boom)
	p := newPhy(t, chip, func(c *adrv9002.Config) { c.SSI = ssi.Interface{Type: ssi.LVDS} })

	report, err := p.IntfTuning(ctx)
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if !errors.Is(err, boom) || !errors.Is(err, adrv9002.ErrBus) {
		t.Fatalf("aggregated error lost its causes: %v", err)
	}

	want := []adrv9002.Address{
		adrv9002.MakeAddress(adrv9002.PortRX, 0),
		adrv9002.MakeAddress(adrv9002.PortTX, 0),
		adrv9002.MakeAddress(adrv9002.PortRX, 1),
		adrv9002.MakeAddress(adrv9002.PortTX, 1),
	}
	if len(report.Results) != len(want) {
		t.Fatalf("got %d results", len(report.Results))
	}
	for i, res := range report.Results {
		if res.Address != want[i] {
			t.Fatalf("result %d is %s, want %s", i, res.Address, want[i])
		}
	}
	for _, res := range report.Results[:2] {
		if !res.OK() || res.Clk != 3 || res.Data != 4 {
			t.Fatalf("%s not tuned: %+v", res.Address, res.Err)
		}
	}
	for _, res := range report.Results[2:] {
		if res.Err == nil || res.Error == "" {
			t.Fatalf("%s failure not reported", res.Address)
		}
	}
	if len(report.Tuned()) != 2 || len(report.Failed()) != 2 {
		t.Fatalf("tuned %d failed %d", len(report.Tuned()), len(report.Failed()))
	}
	if report.Delays.RxClkDelay[0] != 3 || report.Delays.TxIDataDelay[0] != 4 {
		t.Fatalf("report delays %+v", report.Delays)
	}
	if report.Delays.RxClkDelay[1] != 0 || report.Delays.TxClkDelay[1] != 0 {
		t.Fatalf("failed channel delays changed: %+v", report.Delays)
	}
	assertPaired(t, chip)

	for _, port := range []adrv9002.Port{adrv9002.PortRX, adrv9002.PortTX} {
		for i := 0; i < 2; i++ {
			if s := chip.State(port, i); s != adrv9002.StateCalibrated {
				t.Fatalf("%s%d left in %s", port, i+1, s)
			}
		}
	}
}

func TestIntfTuningRX2TX2Mirrors(t *testing.T) {
	chip := sim.New(ssi.CMOS)
	p := newPhy(t, chip, func(c *adrv9002.Config) { c.RX2TX2 = true; c.Debug = true })

	report, err := p.IntfTuning(context.Background())
	if err != nil {
		t.Fatalf("IntfTuning: %v", err)
	}
	if report.SSIType != "cmos" {
		t.Fatalf("ssi type read as %s", report.SSIType)
	}
	for _, res := range report.Results[2:] {
		if !res.Mirrored || res.Clk != 3 || res.Data != 4 {
			t.Fatalf("%s not mirrored: %+v", res.Address, res)
		}
	}
	d := chip.Delays()
	if d.RxClkDelay[1] != d.RxClkDelay[0] || d.TxIDataDelay[1] != d.TxIDataDelay[0] {
		t.Fatalf("channel 2 delays do not follow channel 1: %+v", d)
	}
	if chip.Enters(adrv9002.PortRX, 1) != 0 || chip.Enters(adrv9002.PortTX, 1) != 0 {
		t.Fatalf("channel 2 swept in rx2tx2 mode")
	}

	diag := p.Diagnostics()
	if diag == nil {
		t.Fatalf("diagnostics missing in debug mode")
	}
	if diag.Calibration() != d {
		t.Fatalf("diagnostics calibration %+v, hardware %+v", diag.Calibration(), d)
	}
	if len(diag.Results()) != 4 {
		t.Fatalf("diagnostics holds %d results", len(diag.Results()))
	}
	if !strings.Contains(diag.Dump(), "rx2 clk=3 data=4 (mirrored)") {
		t.Fatalf("dump:\n%s", diag.Dump())
	}
}

func TestIntfTuningSkipsDisabled(t *testing.T) {
	chip := sim.New(ssi.LVDS)
	chip.SetState(adrv9002.PortRX, 0, adrv9002.StatePrimed)
	p := newPhy(t, chip, func(c *adrv9002.Config) {
		c.Channels = 1
		c.Converters = adrv9002.Converters{RxADC: c.Converters.RxADC[:1], TxDAC: c.Converters.TxDAC[:1]}
		c.RX = []adrv9002.ChannelConfig{{Enabled: true}}
		c.TX = []adrv9002.ChannelConfig{{Enabled: false}}
	})
	report, err := p.IntfTuning(context.Background())
	if err != nil {
		t.Fatalf("IntfTuning: %v", err)
	}
	if len(report.Results) != 2 || !report.Results[1].Skipped {
		t.Fatalf("tx1 not skipped: %+v", report.Results)
	}
	if chip.Enters(adrv9002.PortTX, 0) != 0 {
		t.Fatalf("disabled channel entered test mode")
	}
	if s := chip.State(adrv9002.PortRX, 0); s != adrv9002.StatePrimed {
		t.Fatalf("primed channel moved to %s", s)
	}
	if p.Diagnostics() != nil {
		t.Fatalf("diagnostics built without debug")
	}
}

func TestChannelStateOps(t *testing.T) {
	ctx := context.Background()
	chip := sim.New(ssi.LVDS)
	p := newPhy(t, chip, nil)

	if err := p.RefreshState(ctx); err != nil {
		t.Fatalf("RefreshState: %v", err)
	}
	rx, _ := p.RX(0)
	if rx.State() != adrv9002.StateCalibrated {
		t.Fatalf("cached state %s", rx.State())
	}

	chip.Stick(adrv9002.PortRX, 0)
	err := p.ChannelToState(ctx, adrv9002.PortRX, 0, adrv9002.StatePrimed)
	if !errors.Is(err, adrv9002.ErrInvalidState) {
		t.Fatalf("unacknowledged transition accepted: %v", err)
	}
	if rx.State() != adrv9002.StateCalibrated {
		t.Fatalf("cached state %s does not match the chip", rx.State())
	}

	boom := errors.New("nak")
	chip.Fail(sim.OpToState, adrv9002.PortTX, 1, boom)
	err = p.ChannelToState(ctx, adrv9002.PortTX, 1, adrv9002.StatePrimed)
	var de *adrv9002.DevError
	if !errors.As(err, &de) || !errors.Is(err, boom) {
		t.Fatalf("expected DevError wrapping the cause, got %v", err)
	}
	if !strings.Contains(de.Func, "ChannelToState") || de.Line == 0 {
		t.Fatalf("call site not captured: %+v", de)
	}

	if err := p.SetNCO(ctx, adrv9002.PortRX, 1, -250000); err != nil {
		t.Fatalf("SetNCO: %v", err)
	}
	if chip.NCO(adrv9002.PortRX, 1) != -250000 {
		t.Fatalf("nco not applied")
	}
	if err := p.SetPowerDown(ctx, adrv9002.PortTX, 0, true); err != nil {
		t.Fatalf("SetPowerDown: %v", err)
	}
	tx, _ := p.TX(0)
	if tx.Power || tx.State() != adrv9002.StateStandby {
		t.Fatalf("power down not reflected: power %v state %s", tx.Power, tx.State())
	}

	if err := p.RFEnable(ctx, adrv9002.PortRX, 1, true); err != nil {
		t.Fatalf("RFEnable: %v", err)
	}
	if chip.State(adrv9002.PortRX, 1) != adrv9002.StateRfEnabled {
		t.Fatalf("rx2 not rf enabled")
	}
	if _, err := p.ChannelAt(adrv9002.MakeAddress(adrv9002.PortTX, 5)); !errors.Is(err, adrv9002.ErrInvalidChannel) {
		t.Fatalf("out of range address accepted")
	}
}

type recordingLine struct {
	mu     sync.Mutex
	levels []bool
	times  []time.Time
}

func (l *recordingLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels = append(l.levels, high)
	l.times = append(l.times, time.Now())
	return nil
}

func TestSyncGPIOToggle(t *testing.T) {
	line := &recordingLine{}
	chip := sim.New(ssi.LVDS)
	p := newPhy(t, chip, func(c *adrv9002.Config) { c.SyncLine = line; c.RX2TX2 = true })
	if err := p.SyncGPIOToggle(context.Background()); err != nil {
		t.Fatalf("SyncGPIOToggle: %v", err)
	}
	if len(line.levels) != 2 || !line.levels[0] || line.levels[1] {
		t.Fatalf("unexpected pulse %v", line.levels)
	}
	if held := line.times[1].Sub(line.times[0]); held < adrv9002.SyncPulse {
		t.Fatalf("pulse held %v", held)
	}

	quiet := &recordingLine{}
	p = newPhy(t, chip, func(c *adrv9002.Config) { c.SyncLine = quiet })
	if err := p.SyncGPIOToggle(context.Background()); err != nil || len(quiet.levels) != 0 {
		t.Fatalf("pulse issued outside rx2tx2: %v %v", quiet.levels, err)
	}
}

func TestConverterSetup(t *testing.T) {
	ctx := context.Background()
	chip := sim.New(ssi.CMOS)
	line := &recordingLine{}
	p := newPhy(t, chip, func(c *adrv9002.Config) {
		c.RX2TX2 = true
		c.SyncLine = line
		c.SSI = ssi.Interface{Type: ssi.CMOS, CMOSDDR: true}
		c.ClockRates[adrv9002.ClockRx1] = 61440000
	})

	typ, err := p.SSITypeGet(ctx)
	if err != nil || typ != ssi.CMOS {
		t.Fatalf("SSITypeGet = %v, %v", typ, err)
	}
	intf, err := p.SSIInterface(0)
	if err != nil || intf.Lanes != 4 {
		t.Fatalf("SSIInterface = %+v, %v", intf, err)
	}
	if err := p.SSIConfigure(ctx); err != nil {
		t.Fatalf("SSIConfigure: %v", err)
	}
	cntrl3 := chip.Regs().Get(sim.RxBase(0) + axi.RegCntrl3)
	if regmap.Field(cntrl3, axi.Cntrl3NumLanes) != 4 || cntrl3&axi.Cntrl3SDRDDRN != 0 {
		t.Fatalf("rx1 cntrl3 = 0x%X", cntrl3)
	}
	if chip.Regs().Get(sim.TxBase(0)+axi.RegRstn) != axi.RstnRstn|axi.RstnMMCMRstn {
		t.Fatalf("tx1 core left in reset")
	}
	if chip.Regs().Get(sim.RxBase(1)+axi.RegCntrl3) != 0 {
		t.Fatalf("rx2 core programmed in rx2tx2 mode")
	}
	if len(line.levels) != 2 {
		t.Fatalf("sync pulse not issued")
	}
	if clk, _ := p.Clock(adrv9002.ClockRx2); clk.Rate != 61440000 || clk.Phy() != p {
		t.Fatalf("rx2 clock does not follow rx1: %d", clk.Rate)
	}

	if err := p.RegisterConverters(ctx); err != nil {
		t.Fatalf("RegisterConverters: %v", err)
	}
	for i := 0; i < 4; i++ {
		if chip.Regs().Get(sim.DMABase(i)+axi.RegDMACCtrl) != axi.DMACCtrlEnable {
			t.Fatalf("dma %d not running", i)
		}
	}

	if err := p.HDLLoopback(ctx, true); err != nil {
		t.Fatalf("HDLLoopback: %v", err)
	}
	if sel := chip.Regs().Get(sim.TxBase(1)+axi.RegChanCntrl7(1)) & axi.DACDDSel; sel != 8 {
		t.Fatalf("tx2 dac source %d, want loopback", sel)
	}
}

func TestRegisterConvertersMissingCore(t *testing.T) {
	chip := sim.New(ssi.LVDS)
	conv := chip.Converters()
	conv.TxDAC = conv.TxDAC[:1]
	p := newPhy(t, chip, func(c *adrv9002.Config) { c.Converters = conv })
	if err := p.RegisterConverters(context.Background()); !errors.Is(err, adrv9002.ErrInvalidChannel) {
		t.Fatalf("missing tx2 core not reported: %v", err)
	}
}

func TestSPIAccess(t *testing.T) {
	ctx := context.Background()
	bus := regmap.NewMap()
	chip := sim.New(ssi.LVDS)
	p := newPhy(t, chip, func(c *adrv9002.Config) { c.Bus = bus })

	if err := p.SPIWrite(ctx, 0x0102, 0x5A); err != nil {
		t.Fatalf("SPIWrite: %v", err)
	}
	if v, err := p.SPIRead(ctx, 0x0102); err != nil || v != 0x5A {
		t.Fatalf("SPIRead = 0x%X, %v", v, err)
	}
	bus.FailOn(0x0103, errors.New("nak"))
	if _, err := p.SPIRead(ctx, 0x0103); !errors.Is(err, adrv9002.ErrBus) {
		t.Fatalf("expected ErrBus, got %v", err)
	}

	noBus := newPhy(t, chip, nil)
	if _, err := noBus.SPIRead(ctx, 0); !errors.Is(err, adrv9002.ErrBus) {
		t.Fatalf("read without a bus: %v", err)
	}
}

// strictDevice refuses a direct move to standby the way the Linux driver
// does; standby is only reachable through powerdown.
type strictDevice struct {
	*sim.Chip
	failTo map[adrv9002.ChannelState]error
}

func (d *strictDevice) ChannelToState(ctx context.Context, port adrv9002.Port, idx int, s adrv9002.ChannelState) error {
	if s == adrv9002.StateStandby {
		return fmt.Errorf("standby is entered through powerdown: %w", adrv9002.ErrInvalidState)
	}
	if err := d.failTo[s]; err != nil {
		return err
	}
	return d.Chip.ChannelToState(ctx, port, idx, s)
}

func TestIntfTuningStandbyThroughPowerdown(t *testing.T) {
	chip := sim.New(ssi.LVDS)
	chip.SetState(adrv9002.PortRX, 0, adrv9002.StateStandby)
	p := newPhy(t, chip, func(c *adrv9002.Config) {
		c.Device = &strictDevice{Chip: chip}
		c.Debug = true
	})

	report, err := p.IntfTuning(context.Background())
	if err != nil {
		t.Fatalf("IntfTuning: %v", err)
	}
	rx1 := report.Results[0]
	if !rx1.OK() || rx1.Clk != 3 || rx1.Data != 4 || rx1.Restore != nil {
		t.Fatalf("rx1 not tuned cleanly: %+v", rx1)
	}
	if s := chip.State(adrv9002.PortRX, 0); s != adrv9002.StateStandby {
		t.Fatalf("rx1 left in %s", s)
	}
	if rx, _ := p.RX(0); rx.State() != adrv9002.StateStandby {
		t.Fatalf("cached rx1 state %s", rx.State())
	}
	if _, ok := p.Diagnostics().Result(adrv9002.MakeAddress(adrv9002.PortRX, 0)); !ok {
		t.Fatalf("tuned standby channel missing from diagnostics")
	}
	assertPaired(t, chip)
}

func TestIntfTuningRestoreFailureKeepsResult(t *testing.T) {
	chip := sim.New(ssi.LVDS)
	boom := errors.New("ensm write rejected")
	p := newPhy(t, chip, func(c *adrv9002.Config) {
		c.Device = &strictDevice{Chip: chip, failTo: map[adrv9002.ChannelState]error{adrv9002.StateCalibrated: boom}}
		c.Debug = true
	})

	report, err := p.IntfTuning(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("restore failure not reported: %v", err)
	}
	for _, res := range report.Results {
		if !res.OK() || res.Clk != 3 || res.Data != 4 {
			t.Fatalf("%s lost its tuning result: %+v", res.Address, res)
		}
		if !errors.Is(res.Restore, boom) || res.RestoreError == "" {
			t.Fatalf("%s restore error missing: %+v", res.Address, res)
		}
	}
	if len(report.Tuned()) != 4 || len(report.Failed()) != 0 {
		t.Fatalf("tuned %d failed %d", len(report.Tuned()), len(report.Failed()))
	}
	if n := len(p.Diagnostics().Results()); n != 4 {
		t.Fatalf("diagnostics holds %d results", n)
	}
}

func TestIntfTuningRX2TX2LeavesDisabledChannel(t *testing.T) {
	chip := sim.New(ssi.LVDS)
	p := newPhy(t, chip, func(c *adrv9002.Config) {
		c.RX2TX2 = true
		c.RX[1].Enabled = false
		c.TX[1].Enabled = false
	})

	report, err := p.IntfTuning(context.Background())
	if err != nil {
		t.Fatalf("IntfTuning: %v", err)
	}
	for _, res := range report.Results[:2] {
		if !res.OK() {
			t.Fatalf("%s not tuned: %v", res.Address, res.Err)
		}
	}
	for _, res := range report.Results[2:] {
		if !res.Skipped || res.Mirrored {
			t.Fatalf("%s touched while disabled: %+v", res.Address, res)
		}
	}
	d := chip.Delays()
	if d.RxClkDelay[1] != 0 || d.RxIDataDelay[1] != 0 || d.TxClkDelay[1] != 0 || d.TxIDataDelay[1] != 0 {
		t.Fatalf("disabled channel 2 delays written: %+v", d)
	}
}

func TestTuneSnapshotsAGC(t *testing.T) {
	agc := adrv9002.GainControlCfg{PeakWaitTime: 4, MaxGainIndex: 255, MinGainIndex: 183, GainUpdateCounter: 11520, AttackDelayUs: 10}
	chip := sim.New(ssi.LVDS)
	p := newPhy(t, chip, func(c *adrv9002.Config) {
		c.Debug = true
		c.RX[0].AGC = agc
	})

	report, err := p.IntfTuning(context.Background())
	if err != nil {
		t.Fatalf("IntfTuning: %v", err)
	}
	if got := report.Results[0].AGC; got == nil || *got != agc {
		t.Fatalf("rx1 result agc %+v", got)
	}
	if report.Results[1].AGC != nil {
		t.Fatalf("tx result carries an agc snapshot")
	}
	rx, _ := p.RX(0)
	if rx.AGC != agc || rx.DebugAGC == nil || *rx.DebugAGC != agc {
		t.Fatalf("agc %+v, debug copy %+v", rx.AGC, rx.DebugAGC)
	}
	res, ok := p.Diagnostics().Result(adrv9002.MakeAddress(adrv9002.PortRX, 0))
	if !ok || res.AGC == nil || *res.AGC != agc {
		t.Fatalf("diagnostics agc %+v", res.AGC)
	}
}

func TestDiagnosticsKeepOnlyTunedPairs(t *testing.T) {
	chip := sim.New(ssi.LVDS)
	chip.SetEye(adrv9002.PortRX, 1, adrv9002.EyeDiagram{})
	var before ssi.CalibrationConfig
	before.Set(false, 1, 5, 6)
	chip.SetDelays(before)
	p := newPhy(t, chip, func(c *adrv9002.Config) { c.Debug = true })

	report, err := p.IntfTuning(context.Background())
	if !errors.Is(err, adrv9002.ErrNoValidRegion) {
		t.Fatalf("expected ErrNoValidRegion, got %v", err)
	}
	if report.Delays.RxClkDelay[1] != 5 || report.Delays.RxIDataDelay[1] != 6 {
		t.Fatalf("report does not hold the hardware record: %+v", report.Delays)
	}
	cal := p.Diagnostics().Calibration()
	if cal.RxClkDelay[1] != 0 || cal.RxIDataDelay[1] != 0 {
		t.Fatalf("failed rx2 persisted as tuned: %+v", cal)
	}
	if cal.RxClkDelay[0] != 3 || cal.RxIDataDelay[0] != 4 || cal.TxClkDelay[1] != 3 || cal.TxIDataDelay[1] != 4 {
		t.Fatalf("tuned pairs missing: %+v", cal)
	}
}
