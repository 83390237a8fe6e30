package ssi

import "testing"

func TestParseType(t *testing.T) {
	cases := map[string]Type{"CMOS": CMOS, " lvds ": LVDS, "": Disabled}
	for in, want := range cases {
		got, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseType(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseType("jesd"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestCalibrationSetGet(t *testing.T) {
	var cfg CalibrationConfig
	cfg.TxRefClkDelay[1] = 5
	cfg.Set(true, 1, 3, 4)
	cfg.Set(false, 0, 6, 2)

	if clk, data := cfg.Get(true, 1); clk != 3 || data != 4 {
		t.Fatalf("tx pair = %d/%d", clk, data)
	}
	if clk, data := cfg.Get(false, 0); clk != 6 || data != 2 {
		t.Fatalf("rx pair = %d/%d", clk, data)
	}
	if cfg.TxStrobeDelay[1] != 4 || cfg.TxQDataDelay[1] != 4 {
		t.Fatalf("tx data lanes not updated: %+v", cfg)
	}
	if cfg.TxRefClkDelay[1] != 5 {
		t.Fatalf("ref clock delay changed to %d", cfg.TxRefClkDelay[1])
	}
	if clk, _ := cfg.Get(false, 1); clk != 0 {
		t.Fatalf("untouched port changed")
	}
}

func TestTxStatusPassed(t *testing.T) {
	strobe := TxTestModeStatus{StrobeAlignError: true}
	if !strobe.Passed(CMOS) {
		t.Fatalf("strobe alignment must be ignored on CMOS")
	}
	if strobe.Passed(LVDS) {
		t.Fatalf("strobe alignment must fail LVDS")
	}
	if (TxTestModeStatus{FifoEmpty: true}).Passed(CMOS) {
		t.Fatalf("fifo error must fail")
	}
	if !(TxTestModeStatus{}).Passed(LVDS) {
		t.Fatalf("clean status must pass")
	}
}

func TestPatterns(t *testing.T) {
	if RxPattern(CMOS) != TestRampNibble || RxPattern(LVDS) != TestRamp16 {
		t.Fatalf("unexpected rx patterns")
	}
	if TxPattern(CMOS) != TestRampNibble || TxPattern(LVDS) != TestPRBS7 {
		t.Fatalf("unexpected tx patterns")
	}
}
