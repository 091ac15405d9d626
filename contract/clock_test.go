package contract

import (
	"testing"

	"p2pio/fatal"
)

func TestMsToTick(t *testing.T) {
	tests := []struct {
		ms   int64
		tick int64
	}{
		{0, 0},
		{16, 0},
		{17, 1},
		{999, 59},
		{1000, 60},
		{6000, 360},
		{3_600_000, 216_000},
	}
	for _, tt := range tests {
		got, err := MsToTick(tt.ms)
		if err != nil {
			t.Fatalf("MsToTick(%d): %v", tt.ms, err)
		}
		if got != tt.tick {
			t.Fatalf("MsToTick(%d) = %d, want %d", tt.ms, got, tt.tick)
		}
	}
	if _, err := MsToTick(-1); !fatal.Is(err) {
		t.Fatalf("MsToTick(-1) err = %v, want fatal", err)
	}
}

func TestClockTickAt(t *testing.T) {
	c := Clock{StartMs: 1_700_000_000_000}
	got, err := c.TickAt(c.StartMs + 6000)
	if err != nil || got != 360 {
		t.Fatalf("TickAt(+6000) = %d, %v", got, err)
	}
	if _, err := c.TickAt(c.StartMs - 1); !fatal.Is(err) {
		t.Fatalf("TickAt before start err = %v, want fatal", err)
	}
}
