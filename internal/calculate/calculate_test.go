package calculate

import (
	"math"
	"testing"

	"github.com/sshoecraft/mmprocess/internal/config"
)

func TestRoundEven(t *testing.T) {
	tests := []struct{ in, want int }{
		{533, 534},
		{534, 534},
		{0, 0},
		{1, 2},
	}
	for _, tt := range tests {
		if got := RoundEven(tt.in); got != tt.want {
			t.Fatalf("RoundEven(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScaleFitsMaxWidth(t *testing.T) {
	got := Scale(1920, 1080, 1280, 720, 0, 0)
	if got.Width != 1280 || got.Height != 720 || !got.Scaled {
		t.Fatalf("unexpected scale result: %+v", got)
	}
}

func TestScaleUsesCropGeometry(t *testing.T) {
	got := Scale(1920, 1080, 1280, 0, 1920, 800)
	if got.Width != 1280 || got.Height != 534 || !got.Scaled {
		t.Fatalf("unexpected scale result: %+v", got)
	}
}

func TestScaleWithinBoundsUnchanged(t *testing.T) {
	got := Scale(1280, 720, 1920, 1080, 0, 0)
	if got.Width != 1280 || got.Height != 720 || got.Scaled {
		t.Fatalf("unexpected scale result: %+v", got)
	}
}

func TestScaleForcesEvenDimensions(t *testing.T) {
	got := Scale(853, 480, 0, 0, 0, 0)
	if got.Width != 854 || got.Height != 480 || !got.Scaled {
		t.Fatalf("unexpected scale result: %+v", got)
	}
}

func smartDefaults() config.SmartSizing {
	return config.SmartSizing{
		Enabled:   true,
		MBPS:      1.0,
		RefBPP:    0.225,
		RefPixels: 345600,
		Factor:    0.000061,
	}
}

func TestSmartBPPShrinksWithResolution(t *testing.T) {
	smart := smartDefaults()

	atRef := SmartBPP(345600, smart)
	if math.Abs(atRef-0.225) > 1e-9 {
		t.Fatalf("SmartBPP at reference = %f, want 0.225", atRef)
	}

	at1080p := SmartBPP(1920*800, smart)
	if math.Abs(at1080p-0.1523856) > 1e-6 {
		t.Fatalf("SmartBPP(1920x800) = %f, want 0.1523856", at1080p)
	}

	belowRef := SmartBPP(640*480, smart)
	if belowRef <= 0.225 {
		t.Fatalf("SmartBPP below reference should exceed 0.225, got %f", belowRef)
	}
}

func TestSmartBPPClamps(t *testing.T) {
	smart := smartDefaults()
	smart.MinBPP = 0.10
	smart.MaxBPP = 0.20

	if got := SmartBPP(8294400, smart); got != 0.10 {
		t.Fatalf("expected min clamp 0.10, got %f", got)
	}
	if got := SmartBPP(100, smart); got != 0.20 {
		t.Fatalf("expected max clamp 0.20, got %f", got)
	}

	smart.MinBPP = 0
	if got := SmartBPP(100000000, smart); got != 0.05 {
		t.Fatalf("expected hard floor 0.05, got %f", got)
	}
}

func TestBitrateDisabledWithoutSmart(t *testing.T) {
	got := Bitrate(BitrateParams{Width: 1920, Height: 1080, FPS: 24, Duration: 3600, AudioBitrate: 384})
	if got.VideoBitrate != 0 || got.TotalBitrate != 0 || got.AudioBitrate != 384 {
		t.Fatalf("unexpected result without smart sizing: %+v", got)
	}
}

func TestBitrateDeflatesToBudget(t *testing.T) {
	got := Bitrate(BitrateParams{
		Width:        1920,
		Height:       800,
		FPS:          24,
		Duration:     3600,
		AudioBitrate: 384,
		Smart:        smartDefaults(),
	})
	if got.VideoBitrate != 5617 {
		t.Fatalf("VideoBitrate = %d, want 5617", got.VideoBitrate)
	}
	if got.TotalBitrate != 6001 {
		t.Fatalf("TotalBitrate = %d, want 6001", got.TotalBitrate)
	}
	if got.BPP != 0.152 {
		t.Fatalf("BPP = %f, want 0.152", got.BPP)
	}
}

func TestBitrateInflatesWithinInputSize(t *testing.T) {
	smart := smartDefaults()
	smart.MBPS = 0.1

	params := BitrateParams{
		Width:        640,
		Height:       480,
		FPS:          25,
		Duration:     600,
		AudioBitrate: 128,
		InputSize:    200_000_000,
		Smart:        smart,
	}
	got := Bitrate(params)
	if got.VideoBitrate != 1745 {
		t.Fatalf("VideoBitrate = %d, want 1745 (inflated to bpp budget)", got.VideoBitrate)
	}

	params.InputSize = 100_000_000
	got = Bitrate(params)
	if got.VideoBitrate != 710 {
		t.Fatalf("VideoBitrate = %d, want 710 (inflate blocked by input size)", got.VideoBitrate)
	}
}

func TestBitrateHonorsMaxSize(t *testing.T) {
	smart := smartDefaults()
	smart.MBPS = 2.0

	got := Bitrate(BitrateParams{
		Width:        1920,
		Height:       800,
		FPS:          24,
		Duration:     3600,
		AudioBitrate: 384,
		MaxSizeMB:    3600, // 1 MB/s cap, half the requested rate
		Smart:        smart,
	})
	if got.VideoBitrate != 5617 {
		t.Fatalf("VideoBitrate = %d, want 5617 (capped then deflated)", got.VideoBitrate)
	}
}

func TestEstimatedSize(t *testing.T) {
	if got := EstimatedSize(4000, 384, 3600); got != 1_972_800_000 {
		t.Fatalf("EstimatedSize = %d, want 1972800000", got)
	}
	if got := EstimatedSize(0, 0, 0); got != 0 {
		t.Fatalf("EstimatedSize zero case = %d, want 0", got)
	}
}
