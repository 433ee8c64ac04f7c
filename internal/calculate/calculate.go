// Package calculate holds the pure arithmetic behind output sizing:
// dimension scaling, smart bitrate targeting, and resolution-tier
// selection.
package calculate

import (
	"math"

	"github.com/sshoecraft/mmprocess/internal/config"
)

// ScaleResult is the computed output geometry.
type ScaleResult struct {
	Width  int
	Height int
	Scaled bool // differs from the (cropped) input geometry
}

// BitrateResult is the computed rate targeting. VideoBitrate of zero means
// no bitrate target applies (stream copy or CRF mode).
type BitrateResult struct {
	VideoBitrate int     // kbit/s
	AudioBitrate int     // kbit/s
	TotalBitrate int     // kbit/s
	BPP          float64 // resulting bits per pixel, for diagnostics
}

// RoundEven rounds a dimension up to the nearest even value, as most
// codecs require.
func RoundEven(value int) int {
	return ((value + 1) / 2) * 2
}

// Scale computes output dimensions: the cropped geometry when a crop
// window applies, shrunk aspect-preserving to fit the max bounds, with
// both dimensions forced even. Zero max bounds leave that axis
// unconstrained.
func Scale(inputWidth, inputHeight, maxWidth, maxHeight, cropWidth, cropHeight int) ScaleResult {
	width := inputWidth
	height := inputHeight
	if cropWidth > 0 {
		width = cropWidth
	}
	if cropHeight > 0 {
		height = cropHeight
	}
	baseWidth, baseHeight := width, height

	aspect := 1.0
	if height > 0 {
		aspect = float64(width) / float64(height)
	}

	if maxWidth > 0 && width > maxWidth {
		width = maxWidth
		height = RoundEven(int(float64(width) / aspect))
	}
	if maxHeight > 0 && height > maxHeight {
		height = maxHeight
		width = RoundEven(int(float64(height) * aspect))
	}

	width = RoundEven(width)
	height = RoundEven(height)

	return ScaleResult{
		Width:  width,
		Height: height,
		Scaled: width != baseWidth || height != baseHeight,
	}
}

// SmartBPP returns the bits-per-pixel budget for the given output pixel
// count: the reference budget shrinks linearly as resolution rises above
// the reference, clamped to the configured bounds and floored at 0.05.
func SmartBPP(pixels int64, smart config.SmartSizing) float64 {
	diff := float64(pixels - int64(smart.RefPixels))
	bpp := smart.RefBPP - diff*smart.Factor/1000
	if smart.MinBPP > 0 && bpp < smart.MinBPP {
		bpp = smart.MinBPP
	}
	if smart.MaxBPP > 0 && bpp > smart.MaxBPP {
		bpp = smart.MaxBPP
	}
	if bpp < 0.05 {
		bpp = 0.05
	}
	return bpp
}

// BitrateParams feeds one bitrate computation.
type BitrateParams struct {
	Width        int
	Height       int
	FPS          float64
	Duration     float64 // seconds
	AudioBitrate int     // kbit/s
	MaxSizeMB    int     // 0 = unlimited
	InputSize    int64   // bytes; caps output size unless Smart.CanGrow
	Smart        config.SmartSizing
}

// Bitrate computes the smart-sized video bitrate: start from a target of
// MBPS megabytes per second of content, cap by max size and input size,
// then pull the resulting bits-per-pixel toward the SmartBPP budget
// without breaching either cap. Without smart sizing no bitrate target
// applies.
func Bitrate(p BitrateParams) BitrateResult {
	if !p.Smart.Enabled || p.Duration <= 0 || p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
		return BitrateResult{AudioBitrate: p.AudioBitrate}
	}

	pixels := int64(p.Width) * int64(p.Height)
	pixelsPerSecond := float64(pixels) * p.FPS
	audioBytes := float64(p.AudioBitrate) * 1000 * p.Duration / 8

	targetBytes := p.Duration * p.Smart.MBPS * 1024 * 1024
	if p.MaxSizeMB > 0 {
		if limit := float64(p.MaxSizeMB) * 1024 * 1024; targetBytes > limit {
			targetBytes = limit
		}
	}
	if p.InputSize > 0 && !p.Smart.CanGrow && targetBytes > float64(p.InputSize) {
		targetBytes = float64(p.InputSize)
	}

	videoBytes := targetBytes - audioBytes
	if videoBytes < 0 {
		videoBytes = targetBytes * 0.9
	}
	videoBitrate := int(videoBytes * 8 / p.Duration / 1000)

	targetBPP := SmartBPP(pixels, p.Smart)
	currentBPP := float64(videoBitrate) * 1000 / pixelsPerSecond
	switch {
	case currentBPP < targetBPP:
		candidate := int(pixelsPerSecond * targetBPP / 1000)
		candidateBytes := float64(candidate)*1000*p.Duration/8 + audioBytes
		grows := p.MaxSizeMB > 0 && candidateBytes > float64(p.MaxSizeMB)*1024*1024
		if p.InputSize > 0 && !p.Smart.CanGrow && candidateBytes > float64(p.InputSize) {
			grows = true
		}
		if !grows {
			videoBitrate = candidate
		}
	case currentBPP > targetBPP:
		videoBitrate = int(pixelsPerSecond * targetBPP / 1000)
	}

	finalBPP := float64(videoBitrate) * 1000 / pixelsPerSecond
	return BitrateResult{
		VideoBitrate: videoBitrate,
		AudioBitrate: p.AudioBitrate,
		TotalBitrate: videoBitrate + p.AudioBitrate,
		BPP:          math.Round(finalBPP*1000) / 1000,
	}
}

// EstimatedSize returns the expected output size in bytes for the given
// rates and duration.
func EstimatedSize(videoBitrate, audioBitrate int, duration float64) int64 {
	totalBits := float64(videoBitrate+audioBitrate) * 1000 * duration
	return int64(totalBits / 8)
}
