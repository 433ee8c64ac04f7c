package ffmpeg

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/sshoecraft/mmprocess/internal/services"
)

// Crop is a detected crop window.
type Crop struct {
	Width  int
	Height int
	X      int
	Y      int
}

// Slice returns the window as [width, height, x, y] for persistence.
func (c Crop) Slice() []int {
	return []int{c.Width, c.Height, c.X, c.Y}
}

const (
	cropSamples       = 10
	cropSampleSeconds = 2.0
)

var cropPattern = regexp.MustCompile(`crop=(\d+):(\d+):(\d+):(\d+)`)

// DetectCrop samples the middle 80% of the input with the cropdetect
// filter and returns the window ffmpeg reported most often. found is
// false when no sample produced a crop line.
func DetectCrop(ctx context.Context, binary, path string, duration float64) (Crop, bool, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if duration <= 0 {
		return Crop{}, false, errors.New("cropdetect: unknown duration")
	}

	interval := duration * 0.8 / cropSamples
	counts := make(map[Crop]int)
	var best Crop
	bestCount := 0

	for i := 0; i < cropSamples; i++ {
		if err := ctx.Err(); err != nil {
			return Crop{}, false, err
		}
		start := duration*0.1 + float64(i)*interval
		args := []string{
			"-ss", strconv.FormatFloat(start, 'f', 2, 64),
			"-i", path,
			"-t", strconv.FormatFloat(cropSampleSeconds, 'f', 1, 64),
			"-vf", "cropdetect=24:16:0",
			"-f", "null", "-",
		}
		cmd := commandContext(ctx, binary, args...)
		output, err := cmd.CombinedOutput()
		if err != nil {
			return Crop{}, false, services.Wrap(services.ErrExternalTool, "ffmpeg", "cropdetect", logTailText(output), err)
		}
		for _, match := range cropPattern.FindAllStringSubmatch(string(output), -1) {
			crop := Crop{
				Width:  mustAtoi(match[1]),
				Height: mustAtoi(match[2]),
				X:      mustAtoi(match[3]),
				Y:      mustAtoi(match[4]),
			}
			counts[crop]++
			if counts[crop] > bestCount {
				best = crop
				bestCount = counts[crop]
			}
		}
	}

	if bestCount == 0 {
		return Crop{}, false, nil
	}
	return best, true, nil
}

func mustAtoi(value string) int {
	parsed, _ := strconv.Atoi(value)
	return parsed
}

func logTailText(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > 500 {
		text = text[len(text)-500:]
	}
	return text
}
