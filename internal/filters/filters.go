// Package filters builds ffmpeg video filter-graph expressions.
package filters

import (
	"fmt"
	"strings"
)

// Chain accumulates filter expressions in application order and renders
// them as a single -vf argument.
type Chain struct {
	exprs []string
}

// Add appends a filter expression; empty expressions are ignored.
func (c *Chain) Add(expr string) {
	if expr != "" {
		c.exprs = append(c.exprs, expr)
	}
}

// Empty reports whether the chain holds no filters.
func (c Chain) Empty() bool {
	return len(c.exprs) == 0
}

func (c Chain) String() string {
	return strings.Join(c.exprs, ",")
}

// Crop returns a crop filter for the given window.
func Crop(width, height, x, y int) string {
	return fmt.Sprintf("crop=%d:%d:%d:%d", width, height, x, y)
}

// Scale returns a scale filter. A non-empty flags value selects the
// scaling algorithm.
func Scale(width, height int, flags string) string {
	if flags != "" {
		return fmt.Sprintf("scale=%d:%d:flags=%s", width, height, flags)
	}
	return fmt.Sprintf("scale=%d:%d", width, height)
}

// Subtitles returns a subtitle burn-in filter. streamIndex selects an
// embedded track; pass a negative index for external subtitle files.
func Subtitles(path string, streamIndex int) string {
	escaped := escapeFilterPath(path)
	if streamIndex >= 0 {
		return fmt.Sprintf("subtitles='%s':si=%d", escaped, streamIndex)
	}
	return fmt.Sprintf("subtitles='%s'", escaped)
}

// escapeFilterPath escapes the characters the ffmpeg filter parser treats
// specially inside quoted filter arguments.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(`\`, `\\`, ":", `\:`, "'", `\'`)
	return replacer.Replace(path)
}

// VideoOptions selects the filters for one encode.
type VideoOptions struct {
	Crop          []int // window as [width, height, x, y]
	ScaleWidth    int
	ScaleHeight   int
	ScaleFlags    string // defaults to lanczos when scaling
	SubtitlePath  string
	SubtitleIndex int // negative for external subtitle files
}

// Video assembles the standard chain: crop first (fewer pixels for the
// rest of the graph), then scale, then subtitle burn-in at the final
// resolution.
func Video(opts VideoOptions) Chain {
	var chain Chain
	if len(opts.Crop) == 4 {
		chain.Add(Crop(opts.Crop[0], opts.Crop[1], opts.Crop[2], opts.Crop[3]))
	}
	if opts.ScaleWidth > 0 && opts.ScaleHeight > 0 {
		flags := opts.ScaleFlags
		if flags == "" {
			flags = "lanczos"
		}
		chain.Add(Scale(opts.ScaleWidth, opts.ScaleHeight, flags))
	}
	if opts.SubtitlePath != "" {
		chain.Add(Subtitles(opts.SubtitlePath, opts.SubtitleIndex))
	}
	return chain
}
