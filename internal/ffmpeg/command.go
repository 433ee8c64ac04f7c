package ffmpeg

import (
	"fmt"
	"strconv"
)

// Request describes one ffmpeg transcode invocation.
type Request struct {
	InputPath     string
	OutputPath    string
	Container     string
	VideoCodec    string
	VideoBitrate  int // kbit/s; zero in CRF and copy modes
	VideoCRF      int // zero in bitrate and copy modes
	VideoFilters  string
	AudioCodec    string
	AudioStream   string // -map selector; empty means the first audio track
	AudioChannels int
	AudioBitrate  int // kbit/s
	Title         string
	PassLogPrefix string
	ExtraArgs     []string
}

// BuildArgs assembles the ffmpeg argument vector for one invocation.
// Pass 0 is a single-pass encode; passes 1 and 2 select the two-pass
// analysis and encode runs. The first pass maps no audio and writes to
// the null muxer so only the rate-control log survives it.
func BuildArgs(req Request, pass int) []string {
	args := []string{"-y", "-i", req.InputPath}

	// constant frame rate keeps pass 1 and 2 frame counts aligned
	args = append(args, "-vsync", "cfr")

	args = append(args, "-map", "0:v:0")
	withAudio := pass != 1 && req.AudioCodec != ""
	if withAudio {
		selector := req.AudioStream
		if selector == "" {
			selector = "0:a:0"
		}
		args = append(args, "-map", selector)
	}

	if req.VideoCodec == "copy" {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args, "-c:v", req.VideoCodec)
		args = append(args, "-pix_fmt", "yuv420p")
		if req.VideoCodec == "libx265" {
			args = append(args, "-tag:v", "hvc1")
		}
		if req.VideoFilters != "" {
			args = append(args, "-vf", req.VideoFilters)
		}
		if req.VideoCRF > 0 {
			args = append(args, "-crf", strconv.Itoa(req.VideoCRF))
		} else if req.VideoBitrate > 0 {
			args = append(args, "-b:v", fmt.Sprintf("%dk", req.VideoBitrate))
		}
		if pass > 0 {
			args = append(args, "-pass", strconv.Itoa(pass))
			args = append(args, "-passlogfile", req.PassLogPrefix)
			if pass == 1 {
				args = append(args, "-f", "null")
			}
		}
		args = append(args, req.ExtraArgs...)
	}

	if withAudio {
		if req.AudioCodec == "copy" {
			args = append(args, "-c:a", "copy")
		} else {
			args = append(args, "-c:a", req.AudioCodec)
			args = append(args, "-ac", strconv.Itoa(req.AudioChannels))
			args = append(args, "-b:a", fmt.Sprintf("%dk", req.AudioBitrate))
			if req.AudioChannels == 6 {
				args = append(args, "-af", "channelmap=channel_layout=5.1")
			}
		}
		if req.Container == "mp4" {
			args = append(args, "-movflags", "+faststart")
		}
	}

	if req.Title != "" && pass != 1 {
		args = append(args, "-metadata", "title="+req.Title)
	}

	if pass == 1 {
		args = append(args, "-")
	} else {
		args = append(args, req.OutputPath)
	}
	return args
}

// PassLogName returns the log artifact name for a pass. Single-pass
// encodes (pass 0) share pass1.log.
func PassLogName(pass int) string {
	if pass < 1 {
		pass = 1
	}
	return fmt.Sprintf("pass%d.log", pass)
}
