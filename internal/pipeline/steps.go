package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sshoecraft/mmprocess/internal/calculate"
	"github.com/sshoecraft/mmprocess/internal/ffmpeg"
	"github.com/sshoecraft/mmprocess/internal/fileutil"
	"github.com/sshoecraft/mmprocess/internal/filters"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/services"
	"github.com/sshoecraft/mmprocess/internal/workarea"
)

func (e *Executor) runProbe(ctx context.Context, ex *execution) error {
	source := workarea.SourcePath(ex.jobDir, ex.job)
	ex.logger.Info("probing input", logging.String(logging.FieldPath, source))

	result, err := e.probe(ctx, e.cfg.FFprobeBinary(), source)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "pipeline", "probe", filepath.Base(source), err)
	}

	in := &ex.job.Input
	in.Format = result.Format.FormatName
	in.Size = result.SizeBytes()
	if duration := result.DurationSeconds(); !math.IsNaN(duration) && duration > 0 {
		in.Duration = duration
	}
	if video, ok := result.FirstVideo(); ok {
		in.VideoCodec = video.CodecName
		in.VideoWidth = video.Width
		in.VideoHeight = video.Height
		in.VideoFPS = video.FPS()
	}
	if audio, ok := result.AudioByLanguage(e.cfg.Encoding.AudioLanguage); ok {
		in.AudioCodec = audio.CodecName
		in.AudioChannels = audio.Channels
		in.AudioBitrate = int(audio.BitRateInt())
		in.AudioStream = audio.Index
	}
	in.SubtitleStream = -1
	if _, position, ok := result.ForcedSubtitle(); ok {
		in.SubtitleStream = position
		ex.logger.Debug("forced subtitle track found",
			logging.Int("subtitle_stream", position))
	}

	e.applyTier(ex)
	return nil
}

// applyTier overlays the matching resolution tier onto the in-memory
// profile and records the tier name on the job.
func (e *Executor) applyTier(ex *execution) {
	in := ex.job.Input
	if len(e.cfg.Tiers) == 0 || in.VideoWidth <= 0 || in.VideoHeight <= 0 {
		return
	}
	pixels := int64(in.VideoWidth) * int64(in.VideoHeight)
	name, tier, ok := calculate.SelectTier(e.cfg.Tiers, pixels)
	if !ok {
		ex.job.Output.Tier = ""
		return
	}
	ex.profile.ApplyTier(tier)
	ex.job.Output.Tier = name
	ex.logger.Info("resolution tier selected",
		logging.String("tier", name),
		logging.Int64("pixels", pixels))
}

func (e *Executor) runCrop(ctx context.Context, ex *execution) error {
	source := workarea.SourcePath(ex.jobDir, ex.job)
	ex.logger.Info("detecting crop", logging.String(logging.FieldPath, source))

	crop, found, err := e.detectCrop(ctx, e.cfg.FFmpegBinary(), source, ex.job.Input.Duration)
	if err != nil {
		return err
	}
	if !found {
		ex.logger.Info("no crop detected")
		return nil
	}
	ex.job.Output.Crop = crop.Slice()
	ex.logger.Info("crop detected",
		logging.String("window", fmt.Sprintf("%dx%d+%d+%d", crop.Width, crop.Height, crop.X, crop.Y)))
	return nil
}

func (e *Executor) runCalculate(ctx context.Context, ex *execution) error {
	in := ex.job.Input
	if in.VideoWidth <= 0 || in.VideoHeight <= 0 {
		return errors.New("input has no video stream")
	}

	out := &ex.job.Output
	profile := ex.profile

	cropW, cropH := 0, 0
	if len(out.Crop) == 4 {
		cropW, cropH = out.Crop[0], out.Crop[1]
	}
	scale := calculate.Scale(in.VideoWidth, in.VideoHeight, profile.VideoWidth, profile.VideoHeight, cropW, cropH)

	out.Container = profile.Container
	out.VideoCodec = profile.VideoCodec
	out.VideoWidth = scale.Width
	out.VideoHeight = scale.Height

	audioKbps := planAudio(ex)

	switch {
	case profile.VideoCodec == "copy":
		out.VideoBitrate, out.VideoCRF = 0, 0
	case profile.VideoCRF > 0:
		out.VideoCRF, out.VideoBitrate = profile.VideoCRF, 0
	case profile.VideoBitrate > 0:
		out.VideoBitrate, out.VideoCRF = profile.VideoBitrate, 0
	case profile.Smart.Enabled:
		if in.Duration <= 0 {
			return errors.New("cannot size bitrate without input duration")
		}
		sized := calculate.Bitrate(calculate.BitrateParams{
			Width:        scale.Width,
			Height:       scale.Height,
			FPS:          in.VideoFPS,
			Duration:     in.Duration,
			AudioBitrate: audioKbps,
			MaxSizeMB:    profile.MaxSizeMB,
			InputSize:    in.Size,
			Smart:        profile.Smart,
		})
		if sized.VideoBitrate <= 0 {
			return errors.New("smart sizing produced no video bitrate")
		}
		out.VideoBitrate, out.VideoCRF = sized.VideoBitrate, 0
		ex.logger.Info("smart-sized video bitrate",
			logging.Int("video_kbps", sized.VideoBitrate),
			logging.Float64("bpp", sized.BPP))
	}

	out.Path = filepath.Join(ex.jobDir, sourceStem(in.Path)+"."+out.Container)

	if scale.Scaled {
		ex.logger.Info("scaling output",
			logging.String("size", fmt.Sprintf("%dx%d", scale.Width, scale.Height)))
	}
	if out.VideoBitrate > 0 {
		if estimated := calculate.EstimatedSize(out.VideoBitrate, audioKbps, in.Duration); estimated > 0 {
			ex.logger.Info("estimated output size",
				logging.String("size", humanize.IBytes(uint64(estimated))))
		}
	}
	return nil
}

// planAudio fixes the output audio parameters from the probed input and
// the profile, returning the bitrate reserved for audio in the size
// budget. Sources without audio produce no audio track, and the output
// never carries more channels than the input had.
func planAudio(ex *execution) int {
	in := ex.job.Input
	out := &ex.job.Output
	profile := ex.profile

	if in.AudioCodec == "" {
		out.AudioCodec = ""
		out.AudioChannels = 0
		out.AudioBitrate = 0
		return 0
	}
	out.AudioCodec = profile.AudioCodec
	if profile.AudioCodec == "copy" {
		out.AudioChannels = in.AudioChannels
		out.AudioBitrate = in.AudioBitrate / 1000
		return out.AudioBitrate
	}
	channels := profile.AudioChannels
	if in.AudioChannels > 0 && in.AudioChannels < channels {
		channels = in.AudioChannels
	}
	out.AudioChannels = channels
	out.AudioBitrate = profile.AudioBitrate
	return profile.AudioBitrate
}

func (e *Executor) runEncode(ctx context.Context, ex *execution) error {
	out := &ex.job.Output
	if out.Container == "" || out.VideoCodec == "" {
		return errors.New("encode requires calculated output parameters")
	}

	total := 1
	if out.VideoCodec != "copy" && out.VideoBitrate > 0 {
		total = 2
	}
	out.TotalPasses = total
	start := out.CurrentPass
	if start < 1 {
		start = 1
	}

	req := e.encodeRequest(ex)
	for pass := start; pass <= total; pass++ {
		if pass > start {
			if e.stopped() {
				return errStop
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		out.CurrentPass = pass
		if err := jobstate.Save(ex.jobDir, ex.job); err != nil {
			return err
		}

		buildPass := pass
		if total == 1 {
			buildPass = 0
		}
		ex.logger.Info("encoding",
			logging.Int(logging.FieldPass, pass),
			logging.Int("total_passes", total))
		logPath := filepath.Join(ex.jobDir, ffmpeg.PassLogName(pass))
		if err := e.runPass(ctx, req, buildPass, logPath); err != nil {
			return err
		}
		if pass < total {
			out.CurrentPass = pass + 1
			if err := jobstate.Save(ex.jobDir, ex.job); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeRequest assembles the ffmpeg invocation from the persisted job
// record, so a resumed encode runs the same command the interrupted run
// built.
func (e *Executor) encodeRequest(ex *execution) ffmpeg.Request {
	in := ex.job.Input
	out := ex.job.Output
	source := workarea.SourcePath(ex.jobDir, ex.job)

	opts := filters.VideoOptions{}
	baseW, baseH := in.VideoWidth, in.VideoHeight
	if len(out.Crop) == 4 {
		opts.Crop = out.Crop
		baseW, baseH = out.Crop[0], out.Crop[1]
	}
	if out.VideoWidth > 0 && (out.VideoWidth != baseW || out.VideoHeight != baseH) {
		opts.ScaleWidth = out.VideoWidth
		opts.ScaleHeight = out.VideoHeight
	}
	if sidecar := strings.TrimSuffix(source, filepath.Ext(source)) + ".srt"; fileExists(sidecar) {
		opts.SubtitlePath = sidecar
		opts.SubtitleIndex = -1
		ex.logger.Info("burning in external subtitle",
			logging.String(logging.FieldPath, sidecar))
	} else if in.SubtitleStream >= 0 {
		opts.SubtitlePath = source
		opts.SubtitleIndex = in.SubtitleStream
		ex.logger.Info("burning in forced subtitle track",
			logging.Int("subtitle_stream", in.SubtitleStream))
	}

	var audioStream string
	if in.AudioStream > 0 {
		audioStream = fmt.Sprintf("0:%d", in.AudioStream)
	}

	return ffmpeg.Request{
		InputPath:     source,
		OutputPath:    filepath.Join(ex.jobDir, "temp_output."+out.Container),
		Container:     out.Container,
		VideoCodec:    out.VideoCodec,
		VideoBitrate:  out.VideoBitrate,
		VideoCRF:      out.VideoCRF,
		VideoFilters:  filters.Video(opts).String(),
		AudioCodec:    out.AudioCodec,
		AudioStream:   audioStream,
		AudioChannels: out.AudioChannels,
		AudioBitrate:  out.AudioBitrate,
		Title:         sourceStem(in.Path),
		PassLogPrefix: filepath.Join(ex.jobDir, "ffmpeg2pass"),
		ExtraArgs:     ex.profile.ExtraArgs,
	}
}

func (e *Executor) runMux(ctx context.Context, ex *execution) error {
	out := &ex.job.Output
	if out.Container == "" {
		ex.logger.Debug("no calculated output, nothing to finalize")
		return nil
	}
	temp := filepath.Join(ex.jobDir, "temp_output."+out.Container)
	final := filepath.Join(ex.jobDir, sourceStem(ex.job.Input.Path)+"."+out.Container)

	if fileExists(temp) {
		if fileExists(final) {
			preserved := final + ".source"
			if !fileExists(preserved) {
				if err := os.Rename(final, preserved); err != nil {
					return services.Wrap(services.ErrTransient, "pipeline", "mux", "preserve existing file", err)
				}
				ex.logger.Info("existing file preserved",
					logging.String(logging.FieldPath, preserved))
			}
			// A lingering .source means a prior run already preserved it.
		}
		if err := os.Rename(temp, final); err != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "mux", "finalize output", err)
		}
		ex.logger.Info("output finalized", logging.String(logging.FieldPath, final))
	} else {
		ex.logger.Debug("no temporary output to finalize")
	}

	out.Path = final
	return nil
}

func (e *Executor) runMove(ctx context.Context, ex *execution) error {
	out := &ex.job.Output
	final := ""
	if out.Path != "" {
		final = filepath.Join(ex.jobDir, filepath.Base(out.Path))
	} else if out.Container != "" {
		final = filepath.Join(ex.jobDir, sourceStem(ex.job.Input.Path)+"."+out.Container)
	}
	if final == "" || !fileExists(final) {
		ex.logger.Debug("no output to move")
		return nil
	}

	if err := os.MkdirAll(e.cfg.Dirs.Out, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "move", e.cfg.Dirs.Out, err)
	}
	dest := filepath.Join(e.cfg.Dirs.Out, filepath.Base(final))
	if fileExists(dest) {
		backup := dest + ".old"
		if err := os.Rename(dest, backup); err != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "move", "back up existing output", err)
		}
		ex.logger.Info("existing output backed up",
			logging.String(logging.FieldPath, backup))
	}
	if err := fileutil.MoveFile(final, dest); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "move", final, err)
	}
	out.Path = dest
	ex.logger.Info("moved to output", logging.String(logging.FieldPath, dest))
	return nil
}

func sourceStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
