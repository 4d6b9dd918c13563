package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/publish"
)

// H.264 baseline settings. Baseline profile + yuv420p is the lowest common
// denominator both platforms' ingest pipelines accept without re-encoding.
const (
	videoCodec   = "libx264"
	videoProfile = "baseline"
	videoLevel   = "3.0"
	audioCodec   = "aac"
	audioBitrate = "128k"
)

// CheckFFmpegAvailable checks if ffmpeg is available in the system PATH.
// Called at startup to validate video transcode capability.
func CheckFFmpegAvailable() error {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: video transcoding will be unavailable. Install FFmpeg with: brew install ffmpeg (macOS) or apt install ffmpeg (Linux)")
	}
	log.Debug().Str("path", path).Msg("ffmpeg found")
	return nil
}

// probeVideoCodec returns the codec name of the first video stream, via
// ffprobe. Empty string when ffprobe is unavailable or the probe fails.
func probeVideoCodec(ctx context.Context, path string) string {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return ""
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("ffprobe codec probe failed")
		return ""
	}
	return strings.TrimSpace(string(out))
}

// videoCodecAcceptable reports whether the video stream codec needs no
// transcode. When ffprobe is unavailable the container check alone decides;
// a wrong guess surfaces later as a platform-side processing error.
func videoCodecAcceptable(ctx context.Context, path string) bool {
	codec := probeVideoCodec(ctx, path)
	return codec == "" || codec == "h264"
}

// transcodeVideo re-encodes the asset to an MP4 with H.264 baseline video
// and AAC audio. Failure is reported as ErrVideoTranscode, distinct from
// image conversion failures.
func (c *Converter) transcodeVideo(ctx context.Context, asset Asset, platform publish.Platform) (Asset, error) {
	if err := CheckFFmpegAvailable(); err != nil {
		return Asset{}, fmt.Errorf("%w: %w: %v", publish.ErrConversion, ErrVideoTranscode, err)
	}
	ffmpegPath, _ := exec.LookPath("ffmpeg")

	outPath, err := c.tempOutputPath("crosspost-vid-*.mp4")
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %w: create temp file: %v", publish.ErrConversion, ErrVideoTranscode, err)
	}

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", asset.Path,
		"-c:v", videoCodec,
		"-profile:v", videoProfile,
		"-level", videoLevel,
		"-pix_fmt", "yuv420p",
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-movflags", "+faststart",
		"-y", outPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outPath)
		return Asset{}, fmt.Errorf("%w: %w: ffmpeg: %v: %s",
			publish.ErrConversion, ErrVideoTranscode, err, truncateOutput(output))
	}

	converted, err := verifyMIME(outPath, "video/mp4")
	if err != nil {
		os.Remove(outPath)
		return Asset{}, fmt.Errorf("%w: %v", ErrVideoTranscode, err)
	}
	converted.Kind = KindVideo

	log.Info().
		Str("platform", string(platform)).
		Str("from", asset.MIME).
		Int64("sizeIn", asset.Size).
		Int64("sizeOut", converted.Size).
		Msg("Video transcoded to H.264 MP4")

	return converted, nil
}

// truncateOutput keeps ffmpeg stderr noise out of error chains.
func truncateOutput(out []byte) string {
	const max = 400
	s := strings.TrimSpace(string(out))
	if len(s) > max {
		return s[len(s)-max:]
	}
	return s
}
