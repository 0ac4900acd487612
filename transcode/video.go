package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/moviescan/frame"
	"github.com/RyanBlaney/moviescan/logging"
)

// VideoConfig holds video decoder configuration
type VideoConfig struct {
	FFmpegPath  string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`   // Path to ffmpeg binary
	FFprobePath string        `json:"ffprobe_path" yaml:"ffprobe_path"` // Path to ffprobe binary
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`           // Timeout for ffprobe operations

	// CountFrames asks ffprobe to count packets instead of trusting container
	// metadata. Exact, but reads the whole file once.
	CountFrames bool `json:"count_frames" yaml:"count_frames"`

	// PixelFormat is the raw output format requested from ffmpeg: "rgb24" or "bgr24"
	PixelFormat string `json:"pixel_format" yaml:"pixel_format"`

	// MaxForwardSkip is the largest gap, in frames, bridged by reading and
	// discarding instead of restarting the decoder at a new seek point
	MaxForwardSkip int `json:"max_forward_skip" yaml:"max_forward_skip"`
}

// DefaultVideoConfig returns default video decoder configuration
func DefaultVideoConfig() *VideoConfig {
	return &VideoConfig{
		FFmpegPath:     "ffmpeg",  // Assume in PATH
		FFprobePath:    "ffprobe", // Assume in PATH
		Timeout:        30 * time.Second,
		CountFrames:    false,
		PixelFormat:    "rgb24",
		MaxForwardSkip: 48,
	}
}

// ValidateConfig validates the decoder configuration without running ffmpeg
func (c *VideoConfig) ValidateConfig() error {
	if c.FFmpegPath == "" || c.FFprobePath == "" {
		return errors.New("ffmpeg and ffprobe paths must be set")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %v", c.Timeout)
	}
	if _, err := channelOrder(c.PixelFormat); err != nil {
		return err
	}
	if c.MaxForwardSkip < 0 {
		return fmt.Errorf("max forward skip must not be negative: %d", c.MaxForwardSkip)
	}
	return nil
}

func channelOrder(pixelFormat string) (frame.ChannelOrder, error) {
	switch pixelFormat {
	case "rgb24", "":
		return frame.OrderRGB, nil
	case "bgr24":
		return frame.OrderBGR, nil
	default:
		return frame.OrderRGB, fmt.Errorf("unsupported pixel format %q (want rgb24 or bgr24)", pixelFormat)
	}
}

// VideoMetadata holds detected video properties from FFprobe
type VideoMetadata struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FrameRate   float64 `json:"frame_rate"`
	TotalFrames int     `json:"total_frames"`
	Codec       string  `json:"codec"`
	PixelFormat string  `json:"pixel_format"`
	Duration    float64 `json:"duration"`
	Format      string  `json:"format"`
}

// VideoSource decodes frames of a video file with ffmpeg. It keeps a single
// ffmpeg process streaming raw frames from a seek point; reading the next
// frame continues the stream, any other index restarts it.
type VideoSource struct {
	config *VideoConfig
	path   string
	meta   *VideoMetadata
	order  frame.ChannelOrder
	ctx    context.Context
	logger logging.Logger

	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *bytes.Buffer
	cursor int
	buf    []byte

	restarts int
	closed   bool
}

// OpenVideo probes path and returns a source ready to decode. The context
// bounds every ffmpeg process started by the source.
func OpenVideo(ctx context.Context, path string, config *VideoConfig) (*VideoSource, error) {
	if config == nil {
		config = DefaultVideoConfig()
	}
	logger := logging.WithFields(logging.Fields{
		"component": "video_decoder",
		"function":  "OpenVideo",
		"filename":  path,
	})

	if err := config.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid video config: %w", err)
	}
	order, _ := channelOrder(config.PixelFormat)

	meta, err := probeVideoFile(ctx, config, path)
	if err != nil {
		logger.Error(err, "Failed to probe video file")
		return nil, err
	}

	logger.Debug("Video metadata detected", logging.Fields{
		"width":        meta.Width,
		"height":       meta.Height,
		"frame_rate":   meta.FrameRate,
		"total_frames": meta.TotalFrames,
		"codec":        meta.Codec,
		"pixel_format": meta.PixelFormat,
		"duration":     meta.Duration,
	})

	return &VideoSource{
		config: config,
		path:   path,
		meta:   meta,
		order:  order,
		ctx:    ctx,
		logger: logging.WithFields(logging.Fields{
			"component": "video_decoder",
			"filename":  path,
		}),
		buf: make([]byte, meta.Width*meta.Height*frame.Channels),
	}, nil
}

// Opener returns a frame.Opener that opens path with config
func Opener(path string, config *VideoConfig) frame.Opener {
	return func(ctx context.Context) (frame.Source, error) {
		return OpenVideo(ctx, path, config)
	}
}

// Metadata returns the probed stream properties
func (v *VideoSource) Metadata() VideoMetadata {
	return *v.meta
}

func (v *VideoSource) FrameRate() float64 { return v.meta.FrameRate }
func (v *VideoSource) TotalFrames() int   { return v.meta.TotalFrames }

func (v *VideoSource) Shape() frame.Shape {
	return frame.Shape{Height: v.meta.Height, Width: v.meta.Width}
}

// Restarts returns how many times the decoder was (re)started at a seek point
func (v *VideoSource) Restarts() int {
	return v.restarts
}

// Frame decodes the frame at index
func (v *VideoSource) Frame(index int) (*frame.RGB, error) {
	if v.closed {
		return nil, errors.New("video source is closed")
	}
	if index < 0 || index >= v.meta.TotalFrames {
		return nil, fmt.Errorf("%w: %d of %d", frame.ErrFrameOutOfRange, index, v.meta.TotalFrames)
	}

	gap := index - v.cursor
	if v.stdout == nil || gap < 0 || gap > v.config.MaxForwardSkip {
		if err := v.startStream(index); err != nil {
			return nil, err
		}
	}

	for v.cursor <= index {
		if _, err := io.ReadFull(v.stdout, v.buf); err != nil {
			// Wait for ffmpeg to exit before reading what it wrote to stderr
			failed, stderrBuf := v.cursor, v.stderr
			v.stopStream()
			stderr := strings.TrimSpace(stderrBuf.String())
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("decoder ended before frame %d: %w (stderr: %s)", failed, err, stderr)
			}
			return nil, fmt.Errorf("failed to read frame %d: %w", failed, err)
		}
		v.cursor++
	}

	return frame.FromPacked(v.Shape(), v.buf, v.order)
}

// Close stops any running ffmpeg process
func (v *VideoSource) Close() error {
	v.stopStream()
	v.closed = true
	return nil
}

// startStream launches ffmpeg positioned at index
func (v *VideoSource) startStream(index int) error {
	v.stopStream()

	args := v.buildStreamArgs(index)
	ctx, cancel := context.WithCancel(v.ctx)
	cmd := exec.CommandContext(ctx, v.config.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	v.logger.Debug("Starting ffmpeg frame stream", logging.Fields{
		"function": "startStream",
		"frame":    index,
		"args":     strings.Join(args, " "),
	})

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg start failed: %w", err)
	}

	v.cmd = cmd
	v.cancel = cancel
	v.stdout = stdout
	v.stderr = &stderr
	v.cursor = index
	v.restarts++
	return nil
}

// stopStream kills the running ffmpeg process, if any, and reaps it
func (v *VideoSource) stopStream() {
	if v.cmd == nil {
		return
	}
	v.cancel()
	// Killed processes report an error; there is nothing useful to do with it
	_ = v.cmd.Wait()

	v.cmd = nil
	v.cancel = nil
	v.stdout = nil
	v.cursor = 0
}

// buildStreamArgs builds the ffmpeg arguments for streaming raw frames from index
func (v *VideoSource) buildStreamArgs(index int) []string {
	args := []string{"-v", "error", "-nostdin"}

	if index > 0 {
		// Seek half a frame early so timestamp rounding never drops the target;
		// input seeking discards everything before the seek point
		seek := (float64(index) - 0.5) / v.meta.FrameRate
		args = append(args, "-ss", strconv.FormatFloat(seek, 'f', 6, 64))
	}

	pixFmt := v.config.PixelFormat
	if pixFmt == "" {
		pixFmt = "rgb24"
	}

	args = append(args,
		"-i", v.path,
		"-map", "0:v:0",
		"-an", "-sn",
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"pipe:1",
	)
	return args
}

// probeVideoFile uses ffprobe to get video information from a file
func probeVideoFile(ctx context.Context, config *VideoConfig, filename string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json", // JSON output
		"-show_streams", // Show stream info
		"-show_format",  // Container duration fallback
		"-select_streams", "v:0", // First video stream only
	}
	if config.CountFrames {
		args = append(args, "-count_packets")
	}
	args = append(args, filename)

	probeCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, config.FFprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract video metadata
func parseFFprobeOutput(jsonData []byte) (*VideoMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			Width         int    `json:"width"`
			Height        int    `json:"height"`
			PixFmt        string `json:"pix_fmt"`
			AvgFrameRate  string `json:"avg_frame_rate"`
			RFrameRate    string `json:"r_frame_rate"`
			NbFrames      string `json:"nb_frames"`
			NbReadPackets string `json:"nb_read_packets"`
			Duration      string `json:"duration"`
		} `json:"streams"`
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no video streams found")
	}

	stream := probe.Streams[0]

	if stream.CodecType != "video" {
		return nil, fmt.Errorf("stream is not video type: %s", stream.CodecType)
	}

	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size: %dx%d", stream.Width, stream.Height)
	}

	// avg_frame_rate is 0/0 for some containers; r_frame_rate is the fallback
	fps, err := parseRate(stream.AvgFrameRate)
	if err != nil {
		fps, err = parseRate(stream.RFrameRate)
		if err != nil {
			return nil, fmt.Errorf("no usable frame rate (avg %q, r %q)", stream.AvgFrameRate, stream.RFrameRate)
		}
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil || duration <= 0 {
		duration, err = strconv.ParseFloat(probe.Format.Duration, 64)
		if err != nil {
			duration = 0
		}
	}

	total := 0
	for _, s := range []string{stream.NbReadPackets, stream.NbFrames} {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			total = n
			break
		}
	}
	if total == 0 && duration > 0 {
		total = int(math.Round(duration * fps))
	}
	if total <= 0 {
		return nil, fmt.Errorf("could not determine frame count")
	}

	return &VideoMetadata{
		Width:       stream.Width,
		Height:      stream.Height,
		FrameRate:   fps,
		TotalFrames: total,
		Codec:       stream.CodecName,
		PixelFormat: stream.PixFmt,
		Duration:    duration,
		Format:      probe.Format.FormatName,
	}, nil
}

// parseRate parses an ffprobe rational such as "30000/1001" or a plain number
func parseRate(s string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	d := 1.0
	if found {
		d, err = strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid rate %q: %w", s, err)
		}
	}
	if d == 0 || n <= 0 {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	return n / d, nil
}

// CheckAvailability checks if ffmpeg and ffprobe can be executed
func CheckAvailability(config *VideoConfig) error {
	if config == nil {
		config = DefaultVideoConfig()
	}

	cmd := exec.Command(config.FFmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", config.FFmpegPath, err)
	}

	cmd = exec.Command(config.FFprobePath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffprobe not found at %s: %w", config.FFprobePath, err)
	}

	return nil
}

// GetSupportedFormats returns common containers this decoder handles
func GetSupportedFormats() []string {
	return []string{
		"mp4", "mov", "avi", "mkv", "webm", "m4v", "mpg", "ts", "wmv",
		// FFmpeg supports many more formats
	}
}
