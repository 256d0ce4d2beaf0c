package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Container is the detected output container family. Unknown extensions
// follow the mp4 metadata-writing convention.
type Container string

const (
	ContainerMP4  Container = "mp4"
	ContainerMOV  Container = "mov"
	ContainerWebM Container = "webm"
)

// DetectContainer maps a file extension onto a container family.
func DetectContainer(path string) Container {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webm":
		return ContainerWebM
	case ".mov":
		return ContainerMOV
	default:
		return ContainerMP4
	}
}

// ToolPaths holds the resolved transcoder binaries. Resolved once at startup
// and injected into the engine, never re-resolved per call.
type ToolPaths struct {
	FFmpeg  string
	FFprobe string
}

// ResolveToolPaths resolves ffmpeg/ffprobe from env overrides first, then
// PATH, then falls back to the bare names.
func ResolveToolPaths() ToolPaths {
	return ToolPaths{
		FFmpeg:  resolveBinary("FFMPEG_PATH", "ffmpeg"),
		FFprobe: resolveBinary("FFPROBE_PATH", "ffprobe"),
	}
}

func resolveBinary(envKey, name string) string {
	if p := os.Getenv(envKey); p != "" {
		return p
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

// Overrides are the container metadata fields written into every output.
type Overrides struct {
	Title        string
	Comment      string
	CreationTime string
}

// RewriteOptions selects between the plain metadata rewrite and the
// worker-invoked perceptual mutation variant.
type RewriteOptions struct {
	Overrides Overrides
	Mutate    bool
	Seed      string // job id; drives the deterministic mutation parameters
}

// Transformer is the transform engine surface. The exec-backed Engine is the
// production implementation; tests substitute fakes.
type Transformer interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	Rewrite(ctx context.Context, path string, opts RewriteOptions) (string, error)
	ExtractFrame(ctx context.Context, inputPath, outputPath string) error
}

// CommandRunner abstracts process spawning so engine behavior is testable
// without ffmpeg installed.
type CommandRunner interface {
	Run(ctx context.Context, bin string, args []string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, bin string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Engine wraps the external ffmpeg/ffprobe binaries.
type Engine struct {
	tools   ToolPaths
	runner  CommandRunner
	timeout time.Duration
	logger  *zap.Logger
}

// NewEngine builds an exec-backed engine. A timeout of zero disables the
// per-invocation wall-clock limit.
func NewEngine(tools ToolPaths, timeout time.Duration, logger *zap.Logger) *Engine {
	return &Engine{tools: tools, runner: execRunner{}, timeout: timeout, logger: logger}
}

// NewEngineWithRunner is NewEngine with an injected process runner, for tests.
func NewEngineWithRunner(tools ToolPaths, timeout time.Duration, runner CommandRunner, logger *zap.Logger) *Engine {
	return &Engine{tools: tools, runner: runner, timeout: timeout, logger: logger}
}

// Probe runs ffprobe and parses its JSON document. Failures are ProbeError
// and non-fatal to callers.
func (e *Engine) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-print_format", "json",
		path,
	}
	stdout, _, err := e.runner.Run(ctx, e.tools.FFprobe, args)
	if err != nil {
		return nil, &ProbeError{Bin: e.tools.FFprobe, Err: err}
	}

	var result ProbeResult
	if err := json.Unmarshal(stdout, &result); err != nil {
		return nil, &ProbeError{Bin: e.tools.FFprobe, Err: fmt.Errorf("parse output: %w", err)}
	}
	result.RawJSON = string(stdout)
	return &result, nil
}

// Rewrite produces a sibling output file with all pre-existing container
// metadata stripped and the three overrides written.
//
// Plain mode tries a stream copy first and falls back to a full transcode
// when the copy produces no usable output. Mutate mode re-encodes mp4/mov
// with the deterministic perceptual filter chain; webm is treated as
// copy-only and gets the metadata rewrite alone.
func (e *Engine) Rewrite(ctx context.Context, path string, opts RewriteOptions) (string, error) {
	container := DetectContainer(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".mp4"
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outputPath := filepath.Join(filepath.Dir(path), base+"_processed"+ext)

	if opts.Mutate && container != ContainerWebM {
		params := DeriveMutation(opts.Seed)
		if err := e.runFFmpeg(ctx, mutateArgs(path, outputPath, opts.Overrides, params)); err != nil {
			return "", err
		}
		return outputPath, nil
	}

	copyErr := e.runFFmpeg(ctx, copyArgs(path, outputPath, opts.Overrides, container))
	if copyErr == nil {
		if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
			return outputPath, nil
		}
		e.logger.Warn("stream copy produced empty output, transcoding", zap.String("input", path))
	} else {
		e.logger.Warn("stream copy failed, transcoding", zap.String("input", path), zap.Error(copyErr))
	}

	if err := e.runFFmpeg(ctx, transcodeArgs(path, outputPath, opts.Overrides, container)); err != nil {
		return "", err
	}
	return outputPath, nil
}

// ExtractFrame exports a single poster frame, used as thumbnail source.
func (e *Engine) ExtractFrame(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-y", "-i", inputPath,
		"-ss", "00:00:01",
		"-vframes", "1",
		"-f", "image2",
		outputPath,
	}
	return e.runFFmpeg(ctx, args)
}

func (e *Engine) runFFmpeg(ctx context.Context, args []string) error {
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	stdout, stderr, err := e.runner.Run(runCtx, e.tools.FFmpeg, args)
	if err == nil {
		return nil
	}

	terr := &TranscodeError{
		Bin:      e.tools.FFmpeg,
		Args:     args,
		ExitCode: -1,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		terr.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		terr.Timeout = true
	}
	return terr
}

func metadataArgs(overrides Overrides) []string {
	return []string{
		"-map_metadata", "-1",
		"-metadata", "title=" + overrides.Title,
		"-metadata", "comment=" + overrides.Comment,
		"-metadata", "creation_time=" + overrides.CreationTime,
	}
}

func copyArgs(inputPath, outputPath string, overrides Overrides, container Container) []string {
	args := []string{"-y", "-i", inputPath, "-map", "0", "-c", "copy"}
	args = append(args, metadataArgs(overrides)...)
	if container != ContainerWebM {
		args = append(args, "-movflags", "use_metadata_tags+faststart")
	}
	return append(args, outputPath)
}

func transcodeArgs(inputPath, outputPath string, overrides Overrides, container Container) []string {
	args := []string{"-y", "-i", inputPath}
	args = append(args, metadataArgs(overrides)...)
	if container != ContainerWebM {
		args = append(args, "-movflags", "use_metadata_tags+faststart")
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		"-c:a", "aac",
	)
	return append(args, outputPath)
}

func mutateArgs(inputPath, outputPath string, overrides Overrides, params MutationParams) []string {
	vf := fmt.Sprintf(
		"scale=trunc(iw/2)*2:trunc(ih/2)*2,"+
			"eq=brightness=%.3f:contrast=%.2f:saturation=%.2f,"+
			"noise=alls=%d:allf=t,"+
			"drawbox=x=w-2:y=h-2:w=1:h=1:color=white@0.02:t=fill:enable='between(t,%.3f,%.3f)'",
		params.Brightness, params.Contrast, params.Saturation,
		params.NoiseLevel, params.OverlayFrom, params.OverlayTo,
	)
	// Paired asetrate/atempo keeps output duration equal to input duration.
	pitch := 1 + params.PitchDelta
	af := fmt.Sprintf("asetrate=48000*%.5f,atempo=%.5f,aresample=48000", pitch, 1/pitch)

	args := []string{"-y", "-i", inputPath}
	args = append(args, metadataArgs(overrides)...)
	args = append(args,
		"-movflags", "use_metadata_tags+faststart",
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264", "-crf", "18", "-preset", "veryfast",
		"-vf", vf,
		"-c:a", "aac", "-ar", "48000", "-af", af,
	)
	return append(args, outputPath)
}

var _ Transformer = (*Engine)(nil)
