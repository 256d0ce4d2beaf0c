package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRunner records every invocation and delegates behavior to onRun.
type fakeRunner struct {
	calls [][]string
	onRun func(call int, bin string, args []string) ([]byte, []byte, error)
}

func (f *fakeRunner) Run(ctx context.Context, bin string, args []string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{bin}, args...))
	if f.onRun == nil {
		return nil, nil, nil
	}
	return f.onRun(len(f.calls), bin, args)
}

func writeOutput(t *testing.T, args []string) {
	t.Helper()
	out := args[len(args)-1]
	require.NoError(t, os.WriteFile(out, []byte("frames"), 0o644))
}

func scratchInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("input"), 0o644))
	return path
}

func newTestEngine(t *testing.T, runner CommandRunner, timeout time.Duration) *Engine {
	t.Helper()
	tools := ToolPaths{FFmpeg: "ffmpeg", FFprobe: "ffprobe"}
	return NewEngineWithRunner(tools, timeout, runner, zaptest.NewLogger(t))
}

func TestDetectContainer(t *testing.T) {
	cases := map[string]Container{
		"clip.mp4":       ContainerMP4,
		"clip.MOV":       ContainerMOV,
		"clip.webm":      ContainerWebM,
		"clip.mkv":       ContainerMP4,
		"no-extension":   ContainerMP4,
		"/tmp/a/b.WebM":  ContainerWebM,
		"archive.tar.gz": ContainerMP4,
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectContainer(path), path)
	}
}

func TestRewrite_CopyFastPath(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(_ int, _ string, args []string) ([]byte, []byte, error) {
			writeOutput(t, args)
			return nil, nil, nil
		},
	}
	engine := newTestEngine(t, runner, 0)

	input := scratchInput(t, "clip.mp4")
	out, err := engine.Rewrite(context.Background(), input, RewriteOptions{
		Overrides: Overrides{Title: "t", Comment: "job_id=j1", CreationTime: "2026-09-01T00:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(input), "clip_processed.mp4"), out)

	require.Len(t, runner.calls, 1, "healthy copy must not trigger a transcode")
	joined := strings.Join(runner.calls[0], " ")
	assert.Contains(t, joined, "-c copy")
	assert.Contains(t, joined, "-map_metadata -1")
	assert.Contains(t, joined, "title=t")
	assert.Contains(t, joined, "comment=job_id=j1")
	assert.Contains(t, joined, "creation_time=2026-09-01T00:00:00Z")
	assert.Contains(t, joined, "use_metadata_tags+faststart")
}

func TestRewrite_WebMOmitsMovflags(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(_ int, _ string, args []string) ([]byte, []byte, error) {
			writeOutput(t, args)
			return nil, nil, nil
		},
	}
	engine := newTestEngine(t, runner, 0)

	input := scratchInput(t, "clip.webm")
	out, err := engine.Rewrite(context.Background(), input, RewriteOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "clip_processed.webm"))

	joined := strings.Join(runner.calls[0], " ")
	assert.NotContains(t, joined, "movflags")
}

func TestRewrite_FallbackOnEmptyCopy(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(call int, _ string, args []string) ([]byte, []byte, error) {
			if call == 1 {
				// Copy "succeeds" but writes a zero-byte file.
				out := args[len(args)-1]
				require.NoError(t, os.WriteFile(out, nil, 0o644))
				return nil, nil, nil
			}
			writeOutput(t, args)
			return nil, nil, nil
		},
	}
	engine := newTestEngine(t, runner, 0)

	input := scratchInput(t, "clip.mp4")
	_, err := engine.Rewrite(context.Background(), input, RewriteOptions{})
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	joined := strings.Join(runner.calls[1], " ")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-pix_fmt yuv420p")
}

func TestRewrite_FallbackOnCopyError(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(call int, _ string, args []string) ([]byte, []byte, error) {
			if call == 1 {
				return nil, []byte("codec not supported for stream copy"), errors.New("exit status 1")
			}
			writeOutput(t, args)
			return nil, nil, nil
		},
	}
	engine := newTestEngine(t, runner, 0)

	input := scratchInput(t, "clip.mov")
	out, err := engine.Rewrite(context.Background(), input, RewriteOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "clip_processed.mov"))
	require.Len(t, runner.calls, 2)
}

func TestRewrite_BothPassesFail(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(_ int, _ string, _ []string) ([]byte, []byte, error) {
			return nil, []byte("moov atom not found"), errors.New("exit status 1")
		},
	}
	engine := newTestEngine(t, runner, 0)

	input := scratchInput(t, "clip.mp4")
	_, err := engine.Rewrite(context.Background(), input, RewriteOptions{})
	require.Error(t, err)

	var terr *TranscodeError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Stderr, "moov atom")
	assert.Equal(t, -1, terr.ExitCode)
	assert.False(t, terr.Timeout)
}

func TestRewrite_MutateBuildsFilterChain(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(_ int, _ string, args []string) ([]byte, []byte, error) {
			writeOutput(t, args)
			return nil, nil, nil
		},
	}
	engine := newTestEngine(t, runner, 0)

	input := scratchInput(t, "clip.mp4")
	_, err := engine.Rewrite(context.Background(), input, RewriteOptions{Mutate: true, Seed: "abc123"})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1, "mutation path must not run a copy pass")
	joined := strings.Join(runner.calls[0], " ")
	assert.Contains(t, joined, "eq=brightness=0.005:contrast=1.01:saturation=1.01")
	assert.Contains(t, joined, "noise=alls=2:allf=t")
	assert.Contains(t, joined, "drawbox=x=w-2:y=h-2:w=1:h=1:color=white@0.02:t=fill")
	assert.Contains(t, joined, "asetrate=48000*")
	assert.Contains(t, joined, "aresample=48000")
	assert.Contains(t, joined, "-crf 18")
	assert.Contains(t, joined, "-preset veryfast")
}

func TestRewrite_MutateDeterministicArgs(t *testing.T) {
	run := func() []string {
		runner := &fakeRunner{
			onRun: func(_ int, _ string, args []string) ([]byte, []byte, error) {
				writeOutput(t, args)
				return nil, nil, nil
			},
		}
		engine := newTestEngine(t, runner, 0)
		input := scratchInput(t, "clip.mp4")
		_, err := engine.Rewrite(context.Background(), input, RewriteOptions{Mutate: true, Seed: "job-42"})
		require.NoError(t, err)
		// Drop the binary, "-y -i" and the varying paths, keep the filter
		// arguments.
		return runner.calls[0][4 : len(runner.calls[0])-1]
	}

	assert.Equal(t, run(), run(), "same seed must rebuild the identical filter chain")
}

func TestRewrite_MutateSkipsWebM(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(_ int, _ string, args []string) ([]byte, []byte, error) {
			writeOutput(t, args)
			return nil, nil, nil
		},
	}
	engine := newTestEngine(t, runner, 0)

	input := scratchInput(t, "clip.webm")
	_, err := engine.Rewrite(context.Background(), input, RewriteOptions{Mutate: true, Seed: "abc123"})
	require.NoError(t, err)

	joined := strings.Join(runner.calls[0], " ")
	assert.Contains(t, joined, "-c copy")
	assert.NotContains(t, joined, "noise=")
}

func TestRewrite_Timeout(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(_ int, _ string, _ []string) ([]byte, []byte, error) {
			return nil, nil, context.DeadlineExceeded
		},
	}
	// The engine context times out before the fake returns, so the deadline
	// check inside runFFmpeg observes an expired context.
	engine := newTestEngine(t, &timeoutRunner{inner: runner}, 5*time.Millisecond)

	input := scratchInput(t, "clip.mp4")
	_, err := engine.Rewrite(context.Background(), input, RewriteOptions{Mutate: true, Seed: "j"})
	require.Error(t, err)

	var terr *TranscodeError
	require.ErrorAs(t, err, &terr)
	assert.True(t, terr.Timeout)
}

// timeoutRunner waits out the run context before delegating, simulating a
// process killed by the wall-clock limit.
type timeoutRunner struct {
	inner *fakeRunner
}

func (r *timeoutRunner) Run(ctx context.Context, bin string, args []string) ([]byte, []byte, error) {
	<-ctx.Done()
	return r.inner.Run(ctx, bin, args)
}

func TestProbe_ParsesOutput(t *testing.T) {
	const doc = `{
		"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.480000", "size": "1048576", "bit_rate": "672000", "tags": {"title": "old title"}},
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30/1"},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2}
		]
	}`
	runner := &fakeRunner{
		onRun: func(_ int, bin string, _ []string) ([]byte, []byte, error) {
			require.Equal(t, "ffprobe", bin)
			return []byte(doc), nil, nil
		},
	}
	engine := newTestEngine(t, runner, 0)

	result, err := engine.Probe(context.Background(), "clip.mp4")
	require.NoError(t, err)

	assert.InDelta(t, 12.48, result.DurationSeconds(), 1e-9)
	video := result.VideoStream()
	require.NotNil(t, video)
	assert.Equal(t, "h264", video.CodecName)
	assert.Equal(t, 1920, video.Width)
	assert.Equal(t, "old title", result.Format.Tags["title"])
}

func TestProbe_FailureWraps(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(_ int, _ string, _ []string) ([]byte, []byte, error) {
			return nil, nil, errors.New("exit status 1")
		},
	}
	engine := newTestEngine(t, runner, 0)

	_, err := engine.Probe(context.Background(), "missing.mp4")
	var perr *ProbeError
	require.ErrorAs(t, err, &perr)
}

func TestProbe_BadJSON(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(_ int, _ string, _ []string) ([]byte, []byte, error) {
			return []byte("not json"), nil, nil
		},
	}
	engine := newTestEngine(t, runner, 0)

	_, err := engine.Probe(context.Background(), "clip.mp4")
	var perr *ProbeError
	require.ErrorAs(t, err, &perr)
}
