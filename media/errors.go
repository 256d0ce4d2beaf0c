package media

import (
	"fmt"
	"strings"
)

// TranscodeError reports a failed ffmpeg invocation. It carries everything
// needed to diagnose the failure without re-running the command.
type TranscodeError struct {
	Bin      string
	Args     []string
	ExitCode int // -1 when the process could not be started
	Stdout   string
	Stderr   string
	Timeout  bool
}

func (e *TranscodeError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("transcode timed out: %s", e.Command())
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit %d", e.ExitCode)
	}
	return fmt.Sprintf("transcode failed (exit %d): %s", e.ExitCode, lastLine(msg))
}

// Command returns the invoked command line for logging and audit payloads.
func (e *TranscodeError) Command() string {
	return e.Bin + " " + strings.Join(e.Args, " ")
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// ProbeError reports a failed ffprobe invocation. Callers treat it as
// non-fatal and proceed with an empty metadata snapshot.
type ProbeError struct {
	Bin string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe failed: %v", e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
