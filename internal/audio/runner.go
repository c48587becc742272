package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes one engine invocation. stdin and stdout may be nil.
type Runner interface {
	Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error
}

// ExecRunner runs the ffmpeg binary as a subprocess.
type ExecRunner struct {
	Binary string
}

// Run starts the binary and waits for it. A non-zero exit is reported as a
// *TranscodeError carrying the tail of stderr.
func (r ExecRunner) Run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	bin := r.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &TranscodeError{Op: "run", Stderr: tail(stderr.String(), 512), Err: err}
	}
	return nil
}

// LookupBinary resolves the ffmpeg executable on PATH.
func LookupBinary(name string) (string, error) {
	if name == "" {
		name = "ffmpeg"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("looking for `%s`: %w", name, err)
	}
	return path, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
