package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Transcoder converts and joins audio buffers.
type Transcoder interface {
	Transcode(ctx context.Context, in []byte, from, to Format, codec Codec) ([]byte, error)
	Concatenate(ctx context.Context, segments [][]byte) ([]byte, error)
}

// FFmpegConfig configures the ffmpeg-backed transcoder.
type FFmpegConfig struct {
	Runner  Runner // defaults to ExecRunner{}
	TempDir string // parent for per-call concat directories; defaults to os.TempDir()
	Logger  *slog.Logger
}

// FFmpeg streams buffers through the ffmpeg engine.
type FFmpeg struct {
	runner  Runner
	tempDir string
	logger  *slog.Logger
}

func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FFmpeg{
		runner:  cfg.Runner,
		tempDir: cfg.TempDir,
		logger:  cfg.Logger,
	}
}

// Transcode pipes in through the engine and returns the complete output.
func (f *FFmpeg) Transcode(ctx context.Context, in []byte, from, to Format, codec Codec) ([]byte, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", from.demuxer(), "-i", "pipe:0"}
	if codec != CodecDefault {
		args = append(args, "-c:a", string(codec))
	}
	args = append(args, "-f", to.demuxer(), "pipe:1")

	var out bytes.Buffer
	if err := f.runner.Run(ctx, args, bytes.NewReader(in), &out); err != nil {
		return nil, asTranscodeError("transcode", err)
	}
	if out.Len() == 0 {
		return nil, &TranscodeError{Op: "transcode", Err: errors.New("engine produced no output")}
	}

	f.logger.Debug("audio transcoded", "from", from, "to", to, "in_bytes", len(in), "out_bytes", out.Len())
	return out.Bytes(), nil
}

// Concatenate joins OGG/Opus segments in order without re-encoding. Each
// segment is written to a per-call temporary directory together with a
// concat playlist; every file is removed before returning.
func (f *FFmpeg) Concatenate(ctx context.Context, segments [][]byte) (out []byte, err error) {
	switch len(segments) {
	case 0:
		return nil, ErrNoSegments
	case 1:
		return segments[0], nil
	}

	dir, err := os.MkdirTemp(f.tempDir, "difyrelay-concat-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	var created []string
	defer func() {
		if cleanupErr := removeAll(created, dir); cleanupErr != nil {
			if err != nil {
				err = multierror.Append(err, cleanupErr)
				return
			}
			f.logger.Warn("concat cleanup incomplete", "dir", dir, "err", cleanupErr)
		}
	}()

	var playlist strings.Builder
	for i, seg := range segments {
		path := filepath.Join(dir, fmt.Sprintf("segment_%03d.ogg", i))
		created = append(created, path)
		if err := os.WriteFile(path, seg, 0o600); err != nil {
			return nil, fmt.Errorf("write segment %d: %w", i, err)
		}
		fmt.Fprintf(&playlist, "file '%s'\n", escapePlaylistPath(path))
	}

	listPath := filepath.Join(dir, "segments.txt")
	created = append(created, listPath)
	if err := os.WriteFile(listPath, []byte(playlist.String()), 0o600); err != nil {
		return nil, fmt.Errorf("write playlist: %w", err)
	}

	outPath := filepath.Join(dir, "joined.ogg")
	created = append(created, outPath)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", string(CodecCopy), outPath,
	}
	if err := f.runner.Run(ctx, args, nil, nil); err != nil {
		return nil, asTranscodeError("concat", err)
	}

	out, err = os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read joined audio: %w", err)
	}

	f.logger.Debug("audio segments joined", "segments", len(segments), "bytes", len(out))
	return out, nil
}

// ToVoiceNote converts data in the given format to OGG/Opus. OGG input is
// returned unchanged.
func ToVoiceNote(ctx context.Context, t Transcoder, data []byte, from Format) ([]byte, error) {
	switch from {
	case FormatOGG:
		return data, nil
	case FormatWAV, FormatMP3, FormatM4A, FormatWEBM, FormatAMR:
		return t.Transcode(ctx, data, from, FormatOGG, CodecOpus)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, from)
	}
}

// escapePlaylistPath quotes a path for the concat demuxer's single-quoted
// file directive.
func escapePlaylistPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// removeAll deletes the given files, then dir. Files that were never
// written are not an error.
func removeAll(files []string, dir string) error {
	var result *multierror.Error
	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func asTranscodeError(op string, err error) error {
	var te *TranscodeError
	if errors.As(err, &te) {
		return &TranscodeError{Op: op, Stderr: te.Stderr, Err: te.Err}
	}
	return &TranscodeError{Op: op, Err: err}
}
