package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"meetcap/internal/services"
)

// UVXCommand launches WhisperX from PyPI without a managed virtualenv.
const UVXCommand = "uvx"

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "large-v3"

const (
	pypiIndex = "https://pypi.org/simple"
	cudaIndex = "https://download.pytorch.org/whl/cu128"
)

// Decoding settings tuned for long multi-speaker calls.
var decodeFlags = []string{
	"--batch_size", "4",
	"--chunk_size", "15",
	"--vad_method", "silero",
	"--vad_onset", "0.08",
	"--vad_offset", "0.07",
	"--beam_size", "10",
	"--best_of", "10",
	"--temperature", "0.0",
	"--patience", "1.0",
	"--segment_resolution", "sentence",
}

// Config selects the model and device.
type Config struct {
	Model       string
	CUDAEnabled bool
	// Language is a locale such as "en-US"; only the language part is passed.
	Language string
}

// Runner executes name with args and returns combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Option configures a Transcriber.
type Option func(*Transcriber)

// WithRunner replaces process execution, for tests.
func WithRunner(r Runner) Option {
	return func(t *Transcriber) {
		if r != nil {
			t.run = r
		}
	}
}

// Transcriber runs WhisperX locally on one audio file at a time.
type Transcriber struct {
	cfg Config
	run Runner
}

// New builds a Transcriber.
func New(cfg Config, opts ...Option) *Transcriber {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	t := &Transcriber{cfg: cfg, run: runUVX}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name identifies the backend in logs.
func (t *Transcriber) Name() string { return "whisperx" }

// Model returns the WhisperX model in use.
func (t *Transcriber) Model() string { return t.cfg.Model }

// Transcribe writes WhisperX JSON output to a whisperx/ directory next to
// audioPath and returns the segment texts joined by spaces.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if strings.TrimSpace(audioPath) == "" {
		return "", services.Wrap(services.ErrValidation, "whisperx", "transcribe", "audio path required", nil)
	}
	outDir := filepath.Join(filepath.Dir(audioPath), "whisperx")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create whisperx output dir: %w", err)
	}
	if out, err := t.run(ctx, UVXCommand, t.args(audioPath, outDir)...); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrExternalTool, "whisperx", "transcribe", tail(out, 400), err)
	}
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	text, err := readSegments(filepath.Join(outDir, base+".json"))
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "whisperx", "read output", "", err)
	}
	return text, nil
}

func (t *Transcriber) args(audioPath, outDir string) []string {
	args := []string{"--index-url", pypiIndex}
	if t.cfg.CUDAEnabled {
		args = []string{"--index-url", cudaIndex, "--extra-index-url", pypiIndex}
	}
	args = append(args, "whisperx", audioPath,
		"--model", t.cfg.Model,
		"--output_dir", outDir,
		"--output_format", "json",
	)
	args = append(args, decodeFlags...)
	if lang := languageCode(t.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if t.cfg.CUDAEnabled {
		return append(args, "--device", "cuda")
	}
	return append(args, "--device", "cpu", "--compute_type", "float32")
}

func readSegments(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc struct {
		Segments []struct {
			Text string `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	parts := make([]string, 0, len(doc.Segments))
	for _, seg := range doc.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// languageCode reduces "en-US" or "pt_BR" to the two-letter code WhisperX
// accepts; anything else means auto-detect.
func languageCode(locale string) string {
	lang, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(locale)), "-")
	lang, _, _ = strings.Cut(lang, "_")
	if len(lang) != 2 {
		return ""
	}
	return lang
}

func runUVX(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	// torch >= 2.6 refuses the pickled VAD checkpoints without this.
	cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	return cmd.CombinedOutput()
}

func tail(out []byte, n int) string {
	s := strings.TrimSpace(string(out))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
