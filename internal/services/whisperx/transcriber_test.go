package whisperx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meetcap/internal/services"
)

func TestArgs(t *testing.T) {
	cpu := strings.Join(New(Config{Language: "en-US"}).args("/m/audio.mp3", "/m/whisperx"), " ")
	for _, want := range []string{
		"--index-url " + pypiIndex + " whisperx /m/audio.mp3",
		"--model " + DefaultModel,
		"--output_dir /m/whisperx --output_format json",
		"--vad_method silero",
		"--language en",
		"--device cpu --compute_type float32",
	} {
		if !strings.Contains(cpu, want) {
			t.Fatalf("cpu args %q missing %q", cpu, want)
		}
	}

	gpu := strings.Join(New(Config{Model: "large-v3-turbo", CUDAEnabled: true}).args("a.mp3", "out"), " ")
	for _, want := range []string{"--index-url " + cudaIndex, "--extra-index-url " + pypiIndex, "--model large-v3-turbo", "--device cuda"} {
		if !strings.Contains(gpu, want) {
			t.Fatalf("gpu args %q missing %q", gpu, want)
		}
	}
	if strings.Contains(gpu, "--language") || strings.Contains(gpu, "--compute_type") {
		t.Fatalf("unexpected flags in %q", gpu)
	}
}

func TestTranscribeJoinsSegments(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "audio.mp3")
	var command string
	tr := New(Config{}, WithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		command = name
		out := filepath.Join(filepath.Dir(audio), "whisperx", "audio.json")
		return nil, os.WriteFile(out, []byte(`{"segments":[{"text":" Hello there. "},{"text":""},{"text":"Next item."}]}`), 0o644)
	}))

	text, err := tr.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if command != UVXCommand || text != "Hello there. Next item." {
		t.Fatalf("command=%q text=%q", command, text)
	}
}

func TestTranscribeFailures(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "audio.mp3")

	failing := New(Config{}, WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("CUDA out of memory"), errors.New("exit status 1")
	}))
	_, err := failing.Transcribe(context.Background(), audio)
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("expected ErrExternalTool with output, got %v", err)
	}

	silent := New(Config{}, WithRunner(func(context.Context, string, ...string) ([]byte, error) { return nil, nil }))
	if _, err := silent.Transcribe(context.Background(), audio); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("missing output should be ErrExternalTool, got %v", err)
	}

	if _, err := silent.Transcribe(context.Background(), " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty path should be ErrValidation, got %v", err)
	}
}

func TestLanguageCode(t *testing.T) {
	for in, want := range map[string]string{"en-US": "en", "de": "de", "pt_BR": "pt", "": "", "english": ""} {
		if got := languageCode(in); got != want {
			t.Fatalf("languageCode(%q) = %q, want %q", in, got, want)
		}
	}
}
