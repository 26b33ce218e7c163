package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"meetcap/internal/config"
	"meetcap/internal/feed"
	"meetcap/internal/fileutil"
	"meetcap/internal/logging"
	"meetcap/internal/services"
	"meetcap/internal/session"
	"meetcap/internal/textutil"
)

// Transcript file names under the session's transcripts directory.
const (
	RawTranscriptFile      = "raw_transcript.txt"
	AdjustedTranscriptFile = "adjusted_transcript.txt"
	MinutesFile            = "meeting_minutes_and_tasks.txt"
)

// Transcriber converts an audio file to text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Completer answers a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Reporter delivers the finished texts to the meeting server.
type Reporter interface {
	SendReport(ctx context.Context, report feed.Report) error
}

// Archiver copies finished artifacts to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, meetingID string, files []string) error
}

// Executor runs external commands.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// Result describes one pipeline run.
type Result struct {
	AudioPath          string
	RawTranscript      string
	AdjustedTranscript string
	MinutesAndTasks    string
	Files              []string
	Reported           bool
	Archived           bool
}

// Pipeline runs post-capture processing for finished sessions.
type Pipeline struct {
	ffmpeg      string
	exec        Executor
	transcriber Transcriber
	completer   Completer
	reporter    Reporter
	archiver    Archiver
	clock       clockwork.Clock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExecutor overrides how ffmpeg is run.
func WithExecutor(e Executor) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.exec = e
		}
	}
}

// WithTranscriber overrides the configured transcription backend.
func WithTranscriber(t Transcriber) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.transcriber = t
		}
	}
}

// WithCompleter overrides the LLM client.
func WithCompleter(c Completer) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.completer = c
		}
	}
}

// WithReporter sets where results are reported. A nil reporter disables
// reporting.
func WithReporter(r Reporter) Option {
	return func(p *Pipeline) {
		p.reporter = r
	}
}

// WithArchiver enables archiving of the recording and transcripts.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) {
		p.archiver = a
	}
}

// WithClock overrides the clock used for stage timings.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPipeline builds a pipeline from configuration. Results are reported to
// feed.server_api when processing.report_results is set.
func NewPipeline(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		ffmpeg:      "ffmpeg",
		exec:        commandExecutor{},
		transcriber: NewTranscriber(cfg),
		completer:   NewCompleter(cfg),
		clock:       clockwork.NewRealClock(),
	}
	if cfg != nil {
		p.ffmpeg = cfg.FFmpegBinary()
		if cfg.Processing.ReportResults && strings.TrimSpace(cfg.Feed.ServerAPI) != "" {
			p.reporter = feed.NewClient(cfg.Feed.ServerAPI,
				feed.WithTimeout(time.Duration(cfg.Feed.RequestTimeout)*time.Second))
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process satisfies the workflow post-processor contract.
func (p *Pipeline) Process(ctx context.Context, rec session.Record, logger *slog.Logger) error {
	_, err := p.Run(ctx, rec, logger)
	return err
}

// Run processes the recording of rec and returns what was produced.
func (p *Pipeline) Run(ctx context.Context, rec session.Record, logger *slog.Logger) (Result, error) {
	var result Result
	if logger == nil {
		logger = logging.NewNop()
	}
	desc := rec.Descriptor
	ctx = services.WithMeetingID(ctx, desc.MeetingID)
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "processing"))

	if rec.Artifact == nil {
		return result, services.Wrap(services.ErrValidation, "processing", "start", "session produced no recording", nil)
	}
	video := rec.Artifact.OutputPath
	if info, err := os.Stat(video); err != nil || info.Size() == 0 {
		return result, services.Wrap(services.ErrNotFound, "processing", "start", "recording missing or empty: "+video, err)
	}
	layout := rec.Layout
	if layout.Root == "" {
		layout = session.NewLayout(desc.StorageRoot, desc.MeetingID)
	}

	started := p.clock.Now()
	logger.Info("post-processing started",
		logging.String(logging.FieldEventType, "processing_started"),
		logging.String("video", video),
		logging.String("backend", p.transcriber.Name()),
	)

	result.AudioPath = layout.AudioPath()
	if err := p.stage(ctx, logger, "extract_audio", func(ctx context.Context) error {
		return p.extractAudio(ctx, video, result.AudioPath)
	}); err != nil {
		return result, err
	}

	if err := p.stage(ctx, logger, "transcribe", func(ctx context.Context) error {
		text, err := p.transcriber.Transcribe(ctx, result.AudioPath)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return services.Wrap(services.ErrExternalTool, "processing", "transcribe", "empty transcript", nil)
		}
		result.RawTranscript = text
		return nil
	}); err != nil {
		return result, err
	}

	ascii := textutil.StripNonASCII(result.RawTranscript)
	if err := p.stage(ctx, logger, "cleanup_transcript", func(ctx context.Context) error {
		text, err := p.completer.Complete(ctx, CleanupPrompt, ascii)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "processing", "cleanup transcript", "", err)
		}
		result.AdjustedTranscript = text
		return nil
	}); err != nil {
		return result, err
	}

	if err := p.stage(ctx, logger, "minutes", func(ctx context.Context) error {
		text, err := p.completer.Complete(ctx, MinutesSystemPrompt, MinutesPrompt(result.AdjustedTranscript))
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "processing", "minutes", "", err)
		}
		result.MinutesAndTasks = text
		return nil
	}); err != nil {
		return result, err
	}

	if err := p.stage(ctx, logger, "write_transcripts", func(context.Context) error {
		files, err := writeTranscripts(layout.Transcripts, result)
		result.Files = files
		return err
	}); err != nil {
		return result, err
	}

	if p.reporter != nil {
		if err := p.stage(ctx, logger, "report", func(ctx context.Context) error {
			return p.reporter.SendReport(ctx, feed.Report{
				Username:           desc.Username,
				TaskID:             desc.TaskID,
				RawTranscript:      result.RawTranscript,
				AdjustedTranscript: result.AdjustedTranscript,
				MinutesAndTasks:    result.MinutesAndTasks,
			})
		}); err != nil {
			return result, err
		}
		result.Reported = true
	}

	if p.archiver != nil {
		files := append([]string{video, result.AudioPath}, result.Files...)
		if err := p.stage(ctx, logger, "archive", func(ctx context.Context) error {
			return p.archiver.Archive(ctx, desc.MeetingID, files)
		}); err != nil {
			return result, err
		}
		result.Archived = true
	}

	logger.Info("post-processing completed",
		logging.String(logging.FieldEventType, "processing_completed"),
		logging.Duration("duration", p.clock.Since(started)),
		logging.Int("raw_chars", len(result.RawTranscript)),
		logging.Bool("reported", result.Reported),
		logging.Bool("archived", result.Archived),
	)
	return result, nil
}

func (p *Pipeline) stage(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := p.clock.Now()
	logger.Debug("processing stage started", logging.String("stage", name))
	if err := fn(ctx); err != nil {
		logging.ErrorWithContext(logger, "processing stage failed", "processing_stage_failed",
			logging.String("stage", name),
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, stageHint(name)),
		)
		return err
	}
	logger.Info("processing stage completed",
		logging.String(logging.FieldEventType, "processing_stage"),
		logging.String("stage", name),
		logging.Duration("duration", p.clock.Since(started)),
	)
	return nil
}

func stageHint(stage string) string {
	switch stage {
	case "extract_audio":
		return "check that the recording plays and ffmpeg is installed"
	case "transcribe":
		return "check transcription.backend credentials and connectivity"
	case "cleanup_transcript", "minutes":
		return "check llm.api_key, llm.model and llm.base_url"
	case "report":
		return "check feed.server_api; transcripts are on disk"
	case "archive":
		return "check the archive section; local copies are kept"
	default:
		return "see process.log in the session directory"
	}
}

// extractAudio writes the audio track of video to dest as mp3.
func (p *Pipeline) extractAudio(ctx context.Context, video, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}
	args := []string{"-y", "-i", video, "-q:a", "0", "-map", "a", dest}
	out, err := p.exec.Run(ctx, p.ffmpeg, args)
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if len(detail) > 400 {
			detail = detail[len(detail)-400:]
		}
		return services.Wrap(services.ErrExternalTool, "processing", "extract audio", detail, err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "processing", "extract audio", "no audio written", err)
	}
	return nil
}

func writeTranscripts(dir string, result Result) ([]string, error) {
	outputs := []struct {
		name string
		text string
	}{
		{MinutesFile, result.MinutesAndTasks},
		{AdjustedTranscriptFile, result.AdjustedTranscript},
		{RawTranscriptFile, result.RawTranscript},
	}
	var written []string
	for _, out := range outputs {
		path := filepath.Join(dir, out.name)
		if err := fileutil.WriteFileAtomic(path, []byte(out.text), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", out.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.Canceled) {
		return buf.Bytes(), ctx.Err()
	}
	return buf.Bytes(), err
}
