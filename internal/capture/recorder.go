package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"meetcap/internal/config"
	"meetcap/internal/logging"
	"meetcap/internal/services"
)

// FlagFileName marks a capture in progress. It lives next to the output file.
const FlagFileName = "recording_active.flag"

const (
	defaultQuitTimeout      = 30 * time.Second
	defaultTerminateTimeout = 10 * time.Second
	defaultVerifyTimeout    = 15 * time.Minute
)

// Tier identifies which escalation step ended the capture.
type Tier string

const (
	TierNone      Tier = "none"
	TierGraceful  Tier = "graceful"
	TierTerminate Tier = "terminate"
	TierKill      Tier = "kill"
)

// Artifact is the output of one capture.
type Artifact struct {
	OutputPath string
	LogPath    string
	FlagPath   string
	Verified   bool
}

// StopResult describes how a capture was stopped.
type StopResult struct {
	Tier    Tier
	Elapsed time.Duration
	// Exited is false when the process had not been reaped by the time the
	// stop budget ran out. The flag file is then removed in the background.
	Exited bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRunner injects the process runner (primarily for tests).
func WithRunner(runner Runner) Option {
	return func(r *Recorder) {
		if runner != nil {
			r.runner = runner
		}
	}
}

// WithSweeper overrides the orphan sweeper. A nil sweeper disables sweeping.
func WithSweeper(sweeper Sweeper) Option {
	return func(r *Recorder) {
		r.sweeper = sweeper
	}
}

// WithClock injects the clock used for stop timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Recorder) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the recorder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "capture")
		}
	}
}

// WithLogPath sets where ffmpeg output goes. The default is the output path
// with ".ffmpeg.log" appended.
func WithLogPath(path string) Option {
	return func(r *Recorder) {
		r.logPath = path
	}
}

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(r *Recorder) {
		if strings.TrimSpace(binary) != "" {
			r.binary = binary
		}
	}
}

// WithTimeouts overrides the graceful and terminate waits.
func WithTimeouts(quit, terminate time.Duration) Option {
	return func(r *Recorder) {
		if quit > 0 {
			r.quitTimeout = quit
		}
		if terminate > 0 {
			r.terminateTimeout = terminate
		}
	}
}

// WithVerifyTimeout bounds the decode check run by Verify.
func WithVerifyTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.verifyTimeout = d
		}
	}
}

// Recorder drives one ffmpeg capture. A Recorder is single-use.
type Recorder struct {
	runner  Runner
	sweeper Sweeper
	clock   clockwork.Clock
	logger  *slog.Logger

	binary      string
	display     string
	videoSize   string
	framerate   int
	audioSource string
	audioFilter string
	logPath     string

	quitTimeout      time.Duration
	terminateTimeout time.Duration
	verifyTimeout    time.Duration

	mu       sync.Mutex
	handle   Handle
	artifact *Artifact
	stopped  bool
	result   StopResult
	reaped   chan struct{}
}

// NewRecorder builds a recorder from capture configuration.
func NewRecorder(cfg *config.Config, opts ...Option) *Recorder {
	r := &Recorder{
		runner:           NewExecRunner(),
		sweeper:          NewProcessSweeper(),
		clock:            clockwork.NewRealClock(),
		logger:           logging.NewComponentLogger(logging.NewNop(), "capture"),
		binary:           "ffmpeg",
		display:          ":99",
		videoSize:        "1920x1080",
		framerate:        30,
		audioSource:      "MeetingOutput.monitor",
		quitTimeout:      defaultQuitTimeout,
		terminateTimeout: defaultTerminateTimeout,
		verifyTimeout:    defaultVerifyTimeout,
		reaped:           make(chan struct{}),
	}
	if cfg != nil {
		r.binary = cfg.FFmpegBinary()
		r.display = cfg.Capture.Display
		r.videoSize = cfg.Capture.VideoSize
		r.framerate = cfg.Capture.Framerate
		r.audioSource = cfg.Capture.AudioSource
		r.audioFilter = cfg.Capture.AudioFilter
		if cfg.Capture.QuitTimeout > 0 {
			r.quitTimeout = time.Duration(cfg.Capture.QuitTimeout) * time.Second
		}
		if cfg.Capture.TerminateTimeout > 0 {
			r.terminateTimeout = time.Duration(cfg.Capture.TerminateTimeout) * time.Second
		}
		if cfg.Capture.VerifyTimeout > 0 {
			r.verifyTimeout = time.Duration(cfg.Capture.VerifyTimeout) * time.Second
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StopBudget is the longest Stop can take.
func (r *Recorder) StopBudget() time.Duration {
	return r.quitTimeout + r.terminateTimeout
}

// Args returns the ffmpeg arguments for outputPath.
func (r *Recorder) Args(outputPath string) []string {
	args := []string{
		"-y",
		"-video_size", r.videoSize,
		"-framerate", strconv.Itoa(r.framerate),
		"-f", "x11grab", "-i", r.display,
		"-f", "pulse", "-i", r.audioSource,
	}
	if strings.TrimSpace(r.audioFilter) != "" {
		args = append(args, "-af", r.audioFilter)
	}
	return append(args,
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-f", "mp4",
		outputPath,
	)
}

// Start launches ffmpeg writing to outputPath and drops the liveness flag.
func (r *Recorder) Start(ctx context.Context, outputPath string) (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil || r.stopped {
		return nil, services.Wrap(services.ErrCaptureStart, "capture", "start", "recorder already used", nil)
	}
	logger := logging.WithContext(ctx, r.logger)

	logPath := r.logPath
	if logPath == "" {
		logPath = outputPath + ".ffmpeg.log"
	}
	for _, dir := range []string{filepath.Dir(outputPath), filepath.Dir(logPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, services.Wrap(services.ErrCaptureStart, "capture", "prepare directories", dir, err)
		}
	}

	if r.sweeper != nil {
		killed, err := r.sweeper.Sweep(ctx, r.binary, outputPath)
		if err != nil {
			logger.Debug("orphan sweep failed", logging.Error(err))
		} else if killed > 0 {
			logging.WarnWithContext(logger, "killed orphaned capture processes", "capture_orphans",
				logging.Int("count", killed),
				logging.String("output", outputPath),
				logging.String(logging.FieldImpact, "a previous capture of this meeting was abandoned"),
			)
		}
	}

	handle, err := r.runner.Start(ctx, Command{Binary: r.binary, Args: r.Args(outputPath), LogPath: logPath})
	if err != nil {
		return nil, services.Wrap(services.ErrCaptureStart, "capture", "start ffmpeg", "", err)
	}
	select {
	case <-handle.Done():
		return nil, services.Wrap(services.ErrCaptureStart, "capture", "start ffmpeg", "process exited immediately; see "+logPath, handle.Err())
	default:
	}

	flagPath := filepath.Join(filepath.Dir(outputPath), FlagFileName)
	flag := fmt.Sprintf("pid=%d\nstarted=%s\noutput=%s\n", handle.PID(), r.clock.Now().UTC().Format(time.RFC3339), outputPath)
	if err := os.WriteFile(flagPath, []byte(flag), 0o644); err != nil {
		logging.WarnWithContext(logger, "write capture flag failed", "capture_flag",
			logging.String("path", flagPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "external observers will not see this capture as active"),
		)
	}

	r.handle = handle
	r.artifact = &Artifact{OutputPath: outputPath, LogPath: logPath, FlagPath: flagPath}
	logger.Info("capture started",
		logging.String(logging.FieldEventType, "capture_started"),
		logging.Int("pid", handle.PID()),
		logging.String("output", outputPath),
	)
	artifact := *r.artifact
	return &artifact, nil
}

// Stop ends the capture, escalating from quit to terminate to kill. It
// returns within StopBudget and ignores ctx cancellation so that an
// interrupted session still finishes its container. Stop without a prior
// Start is a no-op; repeated calls return the first result.
func (r *Recorder) Stop(ctx context.Context) (StopResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		return StopResult{Tier: TierNone, Exited: true}, nil
	}
	if r.stopped {
		return r.result, nil
	}
	r.stopped = true
	logger := logging.WithContext(ctx, r.logger)
	h := r.handle
	started := r.clock.Now()

	result := StopResult{Tier: TierGraceful}
	if err := h.Signal(SignalQuit); err != nil {
		logger.Debug("quit signal failed", logging.Error(err))
	}
	exited := r.waitExit(h, r.quitTimeout)

	if !exited {
		result.Tier = TierTerminate
		logging.WarnWithContext(logger, "capture ignored quit; sending SIGTERM", "capture_stop",
			logging.Duration("waited", r.quitTimeout),
			logging.String(logging.FieldImpact, "recording tail may be lost"),
		)
		if err := h.Signal(SignalTerminate); err != nil {
			logger.Debug("terminate signal failed", logging.Error(err))
		}
		exited = r.waitExit(h, r.terminateTimeout)
	}

	var stopErr error
	if !exited {
		result.Tier = TierKill
		if err := h.Signal(SignalKill); err != nil {
			stopErr = services.Wrap(services.ErrCaptureStopTimeout, "capture", "kill", "", err)
		}
		remaining := r.StopBudget() - r.clock.Since(started)
		exited = r.waitExit(h, remaining)
		logging.WarnWithContext(logger, "capture force-killed", "capture_stop",
			logging.String(logging.FieldErrorHint, "inspect the capture log; the container may be truncated"),
			logging.String(logging.FieldImpact, "recording may be unreadable"),
			logging.Bool("reaped", exited),
		)
	}

	result.Exited = exited
	result.Elapsed = r.clock.Since(started)
	if exited {
		r.finish(logger, h)
	} else {
		go func() {
			<-h.Done()
			r.finish(logger, h)
		}()
	}
	r.result = result

	logger.Info("capture stopped",
		logging.String(logging.FieldEventType, "capture_stopped"),
		logging.String("tier", string(result.Tier)),
		logging.Duration("elapsed", result.Elapsed),
		logging.Bool("exited", result.Exited),
	)
	return result, stopErr
}

// Reaped is closed once the stopped process has exited and the flag file is
// gone.
func (r *Recorder) Reaped() <-chan struct{} {
	return r.reaped
}

// Artifact returns a copy of the current artifact, or nil before Start.
func (r *Recorder) Artifact() *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.artifact == nil {
		return nil
	}
	artifact := *r.artifact
	return &artifact
}

// Verify runs a null decode over path. It reports true only when the file
// exists and the decoder exits cleanly with nothing on stderr.
func (r *Recorder) Verify(ctx context.Context, path string) bool {
	logger := logging.WithContext(ctx, r.logger)
	ok := r.verify(ctx, logger, path)

	r.mu.Lock()
	if r.artifact != nil && r.artifact.OutputPath == path {
		r.artifact.Verified = ok
	}
	r.mu.Unlock()
	return ok
}

func (r *Recorder) verify(ctx context.Context, logger *slog.Logger, path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		logging.WarnWithContext(logger, "capture output missing", "capture_verify",
			logging.String("path", path),
			logging.String(logging.FieldImpact, "no recording to process"),
		)
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, r.verifyTimeout)
	defer cancel()
	stderr, err := r.runner.Check(checkCtx, r.binary, []string{"-v", "error", "-i", path, "-f", "null", "-"})
	stderr = bytes.TrimSpace(stderr)
	detail := firstLine(stderr)
	if errors.Is(checkCtx.Err(), context.DeadlineExceeded) {
		detail = fmt.Sprintf("decoder did not finish within %s", r.verifyTimeout)
		err = checkCtx.Err()
	}
	if err != nil || len(stderr) > 0 {
		verr := services.Wrap(services.ErrVerification, "capture", "decode check", detail, err)
		logging.WarnWithContext(logger, "capture failed verification", "capture_verify",
			logging.String("path", path),
			logging.Error(verr),
			logging.String(logging.FieldImpact, "recording may be partially unreadable"),
		)
		return false
	}
	logger.Info("capture verified",
		logging.String(logging.FieldEventType, "capture_verified"),
		logging.String("path", path),
		logging.Int64("bytes", info.Size()),
	)
	return true
}

func (r *Recorder) waitExit(h Handle, d time.Duration) bool {
	select {
	case <-h.Done():
		return true
	default:
	}
	if d <= 0 {
		return false
	}
	timer := r.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-h.Done():
		return true
	case <-timer.Chan():
		return false
	}
}

func (r *Recorder) finish(logger *slog.Logger, h Handle) {
	if r.artifact != nil {
		if err := os.Remove(r.artifact.FlagPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("remove capture flag failed", logging.Error(err))
		}
	}
	if err := h.Err(); err != nil {
		logger.Debug("capture exit status", logging.Error(err))
	}
	close(r.reaped)
}

func firstLine(b []byte) string {
	line, _, _ := bytes.Cut(b, []byte("\n"))
	return string(line)
}
