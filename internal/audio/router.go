package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"meetcap/internal/config"
	"meetcap/internal/logging"
	"meetcap/internal/services"
)

// Device names shared with the capture process and browser.
const (
	MeetingSink   = "MeetingOutput"
	MicSink       = "MicOutput"
	VirtualSource = "VirtualMic"
	MonitorSource = MeetingSink + ".monitor"
)

// Step names reported by SetupError.
const (
	StepRemoveState   = "remove-state"
	StepStartDaemon   = "start-daemon"
	StepMeetingSink   = "null-sink " + MeetingSink
	StepMicSink       = "null-sink " + MicSink
	StepVirtualSource = "virtual-source " + VirtualSource
	StepDefaultSource = "set-default-source " + MonitorSource
	StepDefaultSink   = "set-default-sink " + MeetingSink
	StepLoopback      = "loopback " + MonitorSource + " -> " + MicSink
	pulseStateDirs    = "/var/run/pulse /var/lib/pulse /root/.config/pulse"
)

// Modules unloaded during teardown, in dependency order.
var teardownModules = []string{"module-loopback", "module-virtual-source", "module-null-sink"}

// SetupError names the routing step that failed.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%v: %s: %v", services.ErrAudioSetup, e.Step, e.Err)
}

func (e *SetupError) Unwrap() []error {
	return []error{services.ErrAudioSetup, e.Err}
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// Option configures the router.
type Option func(*Router)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Router) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "audio")
		}
	}
}

// Router configures the virtual audio devices for a session.
type Router struct {
	pactl       string
	useSudo     bool
	resetDaemon bool
	latencyMs   int
	exec        Executor
	logger      *slog.Logger
}

// New constructs a Router from configuration.
func New(cfg *config.Config, opts ...Option) *Router {
	r := &Router{
		pactl:     "pactl",
		latencyMs: 1,
		exec:      commandExecutor{},
		logger:    logging.NewComponentLogger(nil, "audio"),
	}
	if cfg != nil {
		r.pactl = cfg.PactlBinary()
		r.useSudo = cfg.Audio.UseSudo
		r.resetDaemon = cfg.Audio.ResetDaemon
		r.latencyMs = cfg.Audio.LoopbackLatencyMs
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type buildStep struct {
	name string
	args []string
}

func (r *Router) buildSteps() []buildStep {
	return []buildStep{
		{StepMeetingSink, []string{"load-module", "module-null-sink", "sink_name=" + MeetingSink, "sink_properties=device.description=Virtual_Meeting_Output"}},
		{StepMicSink, []string{"load-module", "module-null-sink", "sink_name=" + MicSink, "sink_properties=device.description=Virtual_Microphone_Output"}},
		{StepVirtualSource, []string{"load-module", "module-virtual-source", "source_name=" + VirtualSource}},
		{StepDefaultSource, []string{"set-default-source", MonitorSource}},
		{StepDefaultSink, []string{"set-default-sink", MeetingSink}},
		{StepLoopback, []string{"load-module", "module-loopback", "latency_msec=" + strconv.Itoa(r.latencyMs), "source=" + MonitorSource, "sink=" + MicSink}},
	}
}

// ConfigureDevices resets any previous routing and builds the session graph.
// Running it twice in a row leaves exactly one copy of every device.
func (r *Router) ConfigureDevices(ctx context.Context) error {
	logger := logging.WithContext(ctx, r.logger)
	if r.resetDaemon {
		if err := r.restartDaemon(ctx); err != nil {
			return err
		}
	}
	r.Teardown(ctx)

	for _, step := range r.buildSteps() {
		if err := r.run(ctx, r.pactl, step.args...); err != nil {
			logging.ErrorWithContext(logger, "audio routing step failed", "audio_setup_failed",
				logging.String("step", step.name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "verify pulseaudio is running and pactl can reach it"),
			)
			return &SetupError{Step: step.name, Err: err}
		}
		logger.Debug("audio routing step complete", logging.String("step", step.name))
	}
	logger.Info("virtual audio devices configured",
		logging.String(logging.FieldEventType, "audio_ready"),
		logging.String("capture_source", MonitorSource),
	)
	return nil
}

// Teardown unloads every module the router creates. Missing modules are not an error.
func (r *Router) Teardown(ctx context.Context) {
	logger := logging.WithContext(ctx, r.logger)
	for _, module := range teardownModules {
		if err := r.run(ctx, r.pactl, "unload-module", module); err != nil {
			logger.Debug("audio module not unloaded", logging.String("module", module), logging.Error(err))
		}
	}
}

func (r *Router) restartDaemon(ctx context.Context) error {
	if err := r.run(ctx, "rm", append([]string{"-rf"}, strings.Fields(pulseStateDirs)...)...); err != nil {
		return &SetupError{Step: StepRemoveState, Err: err}
	}
	if err := r.run(ctx, "pulseaudio", "-D", "--verbose", "--exit-idle-time=-1", "--system", "--disallow-exit"); err != nil {
		return &SetupError{Step: StepStartDaemon, Err: err}
	}
	return nil
}

func (r *Router) run(ctx context.Context, binary string, args ...string) error {
	if r.useSudo {
		args = append([]string{binary}, args...)
		binary = "sudo"
	}
	out, err := r.exec.Run(ctx, binary, args)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", binary, strings.Join(args, " "), err)
	}
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return buf.Bytes(), fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
		return buf.Bytes(), err
	}
	return buf.Bytes(), nil
}
