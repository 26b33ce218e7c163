package session

import (
	"errors"
	"fmt"
)

// State is a session lifecycle stage.
type State int

const (
	StateCreated State = iota
	StateAudioReady
	StateBrowserReady
	StateAuthenticated
	StateJoined
	StateRecording
	StateMonitoring
	StateStopping
	StateVerified
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateCreated:       "created",
	StateAudioReady:    "audio_ready",
	StateBrowserReady:  "browser_ready",
	StateAuthenticated: "authenticated",
	StateJoined:        "joined",
	StateRecording:     "recording",
	StateMonitoring:    "monitoring",
	StateStopping:      "stopping",
	StateVerified:      "verified",
	StateCompleted:     "completed",
	StateFailed:        "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState converts a stored state name back to a State.
func ParseState(name string) (State, bool) {
	for state, n := range stateNames {
		if n == name {
			return state, true
		}
	}
	return 0, false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Step identifies the work whose outcome drives a transition.
type Step int

const (
	StepConfigureAudio Step = iota
	StepLaunchBrowser
	StepAuthenticate
	StepJoin
	StepStartCapture
	StepBeginMonitoring
	StepEndMonitoring
	StepCleanup
	StepFinish
)

func (s Step) String() string {
	switch s {
	case StepConfigureAudio:
		return "configure_audio"
	case StepLaunchBrowser:
		return "launch_browser"
	case StepAuthenticate:
		return "authenticate"
	case StepJoin:
		return "join"
	case StepStartCapture:
		return "start_capture"
	case StepBeginMonitoring:
		return "begin_monitoring"
	case StepEndMonitoring:
		return "end_monitoring"
	case StepCleanup:
		return "cleanup"
	case StepFinish:
		return "finish"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Outcome is the result of running one step.
type Outcome struct {
	Step Step
	Err  error
}

// ErrIllegalTransition is returned for a step that cannot follow the state.
var ErrIllegalTransition = errors.New("illegal session transition")

// Transition returns the state that follows from running step out.Step in
// state from. It is total: unknown pairs yield StateFailed and
// ErrIllegalTransition.
//
// Failures before the browser exists end the session at once. Failures after
// it exists go to Stopping so cleanup still runs. Monitoring, Stopping and
// Verified ignore step errors: they always move forward.
func Transition(from State, out Outcome) (State, error) {
	ok := out.Err == nil
	switch {
	case from == StateCreated && out.Step == StepConfigureAudio:
		return pick(ok, StateAudioReady, StateFailed), nil
	case from == StateAudioReady && out.Step == StepLaunchBrowser:
		return pick(ok, StateBrowserReady, StateFailed), nil
	case from == StateBrowserReady && out.Step == StepAuthenticate:
		return pick(ok, StateAuthenticated, StateStopping), nil
	case (from == StateBrowserReady || from == StateAuthenticated) && out.Step == StepJoin:
		return pick(ok, StateJoined, StateStopping), nil
	case from == StateJoined && out.Step == StepStartCapture:
		return pick(ok, StateRecording, StateStopping), nil
	case from == StateRecording && out.Step == StepBeginMonitoring:
		return StateMonitoring, nil
	case from == StateMonitoring && out.Step == StepEndMonitoring:
		return StateStopping, nil
	case from == StateStopping && out.Step == StepCleanup:
		return StateVerified, nil
	case from == StateVerified && out.Step == StepFinish:
		return pick(ok, StateCompleted, StateFailed), nil
	default:
		return StateFailed, fmt.Errorf("%w: %s after %s", ErrIllegalTransition, out.Step, from)
	}
}

func pick(ok bool, success, failure State) State {
	if ok {
		return success
	}
	return failure
}
