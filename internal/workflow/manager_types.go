package workflow

import (
	"context"
	"log/slog"
	"time"

	"meetcap/internal/ledger"
	"meetcap/internal/session"
)

// Factory builds the collaborators for one session. Each call must return
// fresh instances; nothing is shared between sessions.
type Factory interface {
	Build(desc session.Descriptor, layout session.Layout, logger *slog.Logger) (session.Deps, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(desc session.Descriptor, layout session.Layout, logger *slog.Logger) (session.Deps, error)

// Build calls f.
func (f FactoryFunc) Build(desc session.Descriptor, layout session.Layout, logger *slog.Logger) (session.Deps, error) {
	return f(desc, layout, logger)
}

// PostProcessor consumes a finished session's artifact.
type PostProcessor interface {
	Process(ctx context.Context, rec session.Record, logger *slog.Logger) error
}

// Ledger is the bookkeeping the manager writes to. *ledger.Store implements it.
type Ledger interface {
	StartSession(ctx context.Context, in ledger.NewSession) (int64, error)
	RecordTransition(ctx context.Context, id int64, from, to string, cause error, at time.Time) error
	FinishSession(ctx context.Context, id int64, out ledger.Outcome) error
	MarkProcessed(ctx context.Context, id int64) error
}

// ledgerRecorder reports one session's transitions to the ledger.
type ledgerRecorder struct {
	store Ledger
	id    int64
}

func (r ledgerRecorder) RecordTransition(ctx context.Context, from, to session.State, err error, at time.Time) error {
	return r.store.RecordTransition(ctx, r.id, from.String(), to.String(), err, at)
}

type activeSession struct {
	desc      session.Descriptor
	layout    session.Layout
	sessionID string
	started   time.Time
	orch      *session.Orchestrator
}
