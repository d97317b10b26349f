package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Failure is one consumer side problem worth showing to an operator.
type Failure struct {
	ID       string    `json:"id"`
	Method   string    `json:"method"`
	Seq      uint64    `json:"seq"`
	Kind     string    `json:"kind"`
	Attempts int       `json:"attempts"`
	Err      string    `json:"err"`
	At       time.Time `json:"at"`
}

func newFailure(method string, seq uint64, kind string, attempts int, err error) Failure {
	f := Failure{
		ID:       uuid.NewString(),
		Method:   method,
		Seq:      seq,
		Kind:     kind,
		Attempts: attempts,
		At:       time.Now().UTC(),
	}
	if err != nil {
		f.Err = err.Error()
	}
	return f
}

// Recorder receives dispatch failures. Record must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, f Failure)
}

type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, f Failure) {
	for _, r := range rs {
		r.Record(ctx, f)
	}
}

type logRecorder struct {
	log *slog.Logger
}

func (r logRecorder) Record(ctx context.Context, f Failure) {
	level := slog.LevelError
	if f.Kind == outcomeRetryable {
		level = slog.LevelWarn
	}
	r.log.Log(ctx, level, "dispatch failure",
		"method", f.Method,
		"seq", f.Seq,
		"kind", f.Kind,
		"attempts", f.Attempts,
		"err", f.Err,
		"failure_id", f.ID,
	)
}
