package domain

import (
	"time"

	"github.com/pkg/errors"
)

var transitions = map[Status][]Status{
	Pending:    {Processing, Failed},
	Processing: {Processing, Completed, Failed},
}

// CanTransition reports whether a job in status from may move to status to.
// Processing -> Processing is allowed so that a redelivered job can re-enter
// the pipeline; terminal statuses have no outgoing edges.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Start moves the job to processing.
func (j *Job) Start(now time.Time) error {
	if err := j.transition(Processing); err != nil {
		return err
	}
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.UpdatedAt = now
	return nil
}

// Complete moves the job to completed and stamps CompletedAt.
func (j *Job) Complete(now time.Time) error {
	if err := j.transition(Completed); err != nil {
		return err
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail moves the job to failed, recording the stage and cause.
func (j *Job) Fail(now time.Time, stage string, cause error) error {
	if err := j.transition(Failed); err != nil {
		return err
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	j.Error = &JobError{Stage: stage, Message: msg}
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (j *Job) transition(to Status) error {
	if j.Status.Terminal() {
		return errors.Wrapf(ErrTerminal, "job %s is %s", j.ID, j.Status)
	}
	if !CanTransition(j.Status, to) {
		return errors.Wrapf(ErrInvalidTransition, "job %s: %s -> %s", j.ID, j.Status, to)
	}
	j.Status = to
	return nil
}
