// Scan worker: drives motion and hands off to measurement
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scan

import (
	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/log"
	"radscan-go-migration/pkg/stage"
)

// Acquirer is the measurement pipeline contract. TriggerAcquisition
// blocks until the measurement at the target completes.
type Acquirer interface {
	TriggerAcquisition(x, y float64) (Sample, error)
}

// Entry is one element of the worker queue. A nil *Entry is logged
// and skipped; End parks the stage and stops the worker without a
// measurement.
type Entry struct {
	Target Point
	End    bool
}

// Worker consumes the scan plan one position at a time: command both
// coupled axes, join both barriers, hand off to the measurement
// pipeline, block until it completes, advance. Runs only in
// measuring mode.
type Worker struct {
	stage    *stage.Stage
	status   *stage.Status
	acquirer Acquirer
	session  *Session
	queue    chan *Entry
	logger   *log.Logger
}

// NewWorker creates a worker with room for a full plan plus the end
// sentinel.
func NewWorker(st *stage.Stage, status *stage.Status, acq Acquirer, session *Session) *Worker {
	return &Worker{
		stage:    st,
		status:   status,
		acquirer: acq,
		session:  session,
		queue:    make(chan *Entry, session.Size*session.Size+2),
		logger:   log.GetLogger("worker"),
	}
}

// Enqueue appends one entry to the worker queue.
func (w *Worker) Enqueue(e *Entry) {
	w.queue <- e
}

// Feed enqueues every plan target followed by the end sentinel.
func (w *Worker) Feed(p *Plan) {
	for {
		pt, ok := p.Next()
		if !ok {
			break
		}
		w.queue <- &Entry{Target: pt}
	}
	w.queue <- &Entry{End: true}
}

// Run processes queue entries until the end sentinel. Returns an
// error if the mode is wrong or the measurement pipeline fails.
func (w *Worker) Run() error {
	if err := w.status.Require("scan", stage.ModeMeasuring); err != nil {
		return err
	}

	for e := range w.queue {
		if e == nil {
			w.logger.Warn("empty plan entry skipped")
			continue
		}

		if e.End {
			w.stage.Park()
			w.stage.JoinXY()
			w.logger.Info("scan complete, parked at %.2f/%.2f",
				w.stage.Cfg.ParkX, w.stage.Cfg.ParkY)
			return nil
		}

		if e.Target.X == 0 && e.Target.Y == 0 {
			// Start-position move: skips the measurement handshake,
			// but the motion must still settle before the next command
			// supersedes it and strands its barrier token.
			w.stage.MoveTo(0, 0)
			w.stage.JoinXY()
			continue
		}

		w.stage.MoveTo(e.Target.X, e.Target.Y)
		w.stage.JoinXY()

		sample, err := w.acquirer.TriggerAcquisition(e.Target.X, e.Target.Y)
		if err != nil {
			w.logger.Error("acquisition failed at %.3f/%.3f: %v", e.Target.X, e.Target.Y, err)
			return errors.Wrap(err, errors.ErrRuntime, "measurement pipeline failed")
		}
		w.session.Record(e.Target.X, e.Target.Y, sample)
	}
	return nil
}
