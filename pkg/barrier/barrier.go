// Counted completion barrier for in-flight stage actions
//
// Each stepper axis owns one SyncBarrier. The sequential scan context
// acquires a token when it issues a motion command; the hardware
// callback context releases it when the position-reached event
// arrives. Joining two axes means joining both barriers, never a
// combined one.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package barrier

import (
	"sync"
	"time"

	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/log"
)

// Payload values carried by a released token.
type Payload int

const (
	// None marks an ordinary completion with no result attached.
	None Payload = iota

	// EndOfScan marks the completion that retires a whole scan.
	EndOfScan
)

// SyncBarrier hands single in-flight action tokens from a producer to
// an asynchronous completion callback. The count never goes negative:
// only the producer increments it, only the completion context
// decrements it.
type SyncBarrier struct {
	name string

	mu          sync.Mutex
	cond        *sync.Cond
	outstanding int
	delivered   []Payload

	logger *log.Logger
}

// New creates a barrier for the named actuator.
func New(name string) *SyncBarrier {
	b := &SyncBarrier{
		name:   name,
		logger: log.GetLogger("barrier"),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Name returns the actuator name this barrier tracks.
func (b *SyncBarrier) Name() string {
	return b.name
}

// Acquire registers one in-flight action. Called only from the
// producer context.
func (b *SyncBarrier) Acquire() {
	b.mu.Lock()
	b.outstanding++
	b.mu.Unlock()
}

// Release retires one in-flight action, delivering its payload to any
// queued consumer. Called only from the completion context. Releasing
// more than was acquired fails fast instead of going negative.
func (b *SyncBarrier) Release(p Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.outstanding == 0 {
		err := errors.BarrierMisuseError(b.name)
		b.logger.WithError(err).Error("release without matching acquire")
		return err
	}
	b.outstanding--
	b.delivered = append(b.delivered, p)
	b.cond.Broadcast()
	return nil
}

// Join blocks until the outstanding count reaches zero. May be called
// repeatedly; returns immediately when nothing is in flight.
func (b *SyncBarrier) Join() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.outstanding > 0 {
		b.cond.Wait()
	}
}

// JoinTimeout is Join with an upper bound. It returns false if the
// count did not reach zero within d. Hardware that never delivers a
// callback otherwise blocks Join forever.
func (b *SyncBarrier) JoinTimeout(d time.Duration) bool {
	deadline := time.Now().Add(d)
	timer := time.AfterFunc(d, func() {
		// Wake the waiter so it can observe the deadline; the count
		// itself is untouched.
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.outstanding > 0 {
		if !time.Now().Before(deadline) {
			return false
		}
		b.cond.Wait()
	}
	return true
}

// Take removes and returns the oldest delivered payload. The second
// return is false when no payload is queued.
func (b *SyncBarrier) Take() (Payload, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.delivered) == 0 {
		return None, false
	}
	p := b.delivered[0]
	b.delivered = b.delivered[1:]
	return p, true
}

// Outstanding returns the current in-flight count.
func (b *SyncBarrier) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outstanding
}
