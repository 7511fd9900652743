package stage

import (
	"math"
	"testing"
	"time"

	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/errors"
)

func testHostConfig() *config.HostConfig {
	return &config.HostConfig{
		Stage: config.StageConfig{
			StepsPerUnit:    343.33,
			ParkX:           0.2,
			ParkY:           0.2,
			RetractSteps:    160,
			RetractVelocity: 2000,
			RetryVelocity:   1000,
			TraverseSteps:   100000,
			ZBackoffSteps:   -21000,
			ZMax:            55.0,
			IdleVelocity:    2000,
		},
		StepperA: config.StepperConfig{Velocity: 4000, RampUp: 8000, RampDown: 8000},
		StepperB: config.StepperConfig{Velocity: 4000, RampUp: 8000, RampDown: 8000},
		StepperZ: config.StepperConfig{Velocity: 1200, RampUp: 2000, RampDown: 2000},
	}
}

func newSimStage(delay time.Duration) (*Stage, *SimMotor, *SimMotor, *SimMotor, *SimPort) {
	a := NewSimMotor(delay)
	b := NewSimMotor(delay)
	z := NewSimMotor(delay)
	port := NewSimPort()
	return NewStage(a, b, z, port, testHostConfig()), a, b, z, port
}

func TestCornerTransformRoundTrip(t *testing.T) {
	k := 343.33
	tr := CornerTransform{StepsPerUnit: k}

	a, b := tr.ToSteps(1.0, 0.5)
	if a != int(k*1.5) || b != int(k*0.5) {
		t.Errorf("ToSteps = %d, %d", a, b)
	}

	x, y := tr.ToPosition(a, b)
	if math.Abs(x-1.0) > 0.01 || math.Abs(y-0.5) > 0.01 {
		t.Errorf("ToPosition round trip = %v, %v", x, y)
	}
}

func TestZTransform(t *testing.T) {
	tr := ZTransform{StepsPerCM: DefaultZStepsPerCM}

	steps := tr.ToSteps(10.0)
	if steps >= 0 {
		t.Errorf("z travel must be in the negative step direction, got %d", steps)
	}
	if z := tr.ToPosition(steps); math.Abs(z-10.0) > 0.001 {
		t.Errorf("round trip z = %v", z)
	}
}

func TestClassifyMask(t *testing.T) {
	cases := []struct {
		mask byte
		want HomingStep
	}{
		{MaskAllOpen, StepHomeY},
		{MaskYClosed, StepHomeX},
		{MaskXYClosed, StepHomeZ},
		{MaskHomeDone, StepDone},
		{MaskZOnly, StepBackoffZ},
		{0xF0, StepUnknown},
		{0x00, StepUnknown},
	}
	for _, c := range cases {
		if got := ClassifyMask(c.mask); got != c.want {
			t.Errorf("ClassifyMask(%#08b) = %v, want %v", c.mask, got, c.want)
		}
	}
}

func TestModeTransitions(t *testing.T) {
	st := NewStatus()
	if st.Mode() != ModeIdle {
		t.Fatalf("initial mode = %v", st.Mode())
	}

	st.ChangeMode(ModeHoming)
	if st.Mode() != ModeHoming {
		t.Errorf("mode after change = %v", st.Mode())
	}

	if err := st.Require("goto_position", ModeIdle); !errors.Is(err, errors.ErrModeInvalid) {
		t.Errorf("Require in wrong mode = %v, want MODE_INVALID", err)
	}

	st.ChangeMode(ModeIdle)
	if err := st.Require("goto_position", ModeIdle); err != nil {
		t.Errorf("Require in matching mode = %v", err)
	}
}

func TestAxisMoveJoin(t *testing.T) {
	m := NewSimMotor(5 * time.Millisecond)
	a := NewAxis("stepper_a", m, config.StepperConfig{Velocity: 4000, RampUp: 8000, RampDown: 8000})
	a.Arm()

	a.Move(500)
	a.Join()

	if m.CurrentPosition() != 500 {
		t.Errorf("position = %d, want 500", m.CurrentPosition())
	}
	if a.Barrier().Outstanding() != 0 {
		t.Errorf("outstanding = %d after join", a.Barrier().Outstanding())
	}
}

func TestAxisDisarmedIgnoresCompletion(t *testing.T) {
	m := NewSimMotor(time.Millisecond)
	a := NewAxis("stepper_b", m, config.StepperConfig{Velocity: 4000})

	// Direct motor command while disarmed, as the homing coordinator
	// issues them. The completion must not touch the barrier.
	m.SetRelativeSteps(160)
	time.Sleep(20 * time.Millisecond)

	if m.CurrentPosition() != 160 {
		t.Errorf("position = %d", m.CurrentPosition())
	}
	if a.Barrier().Outstanding() != 0 {
		t.Errorf("outstanding = %d", a.Barrier().Outstanding())
	}
}

func TestStageMoveTo(t *testing.T) {
	s, ma, mb, _, _ := newSimStage(time.Millisecond)
	s.Arm()

	s.MoveTo(1.0, 1.0)
	s.JoinXY()

	// Corner targets: a = k(x+y), b = k(x-y)
	k := 343.33
	if ma.CurrentPosition() != int(k*2.0) {
		t.Errorf("motor a position = %d", ma.CurrentPosition())
	}
	if mb.CurrentPosition() != 0 {
		t.Errorf("motor b position = %d", mb.CurrentPosition())
	}

	x, y := s.Position()
	if math.Abs(x-1.0) > 0.01 || math.Abs(y-1.0) > 0.01 {
		t.Errorf("Position = %v, %v", x, y)
	}
}

func TestStageZBounds(t *testing.T) {
	s, _, _, mz, _ := newSimStage(time.Millisecond)
	s.Arm()

	if err := s.MoveZTo(60.0); !errors.Is(err, errors.ErrZBounds) {
		t.Errorf("out-of-range z error = %v, want Z_BOUNDS", err)
	}
	if err := s.MoveZTo(-1.0); !errors.Is(err, errors.ErrZBounds) {
		t.Errorf("negative z error = %v, want Z_BOUNDS", err)
	}
	if mz.CurrentPosition() != 0 {
		t.Errorf("rejected move still commanded steps: %d", mz.CurrentPosition())
	}

	if err := s.MoveZTo(10.0); err != nil {
		t.Fatalf("MoveZTo(10): %v", err)
	}
	s.JoinZ()
	if math.Abs(s.ZPosition()-10.0) > 0.001 {
		t.Errorf("ZPosition = %v", s.ZPosition())
	}
}

func TestSimPortInterrupt(t *testing.T) {
	p := NewSimPort()
	if p.ReadPort() != MaskAllOpen {
		t.Fatalf("initial mask = %#08b", p.ReadPort())
	}

	var got byte
	p.OnInterrupt(func(mask byte) { got = mask })
	p.SetMask(MaskYClosed)

	if got != MaskYClosed {
		t.Errorf("interrupt mask = %#08b", got)
	}
	if p.ReadPort() != MaskYClosed {
		t.Errorf("ReadPort = %#08b", p.ReadPort())
	}
}
