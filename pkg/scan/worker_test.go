package scan

import (
	"math"
	"sync"
	"testing"
	"time"

	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/stage"
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

func testScanConfig(size int) config.ScanConfig {
	return config.ScanConfig{
		Name:        "test",
		Size:        size,
		Averages:    1,
		SliceList:   []float64{10},
		IntTimeList: []float64{0.15},
	}
}

// fakeAcquirer records the order of acquisition targets.
type fakeAcquirer struct {
	mu      sync.Mutex
	targets []Point
	sample  Sample
	err     error
}

func (f *fakeAcquirer) TriggerAcquisition(x, y float64) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, Point{X: x, Y: y})
	return f.sample, f.err
}

func (f *fakeAcquirer) Targets() []Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Point(nil), f.targets...)
}

func newWorkerRig(size int) (*Worker, *fakeAcquirer, *Session, *stage.Stage, *stage.Status) {
	st := stage.NewStage(
		stage.NewSimMotor(time.Millisecond),
		stage.NewSimMotor(time.Millisecond),
		stage.NewSimMotor(time.Millisecond),
		stage.NewSimPort(),
		testHostConfig(),
	)
	st.Arm()
	status := stage.NewStatus()
	session := NewSession(testScanConfig(size), 10.0, 0.15)
	acq := &fakeAcquirer{sample: Sample{Power: 1.0}}
	return NewWorker(st, status, acq, session), acq, session, st, status
}

func TestWorkerFullScan(t *testing.T) {
	w, acq, session, st, status := newWorkerRig(3)
	status.ChangeMode(stage.ModeMeasuring)

	plan := NewPlan(3, 0, 0)
	want := collect(NewPlan(3, 0, 0))
	w.Feed(plan)

	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := acq.Targets()
	if len(got) != 9 {
		t.Fatalf("measurements = %d, want 9", len(got))
	}
	for i := range want {
		if math.Abs(got[i].X-want[i].X) > 1e-9 || math.Abs(got[i].Y-want[i].Y) > 1e-9 {
			t.Errorf("measurement %d at %v, want %v", i, got[i], want[i])
		}
	}
	if session.Measured() != 9 {
		t.Errorf("session measured = %d", session.Measured())
	}

	// End sentinel parks the stage without a tenth measurement.
	x, y := st.Position()
	if math.Abs(x-0.2) > 0.01 || math.Abs(y-0.2) > 0.01 {
		t.Errorf("park position = %v/%v, want 0.2/0.2", x, y)
	}
}

func TestWorkerRequiresMeasuringMode(t *testing.T) {
	w, acq, _, _, _ := newWorkerRig(2)
	// Mode left at idle.
	if err := w.Run(); !errors.Is(err, errors.ErrModeInvalid) {
		t.Fatalf("Run in idle mode = %v, want MODE_INVALID", err)
	}
	if len(acq.Targets()) != 0 {
		t.Error("worker measured despite mode rejection")
	}
}

func TestWorkerSkipsNilEntry(t *testing.T) {
	w, acq, _, _, status := newWorkerRig(2)
	status.ChangeMode(stage.ModeMeasuring)

	w.Enqueue(nil)
	w.Enqueue(&Entry{Target: Point{X: 0.585, Y: 0.585}})
	w.Enqueue(&Entry{End: true})

	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(acq.Targets()) != 1 {
		t.Errorf("measurements = %d, want 1", len(acq.Targets()))
	}
}

func TestWorkerStartPositionFastPath(t *testing.T) {
	w, acq, _, st, status := newWorkerRig(2)
	status.ChangeMode(stage.ModeMeasuring)

	w.Enqueue(&Entry{Target: Point{X: 0, Y: 0}})
	w.Enqueue(&Entry{End: true})

	// The park command follows immediately; if the start move's
	// completion is lost, its token is never released and the park
	// join blocks forever.
	done := make(chan error, 1)
	go func() { done <- w.Run() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker hung parking after the start-position move")
	}

	if len(acq.Targets()) != 0 {
		t.Error("start-position move triggered a measurement")
	}
	if n := st.A.Barrier().Outstanding(); n != 0 {
		t.Errorf("motor a outstanding after run = %d", n)
	}
	if n := st.B.Barrier().Outstanding(); n != 0 {
		t.Errorf("motor b outstanding after run = %d", n)
	}
}

func TestWorkerPropagatesAcquisitionFailure(t *testing.T) {
	w, acq, _, _, status := newWorkerRig(2)
	status.ChangeMode(stage.ModeMeasuring)
	acq.err = errors.RuntimeError("spectrometer timeout")

	w.Enqueue(&Entry{Target: Point{X: 0.585, Y: 0.585}})
	w.Enqueue(&Entry{End: true})

	if err := w.Run(); !errors.Is(err, errors.ErrRuntime) {
		t.Errorf("Run = %v, want RUNTIME", err)
	}
}

func TestSessionBookkeeping(t *testing.T) {
	session := NewSession(testScanConfig(2), 10.0, 0.15)

	session.Record(0.585, 0.585, Sample{Power: 2.0, Saturated: true})
	session.Record(0.975, 0.585, Sample{Power: 3.0})

	if session.Measured() != 2 {
		t.Errorf("measured = %d", session.Measured())
	}
	if session.Saturations() != 1 {
		t.Errorf("saturations = %d", session.Saturations())
	}

	power, _, xs, ys, _, _ := session.Results()
	if power[0] != 2.0 || power[1] != 3.0 {
		t.Errorf("power array = %v", power)
	}
	if xs[1] != 0.975 || ys[0] != 0.585 {
		t.Errorf("coordinate arrays = %v / %v", xs, ys)
	}
}

func TestSessionPixelIndex(t *testing.T) {
	session := NewSession(testScanConfig(3), 10.0, 0.15)

	cases := []struct {
		x, y float64
		want int
	}{
		{0.585, 0.585, 0},
		{0.975, 0.585, 1},
		{1.365, 0.585, 2},
		{0.585, 0.975, 3},
		{1.365, 1.365, 8},
	}
	for _, c := range cases {
		if got := session.PixelIndex(c.x, c.y); got != c.want {
			t.Errorf("PixelIndex(%v, %v) = %d, want %d", c.x, c.y, got, c.want)
		}
	}
}

func TestSessionEndEstimate(t *testing.T) {
	cfg := testScanConfig(8) // 64 pixels, estimate fires at 50
	session := NewSession(cfg, 10.0, 0.15)

	var fired bool
	session.OnEstimate = func(end time.Time) { fired = true }

	plan := NewPlan(8, 0, 0)
	for {
		pt, ok := plan.Next()
		if !ok {
			break
		}
		session.Record(pt.X, pt.Y, Sample{Power: 1.0})
	}

	if !fired {
		t.Error("end-time estimate callback did not fire")
	}
	if _, ok := session.EndEstimate(); !ok {
		t.Error("no end estimate recorded")
	}
}
