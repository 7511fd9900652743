package scanner

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"radscan-go-migration/pkg/config"
	"radscan-go-migration/pkg/errors"
	"radscan-go-migration/pkg/psu"
	"radscan-go-migration/pkg/scan"
	"radscan-go-migration/pkg/stage"
)

func testHostConfig(t *testing.T) *config.HostConfig {
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
		Scan: config.ScanConfig{
			Name:        "bench",
			Size:        2,
			XStart:      0,
			YStart:      0,
			Averages:    1,
			SliceList:   []float64{10, 20},
			IntTimeList: []float64{0.15, 0.3},
		},
		Output: config.OutputConfig{ResultsDir: t.TempDir()},
	}
}

type fakeAcquirer struct {
	mu      sync.Mutex
	targets []scan.Point
}

func (f *fakeAcquirer) TriggerAcquisition(x, y float64) (scan.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, scan.Point{X: x, Y: y})
	return scan.Sample{Power: float64(len(f.targets))}, nil
}

func (f *fakeAcquirer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets)
}

type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *recordingNotifier) Notify(subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.subjects...)
}

type rig struct {
	scanner  *Scanner
	acquirer *fakeAcquirer
	notifier *recordingNotifier
	ma       *stage.SimMotor
	mb       *stage.SimMotor
	mz       *stage.SimMotor
	port     *stage.SimPort
	hc       *config.HostConfig
}

func newRig(t *testing.T) *rig {
	ma := stage.NewSimMotor(time.Millisecond)
	mb := stage.NewSimMotor(time.Millisecond)
	mz := stage.NewSimMotor(time.Millisecond)
	port := stage.NewSimPort()
	hc := testHostConfig(t)
	st := stage.NewStage(ma, mb, mz, port, hc)
	acquirer := &fakeAcquirer{}
	notifier := &recordingNotifier{}

	sc := New(Config{
		Host:     hc,
		Stage:    st,
		Acquirer: acquirer,
		Notifier: notifier,
	})
	return &rig{
		scanner:  sc,
		acquirer: acquirer,
		notifier: notifier,
		ma:       ma,
		mb:       mb,
		mz:       mz,
		port:     port,
		hc:       hc,
	}
}

// playHomingScript walks the port through a clean homing sequence:
// Y contact-bounce-contact, X contact-bounce-contact, Z contact.
func (r *rig) playHomingScript() {
	seq := []byte{
		stage.MaskYClosed, stage.MaskAllOpen, stage.MaskYClosed,
		stage.MaskXYClosed, stage.MaskYClosed, stage.MaskXYClosed,
		stage.MaskHomeDone,
	}
	time.Sleep(25 * time.Millisecond)
	for _, m := range seq {
		r.port.SetMask(m)
		time.Sleep(15 * time.Millisecond)
	}
}

func TestRunScanEndToEnd(t *testing.T) {
	r := newRig(t)

	done := make(chan error, 1)
	go func() { done <- r.scanner.RunScan(context.Background()) }()
	go r.playHomingScript()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunScan: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunScan did not complete")
	}

	// Two slices of a 2x2 grid.
	if got := r.acquirer.count(); got != 8 {
		t.Errorf("measurements = %d, want 8", got)
	}
	if r.scanner.Mode() != stage.ModeIdle {
		t.Errorf("mode after scan = %v, want idle", r.scanner.Mode())
	}
	if !r.scanner.Homed() {
		t.Error("stage unreferenced after scan")
	}

	// One run directory with one subdirectory per slice.
	entries, err := os.ReadDir(r.hc.Output.ResultsDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("results dir entries = %v (%v)", entries, err)
	}
	runDir := filepath.Join(r.hc.Output.ResultsDir, entries[0].Name())
	for _, slice := range []string{"10_mm", "20_mm"} {
		if _, err := os.Stat(filepath.Join(runDir, slice, "record.csv")); err != nil {
			t.Errorf("missing %s record: %v", slice, err)
		}
	}

	// Carriage parked.
	x, y := r.scanner.CurrentPosition()
	if math.Abs(x-0.2) > 0.01 || math.Abs(y-0.2) > 0.01 {
		t.Errorf("park position = %.3f/%.3f", x, y)
	}

	// Completion notification sent.
	var finished bool
	for _, s := range r.notifier.all() {
		if strings.Contains(s, "finished") {
			finished = true
		}
	}
	if !finished {
		t.Errorf("no completion notification in %v", r.notifier.all())
	}
}

func TestManualHomeThenGoto(t *testing.T) {
	r := newRig(t)

	done := make(chan error, 1)
	go func() { done <- r.scanner.ManualHome(context.Background()) }()
	go r.playHomingScript()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ManualHome: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ManualHome did not complete")
	}

	if !r.scanner.Homed() {
		t.Fatal("not homed after ManualHome")
	}
	if r.scanner.Mode() != stage.ModeIdle {
		t.Fatalf("mode = %v, want idle", r.scanner.Mode())
	}

	if err := r.scanner.GotoPosition(1.0, 1.0); err != nil {
		t.Fatalf("GotoPosition: %v", err)
	}
	x, y := r.scanner.CurrentPosition()
	if math.Abs(x-1.0) > 0.01 || math.Abs(y-1.0) > 0.01 {
		t.Errorf("position = %.3f/%.3f, want 1/1", x, y)
	}

	if err := r.scanner.GotoZ(5.0); err != nil {
		t.Fatalf("GotoZ: %v", err)
	}
	if z := r.scanner.ZPosition(); math.Abs(z-5.0) > 0.001 {
		t.Errorf("z = %.4f, want 5", z)
	}

	// Out-of-range z is rejected before any motion.
	if err := r.scanner.GotoZ(60.0); !errors.Is(err, errors.ErrZBounds) {
		t.Errorf("GotoZ(60) = %v, want Z_BOUNDS", err)
	}
}

func TestGotoRequiresReferencedStage(t *testing.T) {
	r := newRig(t)

	if err := r.scanner.GotoPosition(1.0, 1.0); !errors.Is(err, errors.ErrRuntime) {
		t.Errorf("GotoPosition unhomed = %v, want RUNTIME", err)
	}
	if err := r.scanner.GotoZ(5.0); !errors.Is(err, errors.ErrRuntime) {
		t.Errorf("GotoZ unhomed = %v, want RUNTIME", err)
	}
}

func TestResetHomingBudget(t *testing.T) {
	r := newRig(t)

	// Budget still full: reset must fail.
	if err := r.scanner.ResetHomingBudget(); !errors.Is(err, errors.ErrRehomeDenied) {
		t.Errorf("reset with full budget = %v, want REHOME_DENIED", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.scanner.ManualHome(context.Background()) }()
	go r.playHomingScript()
	if err := <-done; err != nil {
		t.Fatalf("ManualHome: %v", err)
	}

	if err := r.scanner.ResetHomingBudget(); err != nil {
		t.Fatalf("reset after homing: %v", err)
	}
	if r.scanner.Homed() {
		t.Error("still referenced after budget reset")
	}
}

func TestEmergencyStop(t *testing.T) {
	r := newRig(t)
	r.scanner.EmergencyStop()

	if r.ma.Brakes() == 0 || r.mb.Brakes() == 0 || r.mz.Brakes() == 0 {
		t.Error("not all motors braked")
	}
	if r.ma.Enabled() || r.mb.Enabled() || r.mz.Enabled() {
		t.Error("not all motors disabled")
	}
	if r.scanner.Mode() != stage.ModeIdle {
		t.Errorf("mode = %v, want idle", r.scanner.Mode())
	}
}

func TestStatusObjects(t *testing.T) {
	r := newRig(t)

	objects := r.scanner.GetObjectsList()
	if len(objects) != 3 {
		t.Fatalf("objects = %v", objects)
	}

	mode := r.scanner.GetObjectStatus("mode", nil)
	if mode["mode"] != "idle" {
		t.Errorf("mode status = %v", mode)
	}

	st := r.scanner.GetObjectStatus("stage", nil)
	if st["homed"] != false {
		t.Errorf("stage status = %v", st)
	}
	if st["budget"] != 3 {
		t.Errorf("budget = %v", st["budget"])
	}

	// Attribute filtering.
	st = r.scanner.GetObjectStatus("stage", []string{"homed"})
	if len(st) != 1 {
		t.Errorf("filtered stage status = %v", st)
	}

	sc := r.scanner.GetObjectStatus("scan", nil)
	if sc["state"] != "standby" {
		t.Errorf("scan state = %v", sc["state"])
	}
	if sc["total"] != 4 {
		t.Errorf("scan total = %v", sc["total"])
	}

	if r.scanner.GetObjectStatus("unknown", nil) != nil {
		t.Error("unknown object returned status")
	}
}

type fakeSupplyPort struct {
	mu       sync.Mutex
	commands []string
}

func (f *fakeSupplyPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, string(p))
	return len(p), nil
}

func (f *fakeSupplyPort) Read(p []byte) (int, error) {
	return 0, nil
}

func TestCloseSwitchesSupplyOff(t *testing.T) {
	r := newRig(t)
	port := &fakeSupplyPort{}
	r.scanner.supply = psu.NewSupply(port, config.PSUConfig{Voltage: 12, Current: 1})

	if r.scanner.GetHostState() != "ready" {
		t.Errorf("host state = %q", r.scanner.GetHostState())
	}

	if err := r.scanner.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if r.scanner.GetHostState() != "shutdown" {
		t.Errorf("host state after close = %q", r.scanner.GetHostState())
	}
	if r.ma.Enabled() || r.mz.Enabled() {
		t.Error("motors still enabled after close")
	}

	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.commands) != 1 || port.commands[0] != "OUT0" {
		t.Errorf("supply commands on close = %v", port.commands)
	}
}
