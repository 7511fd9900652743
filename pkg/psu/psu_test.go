package psu

import (
	"strings"
	"sync"
	"testing"

	"radscan-go-migration/pkg/config"
)

// fakePort records written commands and replays canned responses.
type fakePort struct {
	mu       sync.Mutex
	commands []string
	response string
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, string(p))
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.response)
	return n, nil
}

func (f *fakePort) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func newTestSupply(port *fakePort, cfg config.PSUConfig) *Supply {
	s := NewSupply(port, cfg)
	s.gap = 0 // no settle gap against a fake
	return s
}

func TestSetpointCommands(t *testing.T) {
	port := &fakePort{}
	s := newTestSupply(port, config.PSUConfig{})

	if err := s.SetVoltage(11.5); err != nil {
		t.Fatalf("SetVoltage: %v", err)
	}
	if err := s.SetCurrent(0.75); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if err := s.OutputOn(); err != nil {
		t.Fatalf("OutputOn: %v", err)
	}
	if err := s.OutputOff(); err != nil {
		t.Fatalf("OutputOff: %v", err)
	}

	want := []string{"VSET1:11.50", "ISET1:0.750", "OUT1", "OUT0"}
	got := port.sent()
	if len(got) != len(want) {
		t.Fatalf("commands = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMemorySlotBounds(t *testing.T) {
	s := newTestSupply(&fakePort{}, config.PSUConfig{})

	if err := s.Recall(0); err == nil {
		t.Error("Recall(0) accepted")
	}
	if err := s.Save(6); err == nil {
		t.Error("Save(6) accepted")
	}
	if err := s.Recall(3); err != nil {
		t.Errorf("Recall(3): %v", err)
	}
}

func TestArmSequence(t *testing.T) {
	port := &fakePort{}
	s := newTestSupply(port, config.PSUConfig{
		Voltage: 12.0,
		Current: 1.0,
		Memory:  1,
	})

	if err := s.Arm(); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	want := []string{"RCL1", "VSET1:12.00", "ISET1:1.000", "SAV1", "RCL1", "OUT1"}
	got := port.sent()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestArmWithoutMemorySlot(t *testing.T) {
	port := &fakePort{}
	s := newTestSupply(port, config.PSUConfig{Voltage: 5.0, Current: 0.5})

	if err := s.Arm(); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	for _, cmd := range port.sent() {
		if strings.HasPrefix(cmd, "RCL") || strings.HasPrefix(cmd, "SAV") {
			t.Errorf("memory command %q sent without a configured slot", cmd)
		}
	}
}

func TestIdentify(t *testing.T) {
	port := &fakePort{response: "KORAD KA3005P V5.8\x00"}
	s := newTestSupply(port, config.PSUConfig{})

	id, err := s.Identify()
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if id != "KORAD KA3005P V5.8" {
		t.Errorf("id = %q", id)
	}
	if port.sent()[0] != "*IDN?" {
		t.Errorf("query command = %q", port.sent()[0])
	}
}

func TestCloseSwitchesOutputOff(t *testing.T) {
	port := &fakePort{}
	s := newTestSupply(port, config.PSUConfig{})

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := port.sent()
	if len(got) != 1 || got[0] != "OUT0" {
		t.Errorf("commands on close = %v", got)
	}
}
