package soundio

import "testing"

func TestLevelMonitor(t *testing.T) {
	m := newLevelMonitor(4)

	if r := m.process([]int16{0, 100, -100}); len(r) != 0 {
		t.Fatalf("process() = %v, want no report before a full period", r)
	}
	reports := m.process([]int16{50, 10, 20, 30, 40, 1})
	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}

	want := []MonitorReport{
		{Position: 4, MaxAmplitude: 200},
		{Position: 8, MaxAmplitude: 30},
	}
	for i, w := range want {
		if reports[i] != w {
			t.Errorf("reports[%d] = %+v, want %+v", i, reports[i], w)
		}
	}
}

func TestLevelMonitor_FullScale(t *testing.T) {
	m := newLevelMonitor(2)
	reports := m.process([]int16{-32768, 32767})
	if len(reports) != 1 || reports[0].MaxAmplitude != 65535 {
		t.Errorf("reports = %+v, want amplitude 65535", reports)
	}
}

func TestLevelMonitor_Disabled(t *testing.T) {
	var m *levelMonitor = newLevelMonitor(0)
	if m != nil {
		t.Fatal("newLevelMonitor(0) should be nil")
	}
	if r := m.process([]int16{1, 2, 3}); r != nil {
		t.Errorf("nil monitor process() = %v, want nil", r)
	}
}
