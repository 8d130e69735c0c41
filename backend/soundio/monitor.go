package soundio

// levelMonitor reports the capture amplitude every period samples, used by
// memory buffer streams with a report interval.
type levelMonitor struct {
	period   int
	position uint32
	count    int
	low      int16
	high     int16
}

func newLevelMonitor(period int) *levelMonitor {
	if period <= 0 {
		return nil
	}
	m := &levelMonitor{period: period}
	m.reset()
	return m
}

func (m *levelMonitor) reset() {
	m.count = 0
	m.low, m.high = 32767, -32768
}

// process consumes captured samples and returns the reports that completed.
func (m *levelMonitor) process(p []int16) []MonitorReport {
	if m == nil {
		return nil
	}
	var reports []MonitorReport
	for _, s := range p {
		m.low = min(m.low, s)
		m.high = max(m.high, s)
		m.count++
		m.position++
		if m.count == m.period {
			reports = append(reports, MonitorReport{
				Position:     m.position,
				MaxAmplitude: uint16(int32(m.high) - int32(m.low)),
			})
			m.reset()
		}
	}
	return reports
}
