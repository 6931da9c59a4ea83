package gateway

import "testing"

func TestMetricsRecorderCollectorsIncludesHostCPU(t *testing.T) {
	m := newMetricsRecorder()
	found := false
	for _, c := range m.Collectors() {
		if c == m.processCPUPercent {
			found = true
		}
	}
	if !found {
		t.Fatal("expected processCPUPercent gauge among the exported collectors")
	}
}

func TestSampleHostCPUReturnsNoError(t *testing.T) {
	m := newMetricsRecorder()
	if err := m.SampleHostCPU(); err != nil {
		t.Fatalf("SampleHostCPU: %v", err)
	}
}
