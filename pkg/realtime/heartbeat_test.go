package realtime

import (
	"testing"
	"time"
)

func TestClassifyLatency(t *testing.T) {
	cases := []struct {
		latency time.Duration
		want    Quality
	}{
		{0, QualityExcellent},
		{99 * time.Millisecond, QualityExcellent},
		{100 * time.Millisecond, QualityGood},
		{299 * time.Millisecond, QualityGood},
		{300 * time.Millisecond, QualityPoor},
		{999 * time.Millisecond, QualityPoor},
		{1000 * time.Millisecond, QualityCritical},
		{5 * time.Second, QualityCritical},
	}
	for _, c := range cases {
		if got := ClassifyLatency(c.latency); got != c.want {
			t.Fatalf("%s: got %s want %s", c.latency, got, c.want)
		}
	}
}
