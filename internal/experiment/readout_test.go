package experiment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/model"
)

func ratioSampleMap(n int, numerator, denominator float64) map[string]model.RatioSample {
	out := make(map[string]model.RatioSample, n)
	for i := 0; i < n; i++ {
		out[string(rune('a'+i%26))+string(rune('0'+i/26))] = model.RatioSample{Numerator: numerator, Denominator: denominator}
	}
	return out
}

func TestBuildReadout_GateNotReadyWithSmallSamples(t *testing.T) {
	exp := &model.Experiment{
		PrimaryMetric: model.MetricCTR,
		TrafficSplit:  0.5,
		MinimumDays:   7,
	}
	control := model.ArmMetrics{Searches: 50, Clicks: 5, RatioSamples: ratioSampleMap(50, 1, 10)}
	variant := model.ArmMetrics{Searches: 50, Clicks: 6, RatioSamples: ratioSampleMap(50, 1.2, 10)}

	r := BuildReadout(exp, control, variant, 1.0, nil)
	require.False(t, r.Gate.MinimumNReached)
	require.Nil(t, r.Significance)
}

func TestBuildReadout_SRMDetectedEvenPreGate(t *testing.T) {
	exp := &model.Experiment{
		PrimaryMetric: model.MetricCTR,
		TrafficSplit:  0.5,
		MinimumDays:   7,
	}
	control := model.ArmMetrics{Searches: 4500, RatioSamples: ratioSampleMap(10, 1, 10)}
	variant := model.ArmMetrics{Searches: 5500, RatioSamples: ratioSampleMap(10, 1, 10)}

	r := BuildReadout(exp, control, variant, 1.0, nil)
	require.True(t, r.SRMDetected)
	require.NotNil(t, r.Significance)
	require.Contains(t, r.Significance.Recommendation, "Sample ratio mismatch")
}
