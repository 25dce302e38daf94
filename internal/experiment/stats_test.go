package experiment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flapjack/flapjack/internal/model"
)

func TestCheckSampleRatioMismatch_FlagsSkewedSplit(t *testing.T) {
	require.True(t, CheckSampleRatioMismatch(4500, 5500, 0.5))
}

func TestCheckSampleRatioMismatch_AcceptsExpectedSplit(t *testing.T) {
	require.False(t, CheckSampleRatioMismatch(5010, 4990, 0.5))
}

func TestDeltaMethodZTest_DetectsImprovement(t *testing.T) {
	control := make([]RatioSample, 200)
	variant := make([]RatioSample, 200)
	for i := range control {
		control[i] = RatioSample{Numerator: 5, Denominator: 100}
		variant[i] = RatioSample{Numerator: 12, Denominator: 100}
	}
	r := DeltaMethodZTest(control, variant)
	require.True(t, r.Significant)
	require.Equal(t, "variant", r.Winner)
	require.Greater(t, r.ZScore, 0.0)
}

func TestOrientForMetric_FlipsWinnerForLowerIsBetter(t *testing.T) {
	raw := StatResult{ZScore: 2.0, Significant: true, Winner: "variant", RelativeImprovement: 0.1}
	oriented := orientForMetric(raw, model.MetricZeroResultRate)
	require.Equal(t, "control", oriented.Winner)
	require.Less(t, oriented.ZScore, 0.0)
}

func TestOrientForMetric_LeavesHigherIsBetterUnchanged(t *testing.T) {
	raw := StatResult{ZScore: 2.0, Significant: true, Winner: "variant"}
	oriented := orientForMetric(raw, model.MetricCTR)
	require.Equal(t, raw, oriented)
}

func TestCheckGuardRail_FlagsLargeRegression(t *testing.T) {
	alert := CheckGuardRail("ctr", 0.10, 0.07, false, guardRailThreshold)
	require.NotNil(t, alert)
	require.InDelta(t, 0.30, alert.DropPct, 0.001)
}

func TestCheckGuardRail_IgnoresSmallRegression(t *testing.T) {
	alert := CheckGuardRail("ctr", 0.10, 0.095, false, guardRailThreshold)
	require.Nil(t, alert)
}

func TestBetaBinomialProbBGreaterA_FavorsHigherRate(t *testing.T) {
	prob := BetaBinomialProbBGreaterA(50, 1000, 80, 1000)
	require.Greater(t, prob, 0.9)
}

func TestCUPEDAdjust_FallsBackBelowMinimumMatchedUsers(t *testing.T) {
	samples := []RatioSample{{Numerator: 1, Denominator: 10}}
	ids := []string{"u1"}
	covariates := map[string]float64{"u1": 0.5}
	// Only 1 user is matched, below cupedMinMatchedUsers, so CUPEDAdjust
	// returns the samples unadjusted.
	adjusted := CUPEDAdjust(samples, ids, covariates)
	require.Len(t, adjusted, 1)
}

func TestGuardRailAlerts_FlagsZeroResultRateRegression(t *testing.T) {
	control := model.ArmMetrics{Searches: 1000, ZeroResultSearches: 50}
	variant := model.ArmMetrics{Searches: 1000, ZeroResultSearches: 80}
	alerts := guardRailAlerts(control, variant)
	var found bool
	for _, a := range alerts {
		if a.MetricName == "zeroResultRate" {
			found = true
		}
	}
	require.True(t, found, "a variant with a much higher zero-result rate must raise a guard-rail alert")
}

func TestGuardRailAlerts_FlagsAbandonmentRateRegression(t *testing.T) {
	control := model.ArmMetrics{Searches: 1000, Abandonments: 100}
	variant := model.ArmMetrics{Searches: 1000, Abandonments: 160}
	alerts := guardRailAlerts(control, variant)
	var found bool
	for _, a := range alerts {
		if a.MetricName == "abandonmentRate" {
			found = true
		}
	}
	require.True(t, found, "a variant with a much higher abandonment rate must raise a guard-rail alert")
}

func TestRequiredSampleSize_SmallerMDENeedsMoreSamples(t *testing.T) {
	loose := RequiredSampleSize(0.1, 0.10, 0.05, 0.80, 0.5)
	tight := RequiredSampleSize(0.1, 0.02, 0.05, 0.80, 0.5)
	require.Greater(t, tight.PerArm, loose.PerArm)
}
