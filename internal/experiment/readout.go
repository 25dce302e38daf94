package experiment

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/flapjack/flapjack/internal/model"
)

// MetricsSource supplies the per-arm metrics and CUPED covariates a readout
// is computed from. The metrics rollup pipeline that would back a concrete
// implementation is out of scope (spec Non-goals); callers without one
// still get a well-formed, zero-metrics readout rather than an error,
// mirroring the original implementation's "no analytics engine configured"
// fallback.
type MetricsSource interface {
	ArmMetrics(ctx context.Context, exp *model.Experiment) (control, variant model.ArmMetrics, elapsedDays float64, err error)
	Covariates(ctx context.Context, exp *model.Experiment) (map[string]float64, error)
}

// ResolveMetrics fetches exp's per-arm metrics via src, degrading to a
// zero-metrics pair on a nil source or a fetch error rather than failing
// the request (mirrors the original implementation's "no analytics engine
// configured" fallback).
func ResolveMetrics(ctx context.Context, exp *model.Experiment, src MetricsSource) (control, variant model.ArmMetrics, elapsedDays float64, covariates map[string]float64) {
	if src == nil {
		return model.ArmMetrics{}, model.ArmMetrics{}, 0, nil
	}
	control, variant, elapsedDays, err := src.ArmMetrics(ctx, exp)
	if err != nil {
		return model.ArmMetrics{}, model.ArmMetrics{}, 0, nil
	}
	covariates, _ = src.Covariates(ctx, exp)
	return control, variant, elapsedDays, covariates
}

// BuildReadoutForExperiment resolves exp's metrics via src (if non-nil) and
// builds its readout, degrading to a zero-metrics readout on a nil source
// or a metrics-fetch error rather than failing the request.
func BuildReadoutForExperiment(ctx context.Context, exp *model.Experiment, src MetricsSource) Readout {
	control, variant, elapsedDays, covariates := ResolveMetrics(ctx, exp, src)
	return BuildReadout(exp, control, variant, elapsedDays, covariates)
}

// SampleSizeEstimate is the per-arm observation count needed to detect mde
// at the given alpha/power, for a two-proportion z-test.
type SampleSizeEstimate struct {
	PerArm int64
}

// RequiredSampleSize computes the per-arm sample size for a two-proportion
// test via the standard normal-approximation formula. trafficSplit does not
// change the result: the split affects how long each arm takes to reach the
// per-arm count, not the count itself.
func RequiredSampleSize(baselineRate, mde, alpha, power, trafficSplit float64) SampleSizeEstimate {
	if baselineRate <= 0 {
		baselineRate = 0.001
	}
	p1 := baselineRate
	p2 := baselineRate * (1 + mde)

	norm := distuv.Normal{Mu: 0, Sigma: 1}
	zAlpha := norm.Quantile(1 - alpha/2)
	zBeta := norm.Quantile(power)

	pBar := (p1 + p2) / 2
	numerator := zAlpha*math.Sqrt(2*pBar*(1-pBar)) + zBeta*math.Sqrt(p1*(1-p1)+p2*(1-p2))
	n := math.Pow(numerator, 2) / math.Pow(p2-p1, 2)

	_ = trafficSplit // split affects calendar time to reach n, not n itself
	return SampleSizeEstimate{PerArm: int64(math.Ceil(n))}
}

// StatGate reports whether an experiment has collected enough data (and
// run long enough) for its readout to be trustworthy. minimum_days is a
// soft override: significance becomes available once the sample-size
// target is met even if minimum_days hasn't elapsed, per the original
// implementation's comment that the day floor exists to guard against
// novelty effects, not to block an otherwise well-powered read.
type StatGate struct {
	MinimumNReached bool
	ReadyToRead     bool
}

// NewStatGate builds a StatGate from the current per-arm search counts.
func NewStatGate(controlSearches, variantSearches, requiredPerArm int64, elapsedDays float64, minimumDays int) StatGate {
	minN := controlSearches >= requiredPerArm && variantSearches >= requiredPerArm
	return StatGate{
		MinimumNReached: minN,
		ReadyToRead:     minN && elapsedDays >= float64(minimumDays),
	}
}

// BayesianResult is the Bayesian half of a readout.
type BayesianResult struct {
	ProbVariantBetter float64
}

// SignificanceResult is the frequentist half of a readout.
type SignificanceResult struct {
	Stat          StatResult
	Recommendation string
}

// Readout is the full computed verdict for one experiment at a point in
// time, mirroring the original implementation's ResultsResponse.
type Readout struct {
	Gate               StatGate
	SampleEstimate     SampleSizeEstimate
	ElapsedDays        float64
	ProgressPct        float64
	SRMDetected        bool
	Bayesian           *BayesianResult
	Significance       *SignificanceResult
	CUPEDApplied       bool
	GuardRailAlerts    []GuardRailAlert
}

// BuildReadout computes the full statistical verdict for exp given its
// current per-arm metrics and (optional) pre-experiment covariates for
// CUPED, following spec §4.6.1 steps 1-7.
func BuildReadout(exp *model.Experiment, control, variant model.ArmMetrics, elapsedDays float64, covariates map[string]float64) Readout {
	baseline := primaryMetricValue(control, exp.PrimaryMetric)
	if baseline <= 0 {
		baseline = 0.1
	}
	sampleEstimate := RequiredSampleSize(baseline, 0.05, 0.05, 0.80, exp.TrafficSplit)

	minSearches := control.Searches
	if variant.Searches < minSearches {
		minSearches = variant.Searches
	}
	progressPct := 100.0
	if sampleEstimate.PerArm > 0 {
		progressPct = math.Min(100.0, float64(minSearches)/float64(sampleEstimate.PerArm)*100.0)
	}

	gate := NewStatGate(control.Searches, variant.Searches, sampleEstimate.PerArm, elapsedDays, exp.MinimumDays)
	srm := CheckSampleRatioMismatch(control.Searches, variant.Searches, exp.TrafficSplit)

	readout := Readout{
		Gate:           gate,
		SampleEstimate: sampleEstimate,
		ElapsedDays:    elapsedDays,
		ProgressPct:    progressPct,
		SRMDetected:    srm,
		Bayesian:       buildBayesian(exp, control, variant),
	}

	if !gate.MinimumNReached {
		if srm {
			readout.Significance = &SignificanceResult{
				Recommendation: "Sample ratio mismatch detected — investigate assignment before declaring a winner.",
			}
		}
		return readout
	}

	cupedApplied, adjControl, adjVariant := tryCUPEDAdjustment(exp, control, variant, covariates)
	readout.CUPEDApplied = cupedApplied

	var raw StatResult
	if exp.PrimaryMetric == model.MetricRevenuePerSearch {
		raw = WelchTTest(revenueValues(control), revenueValues(variant))
	} else {
		ctrlSamples := ratioSamplesForMetric(control, exp.PrimaryMetric)
		varSamples := ratioSamplesForMetric(variant, exp.PrimaryMetric)
		if cupedApplied {
			ctrlSamples, varSamples = adjControl, adjVariant
		}
		raw = DeltaMethodZTest(ctrlSamples, varSamples)
	}
	stat := orientForMetric(raw, exp.PrimaryMetric)

	var recommendation string
	switch {
	case srm:
		recommendation = "Sample ratio mismatch detected — investigate assignment before declaring a winner."
	case stat.Significant:
		recommendation = "Statistically significant result: " + stat.Winner + " arm wins on " + string(exp.PrimaryMetric) + "."
	default:
		recommendation = "Not yet statistically significant. Consider continuing the experiment."
	}

	readout.Significance = &SignificanceResult{Stat: stat, Recommendation: recommendation}
	readout.GuardRailAlerts = guardRailAlerts(control, variant)
	return readout
}

func primaryMetricValue(m model.ArmMetrics, metric model.PrimaryMetric) float64 {
	switch metric {
	case model.MetricCTR:
		return m.CTR()
	case model.MetricConversionRate:
		return m.ConversionRate()
	case model.MetricRevenuePerSearch:
		return m.RevenuePerSearch()
	case model.MetricZeroResultRate, model.MetricAbandonmentRate:
		return ratioMean(ratioSamplesForMetric(m, metric))
	}
	return 0
}

func ratioMean(samples []RatioSample) float64 {
	var numSum, denSum float64
	for _, s := range samples {
		numSum += s.Numerator
		denSum += s.Denominator
	}
	if denSum == 0 {
		return 0
	}
	return numSum / denSum
}

// ratioSamplesForMetric returns an arm's per-user ratio samples. metric is
// not used: every metric reads the same RatioSamples map (one sample per
// user), so that map holds samples for the experiment's primary metric.
func ratioSamplesForMetric(m model.ArmMetrics, metric model.PrimaryMetric) []RatioSample {
	_ = metric
	samples := make([]RatioSample, 0, len(m.RatioSamples))
	for _, s := range m.RatioSamples {
		samples = append(samples, s)
	}
	return samples
}

func revenueValues(m model.ArmMetrics) []float64 {
	values := make([]float64, 0, len(m.RevenueSamples))
	for _, v := range m.RevenueSamples {
		values = append(values, v)
	}
	return values
}

// idsAndSamples returns an arm's per-user IDs and ratio samples from the
// SAME map iteration so index i of each slice refers to the same user —
// two separate range statements over the same map do not guarantee
// matching order and would silently mispair users with covariates.
func idsAndSamples(m model.ArmMetrics) ([]string, []RatioSample) {
	ids := make([]string, 0, len(m.RatioSamples))
	samples := make([]RatioSample, 0, len(m.RatioSamples))
	for id, s := range m.RatioSamples {
		ids = append(ids, id)
		samples = append(samples, s)
	}
	return ids, samples
}

func tryCUPEDAdjustment(exp *model.Experiment, control, variant model.ArmMetrics, covariates map[string]float64) (bool, []RatioSample, []RatioSample) {
	if exp.PrimaryMetric == model.MetricRevenuePerSearch || len(covariates) == 0 {
		return false, nil, nil
	}
	controlIDs, controlSamples := idsAndSamples(control)
	variantIDs, variantSamples := idsAndSamples(variant)

	if matchedCount(controlSamples, controlIDs, covariates) < cupedMinMatchedUsers ||
		matchedCount(variantSamples, variantIDs, covariates) < cupedMinMatchedUsers {
		return false, nil, nil
	}

	adjControl := CUPEDAdjust(controlSamples, controlIDs, covariates)
	adjVariant := CUPEDAdjust(variantSamples, variantIDs, covariates)

	rawVar := RatioVariance(controlSamples) + RatioVariance(variantSamples)
	adjVar := RatioVariance(adjControl) + RatioVariance(adjVariant)
	if adjVar < rawVar {
		return true, adjControl, adjVariant
	}
	return false, nil, nil
}

func matchedCount(samples []RatioSample, ids []string, covariates map[string]float64) int {
	if len(samples) != len(ids) {
		return 0
	}
	count := 0
	for i, id := range ids {
		if samples[i].Denominator > 0 {
			if _, ok := covariates[id]; ok {
				count++
			}
		}
	}
	return count
}

func buildBayesian(exp *model.Experiment, control, variant model.ArmMetrics) *BayesianResult {
	var aSuccess, aTotal, bSuccess, bTotal int64
	switch exp.PrimaryMetric {
	case model.MetricConversionRate:
		aSuccess, aTotal = control.Conversions, control.Searches
		bSuccess, bTotal = variant.Conversions, variant.Searches
	default:
		aSuccess, aTotal = control.Clicks, control.Searches
		bSuccess, bTotal = variant.Clicks, variant.Searches
	}
	prob := BetaBinomialProbBGreaterA(aSuccess, aTotal, bSuccess, bTotal)
	if exp.PrimaryMetric.LowerIsBetter() {
		prob = 1 - prob
	}
	return &BayesianResult{ProbVariantBetter: prob}
}

func guardRailAlerts(control, variant model.ArmMetrics) []GuardRailAlert {
	checks := []struct {
		name          string
		control, variant float64
		lowerIsBetter bool
	}{
		{"ctr", control.CTR(), variant.CTR(), false},
		{"conversionRate", control.ConversionRate(), variant.ConversionRate(), false},
		{"revenuePerSearch", control.RevenuePerSearch(), variant.RevenuePerSearch(), false},
		{"zeroResultRate", control.ZeroResultRate(), variant.ZeroResultRate(), true},
		{"abandonmentRate", control.AbandonmentRate(), variant.AbandonmentRate(), true},
	}
	var alerts []GuardRailAlert
	for _, c := range checks {
		if alert := CheckGuardRail(c.name, c.control, c.variant, c.lowerIsBetter, guardRailThreshold); alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}
