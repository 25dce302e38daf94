package experiment

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/flapjack/flapjack/internal/model"
)

// RatioSample aliases model.RatioSample for brevity within this package.
type RatioSample = model.RatioSample

// cupedMinMatchedUsers is the minimum number of users with both a
// pre-experiment covariate and an in-experiment sample, in BOTH arms,
// required before CUPED is attempted. Below this, the covariance estimate
// is too noisy to trust.
const cupedMinMatchedUsers = 30

// guardRailThreshold is the relative-regression magnitude (20%) that flags
// a secondary metric even when the primary metric looks fine.
const guardRailThreshold = 0.20

// srmPValueThreshold is the significance level below which an observed
// traffic split is flagged as a sample ratio mismatch.
const srmPValueThreshold = 0.001

// significanceAlpha is the two-sided significance level for the primary
// metric's readout test.
const significanceAlpha = 0.05

// StatResult is the outcome of a two-arm significance test, oriented so
// that a positive z-score always means "variant is better" regardless of
// which raw direction the underlying metric moves in (see orientForMetric).
type StatResult struct {
	ZScore               float64
	PValue               float64
	Confidence           float64
	Significant          bool
	RelativeImprovement  float64
	AbsoluteImprovement  float64
	Winner               string // "control" | "variant" | ""
}

// orientForMetric flips the sign conventions of r when metric prefers a
// lower raw value (zero_result_rate, abandonment_rate), so "variant wins"
// consistently means "variant is the metric we'd rather ship".
func orientForMetric(r StatResult, metric model.PrimaryMetric) StatResult {
	if !metric.LowerIsBetter() {
		return r
	}
	r.ZScore = -r.ZScore
	r.RelativeImprovement = -r.RelativeImprovement
	r.AbsoluteImprovement = -r.AbsoluteImprovement
	if r.Significant {
		switch r.Winner {
		case "variant":
			r.Winner = "control"
		case "control":
			r.Winner = "variant"
		}
	}
	return r
}

// DeltaMethodZTest compares two arms' ratio metrics (e.g. CTR, conversion
// rate) given per-user (numerator, denominator) samples, using the delta
// method to approximate the variance of the ratio-of-means estimator
// rather than treating each user's rate as an independent observation
// (which double-counts users with more denominator mass).
func DeltaMethodZTest(control, variant []RatioSample) StatResult {
	rc, varC, nc := ratioAndVariance(control)
	rv, varV, nv := ratioAndVariance(variant)
	if nc == 0 || nv == 0 {
		return StatResult{}
	}

	se := math.Sqrt(varC/float64(nc) + varV/float64(nv))
	var z float64
	if se > 0 {
		z = (rv - rc) / se
	}
	pValue := twoSidedNormalP(z)
	significant := pValue < significanceAlpha

	result := StatResult{
		ZScore:              z,
		PValue:              pValue,
		Confidence:          1 - pValue,
		Significant:         significant,
		AbsoluteImprovement: rv - rc,
	}
	if rc != 0 {
		result.RelativeImprovement = (rv - rc) / rc
	}
	if significant {
		if z > 0 {
			result.Winner = "variant"
		} else {
			result.Winner = "control"
		}
	}
	return result
}

// ratioAndVariance computes the ratio-of-means estimate R = sum(num)/sum(den)
// and its delta-method variance approximation over n per-user samples.
func ratioAndVariance(samples []RatioSample) (ratio, variance float64, n int) {
	num := make([]float64, 0, len(samples))
	den := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Denominator <= 0 {
			continue
		}
		num = append(num, s.Numerator)
		den = append(den, s.Denominator)
	}
	n = len(num)
	if n == 0 {
		return 0, 0, 0
	}
	meanNum := stat.Mean(num, nil)
	meanDen := stat.Mean(den, nil)
	if meanDen == 0 {
		return 0, 0, n
	}
	ratio = meanNum / meanDen
	if n < 2 {
		return ratio, 0, n
	}
	varNum := stat.Variance(num, nil)
	varDen := stat.Variance(den, nil)
	covND := stat.Covariance(num, den, nil)
	variance = (varNum - 2*ratio*covND + ratio*ratio*varDen) / (meanDen * meanDen)
	if variance < 0 {
		variance = 0
	}
	return ratio, variance, n
}

// WelchTTest compares two arms' per-user revenue samples with Welch's
// unequal-variance t-test, used for revenue_per_search where the
// delta-method ratio estimator doesn't apply (there is no natural
// denominator per user beyond "did they search").
func WelchTTest(control, variant []float64) StatResult {
	if len(control) < 2 || len(variant) < 2 {
		return StatResult{}
	}
	meanC, varC := stat.MeanVariance(control, nil)
	meanV, varV := stat.MeanVariance(variant, nil)
	nc, nv := float64(len(control)), float64(len(variant))

	se := math.Sqrt(varC/nc + varV/nv)
	var t float64
	if se > 0 {
		t = (meanV - meanC) / se
	}

	df := welchSatterthwaiteDF(varC, nc, varV, nv)
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pValue := 2 * (1 - tDist.CDF(math.Abs(t)))
	significant := pValue < significanceAlpha

	result := StatResult{
		ZScore:              t,
		PValue:              pValue,
		Confidence:          1 - pValue,
		Significant:         significant,
		AbsoluteImprovement: meanV - meanC,
	}
	if meanC != 0 {
		result.RelativeImprovement = (meanV - meanC) / meanC
	}
	if significant {
		if t > 0 {
			result.Winner = "variant"
		} else {
			result.Winner = "control"
		}
	}
	return result
}

func welchSatterthwaiteDF(varA float64, nA float64, varB float64, nB float64) float64 {
	if varA == 0 && varB == 0 {
		return nA + nB - 2
	}
	num := math.Pow(varA/nA+varB/nB, 2)
	den := math.Pow(varA/nA, 2)/(nA-1) + math.Pow(varB/nB, 2)/(nB-1)
	if den == 0 {
		return nA + nB - 2
	}
	return num / den
}

func twoSidedNormalP(z float64) float64 {
	n := distuv.Normal{Mu: 0, Sigma: 1}
	return 2 * (1 - n.CDF(math.Abs(z)))
}

// BetaBinomialProbBGreaterA returns P(p_B > p_A) under independent
// Beta(success+1, failures+1) posteriors for two binomial rates (a
// uniform Beta(1,1) prior), computed by direct numerical
// integration of the two posterior densities rather than the closed-form
// incomplete-beta summation, since distuv.Beta already exposes Prob/CDF.
func BetaBinomialProbBGreaterA(aSuccess, aTotal, bSuccess, bTotal int64) float64 {
	if aTotal <= 0 || bTotal <= 0 {
		return 0.5
	}
	distA := distuv.Beta{Alpha: float64(aSuccess) + 1, Beta: float64(aTotal-aSuccess) + 1}
	distB := distuv.Beta{Alpha: float64(bSuccess) + 1, Beta: float64(bTotal-bSuccess) + 1}

	const steps = 2000
	dx := 1.0 / steps
	var prob float64
	for i := 0; i < steps; i++ {
		x := (float64(i) + 0.5) * dx
		prob += distA.Prob(x) * (1 - distB.CDF(x)) * dx
	}
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}
	return prob
}

// CheckSampleRatioMismatch runs a chi-square goodness-of-fit test of the
// observed control/variant split against the configured trafficSplit,
// flagging an SRM when the mismatch is significant at srmPValueThreshold.
func CheckSampleRatioMismatch(controlN, variantN int64, trafficSplit float64) bool {
	total := controlN + variantN
	if total == 0 {
		return false
	}
	expectedVariant := float64(total) * trafficSplit
	expectedControl := float64(total) * (1 - trafficSplit)
	if expectedControl == 0 || expectedVariant == 0 {
		return false
	}
	chiSq := math.Pow(float64(controlN)-expectedControl, 2)/expectedControl +
		math.Pow(float64(variantN)-expectedVariant, 2)/expectedVariant

	chiDist := distuv.ChiSquared{K: 1}
	pValue := 1 - chiDist.CDF(chiSq)
	return pValue < srmPValueThreshold
}

// GuardRailAlert flags a secondary metric that regressed beyond threshold
// in the variant arm, independent of whether the primary metric is
// significant.
type GuardRailAlert struct {
	MetricName    string
	ControlValue  float64
	VariantValue  float64
	DropPct       float64
}

// CheckGuardRail compares control and variant values for one named metric
// and returns an alert if the variant regressed by more than threshold,
// oriented by lowerIsBetter.
func CheckGuardRail(name string, control, variant float64, lowerIsBetter bool, threshold float64) *GuardRailAlert {
	if control == 0 {
		return nil
	}
	delta := (variant - control) / control
	regressed := delta
	if lowerIsBetter {
		regressed = -delta
	}
	if regressed >= -threshold {
		return nil
	}
	return &GuardRailAlert{
		MetricName:   name,
		ControlValue: control,
		VariantValue: variant,
		DropPct:      -regressed,
	}
}

// CUPEDAdjust applies CUPED variance reduction to per-user ratio samples:
// Y_adj = Y - theta*(X - X_bar), where X is each user's pre-experiment
// covariate value and theta = Cov(Y, X) / Var(X). Users without a matched
// covariate are passed through unadjusted.
func CUPEDAdjust(samples []RatioSample, ids []string, covariates map[string]float64) []RatioSample {
	if len(samples) != len(ids) {
		return samples
	}
	var ys, xs []float64
	for i, id := range ids {
		if samples[i].Denominator <= 0 {
			continue
		}
		x, ok := covariates[id]
		if !ok {
			continue
		}
		ys = append(ys, samples[i].Numerator/samples[i].Denominator)
		xs = append(xs, x)
	}
	if len(xs) < cupedMinMatchedUsers {
		return samples
	}
	varX := stat.Variance(xs, nil)
	if varX == 0 {
		return samples
	}
	theta := stat.Covariance(ys, xs, nil) / varX
	xBar := stat.Mean(xs, nil)

	adjusted := make([]RatioSample, len(samples))
	copy(adjusted, samples)
	for i, id := range ids {
		x, ok := covariates[id]
		if !ok || samples[i].Denominator <= 0 {
			continue
		}
		rate := samples[i].Numerator / samples[i].Denominator
		adjustedRate := rate - theta*(x-xBar)
		adjusted[i] = RatioSample{Numerator: adjustedRate * samples[i].Denominator, Denominator: samples[i].Denominator}
	}
	return adjusted
}

// RatioVariance is the sample variance of the per-user rate
// (numerator/denominator) over one arm's samples; tryCUPEDAdjustment sums it
// over both arms for its safety check.
func RatioVariance(samples []RatioSample) float64 {
	var rates []float64
	for _, s := range samples {
		if s.Denominator > 0 {
			rates = append(rates, s.Numerator/s.Denominator)
		}
	}
	if len(rates) < 2 {
		return 0
	}
	return stat.Variance(rates, nil)
}
