package model

import "time"

// ExperimentStatus is the lifecycle state of an experiment. The only
// permitted transitions are draft -> running (once) -> stopped -> concluded.
type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusStopped   ExperimentStatus = "stopped"
	StatusConcluded ExperimentStatus = "concluded"
)

// PrimaryMetric is the metric an experiment's significance test is computed
// against. zero_result_rate and abandonment_rate are "lower is better".
type PrimaryMetric string

const (
	MetricCTR              PrimaryMetric = "ctr"
	MetricConversionRate   PrimaryMetric = "conversion_rate"
	MetricRevenuePerSearch PrimaryMetric = "revenue_per_search"
	MetricZeroResultRate   PrimaryMetric = "zero_result_rate"
	MetricAbandonmentRate  PrimaryMetric = "abandonment_rate"
)

// LowerIsBetter reports whether a smaller value of m is the desired
// direction, per spec §4.6 step 5.
func (m PrimaryMetric) LowerIsBetter() bool {
	return m == MetricZeroResultRate || m == MetricAbandonmentRate
}

// Arm is one side of an experiment. It reshapes traffic in one of two
// mutually exclusive ways: Mode A overrides query parameters, Mode B
// redirects to a different target index.
type Arm struct {
	ID             string            `json:"id"`
	QueryOverrides map[string]string `json:"queryOverrides,omitempty"`
	IndexName      string            `json:"indexName,omitempty"`
}

// ModeB reports whether this arm redirects to another index rather than
// overriding query parameters in place.
func (a Arm) ModeB() bool { return a.IndexName != "" }

// Valid enforces the invariant that queryOverrides and indexName are never
// both set on the same arm.
func (a Arm) Valid() bool {
	return !(len(a.QueryOverrides) > 0 && a.IndexName != "")
}

// Conclusion records the outcome recorded when an experiment is concluded.
type Conclusion struct {
	Winner    string    `json:"winner,omitempty"` // "control" | "variant" | ""
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Experiment is the persisted A/B test definition.
type Experiment struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	TargetIndex       string           `json:"targetIndex"`
	Status            ExperimentStatus `json:"status"`
	TrafficSplit      float64          `json:"trafficSplit"`
	ControlArm        Arm              `json:"controlArm"`
	VariantArm        Arm              `json:"variantArm"`
	PrimaryMetric     PrimaryMetric    `json:"primaryMetric"`
	MinimumDays       int              `json:"minimumDays"`
	WinsorizationCap  *float64         `json:"winsorizationCap,omitempty"`
	Conclusion        *Conclusion      `json:"conclusion,omitempty"`
	CreationTime      time.Time        `json:"creationTime"`
	StartTime         *time.Time       `json:"startTime,omitempty"`
	StopTime          *time.Time       `json:"stopTime,omitempty"`
}

// RatioSample is a per-user (numerator, denominator) pair, e.g. (clicks,
// searches) for CTR or (conversions, searches) for conversion rate.
type RatioSample struct {
	Numerator   float64
	Denominator float64
}

// ArmMetrics is the pre-aggregated per-arm input to experiment readout.
// Produced upstream by the (out-of-scope) metrics rollup pipeline.
type ArmMetrics struct {
	Searches           int64
	Clicks             int64
	Conversions        int64
	RevenueCents       int64
	ZeroResultSearches int64                   // searches that returned nbHits == 0
	Abandonments       int64                   // searches with no click and no conversion in the session
	RatioSamples       map[string]RatioSample  // userID -> (numerator, denominator) for the primary metric
	RevenueSamples     map[string]float64      // userID -> revenue, for revenue_per_search
	DailySearches      []int64                 // searches per elapsed day; the readout does not read it
}

// CTR returns clicks/searches, or 0 if there were no searches.
func (m ArmMetrics) CTR() float64 {
	if m.Searches == 0 {
		return 0
	}
	return float64(m.Clicks) / float64(m.Searches)
}

// ConversionRate returns conversions/searches, or 0 if there were no searches.
func (m ArmMetrics) ConversionRate() float64 {
	if m.Searches == 0 {
		return 0
	}
	return float64(m.Conversions) / float64(m.Searches)
}

// RevenuePerSearch returns revenue/searches in dollars, or 0 if there were
// no searches.
func (m ArmMetrics) RevenuePerSearch() float64 {
	if m.Searches == 0 {
		return 0
	}
	return float64(m.RevenueCents) / 100.0 / float64(m.Searches)
}

// ZeroResultRate returns the fraction of searches returning no hits, or 0
// if there were no searches.
func (m ArmMetrics) ZeroResultRate() float64 {
	if m.Searches == 0 {
		return 0
	}
	return float64(m.ZeroResultSearches) / float64(m.Searches)
}

// AbandonmentRate returns the fraction of searches with neither a click nor
// a conversion, or 0 if there were no searches.
func (m ArmMetrics) AbandonmentRate() float64 {
	if m.Searches == 0 {
		return 0
	}
	return float64(m.Abandonments) / float64(m.Searches)
}
