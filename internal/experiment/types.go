package experiment

// ArmResponse is the per-arm slice of an experiment's results payload.
type ArmResponse struct {
	Name             string  `json:"name"`
	Searches         int64   `json:"searches"`
	Clicks           int64   `json:"clicks"`
	Conversions      int64   `json:"conversions"`
	CTR              float64 `json:"ctr"`
	ConversionRate   float64 `json:"conversionRate"`
	RevenuePerSearch float64 `json:"revenuePerSearch"`
}

// GateResponse reports whether a readout has collected enough data to be
// trusted.
type GateResponse struct {
	MinimumNReached bool    `json:"minimumNReached"`
	ReadyToRead     bool    `json:"readyToRead"`
	RequiredPerArm  int64   `json:"requiredPerArm"`
	ProgressPct     float64 `json:"progressPct"`
	ElapsedDays     float64 `json:"elapsedDays"`
}

// SignificanceResponse is the frequentist half of a readout.
type SignificanceResponse struct {
	ZScore              float64 `json:"zScore"`
	PValue              float64 `json:"pValue"`
	Confidence          float64 `json:"confidence"`
	Significant         bool    `json:"significant"`
	RelativeImprovement float64 `json:"relativeImprovement"`
	Winner              string  `json:"winner,omitempty"`
}

// BayesianResponse is the Bayesian half of a readout.
type BayesianResponse struct {
	ProbVariantBetter float64 `json:"probVariantBetter"`
}

// GuardRailAlertResponse flags a secondary metric's regression.
type GuardRailAlertResponse struct {
	MetricName   string  `json:"metricName"`
	ControlValue float64 `json:"controlValue"`
	VariantValue float64 `json:"variantValue"`
	DropPct      float64 `json:"dropPct"`
}

// ResultsResponse is the full GET .../results payload for one experiment.
type ResultsResponse struct {
	ExperimentID    string                   `json:"experimentId"`
	Status          string                   `json:"status"`
	Control         ArmResponse              `json:"control"`
	Variant         ArmResponse              `json:"variant"`
	Gate            GateResponse             `json:"gate"`
	SRMDetected     bool                     `json:"srmDetected"`
	Bayesian        *BayesianResponse        `json:"bayesian,omitempty"`
	Significance    *SignificanceResponse    `json:"significance,omitempty"`
	Recommendation  string                   `json:"recommendation,omitempty"`
	CUPEDApplied    bool                     `json:"cupedApplied"`
	GuardRailAlerts []GuardRailAlertResponse `json:"guardRailAlerts,omitempty"`
}

// ToResponse flattens a Readout plus raw arm metrics into the wire shape.
func ToResponse(experimentID, status string, control, variant ArmResponse, r Readout) ResultsResponse {
	resp := ResultsResponse{
		ExperimentID: experimentID,
		Status:       status,
		Control:      control,
		Variant:      variant,
		Gate: GateResponse{
			MinimumNReached: r.Gate.MinimumNReached,
			ReadyToRead:     r.Gate.ReadyToRead,
			RequiredPerArm:  r.SampleEstimate.PerArm,
			ProgressPct:     r.ProgressPct,
			ElapsedDays:     r.ElapsedDays,
		},
		SRMDetected:  r.SRMDetected,
		CUPEDApplied: r.CUPEDApplied,
	}
	if r.Bayesian != nil {
		resp.Bayesian = &BayesianResponse{ProbVariantBetter: r.Bayesian.ProbVariantBetter}
	}
	if r.Significance != nil {
		resp.Recommendation = r.Significance.Recommendation
		if r.Significance.Stat.PValue != 0 || r.Significance.Stat.Significant {
			s := r.Significance.Stat
			resp.Significance = &SignificanceResponse{
				ZScore:              s.ZScore,
				PValue:              s.PValue,
				Confidence:          s.Confidence,
				Significant:         s.Significant,
				RelativeImprovement: s.RelativeImprovement,
				Winner:              s.Winner,
			}
		}
	}
	for _, a := range r.GuardRailAlerts {
		resp.GuardRailAlerts = append(resp.GuardRailAlerts, GuardRailAlertResponse{
			MetricName:   a.MetricName,
			ControlValue: a.ControlValue,
			VariantValue: a.VariantValue,
			DropPct:      a.DropPct,
		})
	}
	return resp
}
