package models

import (
	"encoding/json"
	"time"
)

// RangeViolation reports a feature outside its operating window
type RangeViolation struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    int     `json:"step"` // process step the feature belongs to
}

// Prediction is the outcome of one efficiency prediction
type Prediction struct {
	ID               string             `json:"id"`
	Prediction       float64            `json:"prediction"`
	RawPrediction    float64            `json:"raw_prediction"`
	FeaturesReceived int                `json:"features_received"`
	ModelType        string             `json:"model_type"`
	ScalerUsed       bool               `json:"scaler_used"`
	Cached           bool               `json:"cached"`
	OutOfRange       []RangeViolation   `json:"out_of_range,omitempty"`
	Features         map[string]float64 `json:"features"`
	Timestamp        time.Time          `json:"timestamp"`
}

// Clamped reports whether the raw model output fell outside [0, 100]
func (p *Prediction) Clamped() bool {
	return p.RawPrediction != p.Prediction
}

// OptimalSolution is the rank-1 record of the optimizer output file
type OptimalSolution struct {
	Rank           int             `json:"rank"`
	Solution       json.RawMessage `json:"solution"` // verbatim entry
	Parameters     map[string]any  `json:"parameters"`
	TotalSolutions int             `json:"total_solutions"`
	SourcePath     string          `json:"source_path"`
	LoadedAt       time.Time       `json:"loaded_at"`
}

// Efficiency returns the solution's efficiency, falling back to
// predicted_efficiency as the optimizer output uses either key.
func (s *OptimalSolution) Efficiency() (float64, bool) {
	for _, key := range []string{"efficiency", "predicted_efficiency"} {
		if v, ok := s.Parameters[key].(float64); ok {
			return v, true
		}
	}
	return 0, false
}
