package model

import (
	"fmt"

	"github.com/cementai/plant-core/internal/features"
)

// StandardScaler computes (x - mean) / scale per feature.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

func (s *StandardScaler) Type() string { return "standard" }

func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

// MinMaxScaler computes x * scale + min per feature.
type MinMaxScaler struct {
	Min   []float64
	Scale []float64
}

func (s *MinMaxScaler) Type() string { return "minmax" }

func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Min) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), len(s.Min))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*s.Scale[i] + s.Min[i]
	}
	return out, nil
}

type scalerArtifact struct {
	Type         string    `json:"type"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	Min          []float64 `json:"min"`
	FeatureNames []string  `json:"feature_names"`
}

func (a *scalerArtifact) build() (Scaler, error) {
	if err := checkFeatureNames(a.FeatureNames); err != nil {
		return nil, err
	}
	switch a.Type {
	case "standard", "":
		if err := checkLen("mean", a.Mean); err != nil {
			return nil, err
		}
		if err := checkLen("scale", a.Scale); err != nil {
			return nil, err
		}
		return &StandardScaler{Mean: a.Mean, Scale: a.Scale}, nil
	case "minmax":
		if err := checkLen("min", a.Min); err != nil {
			return nil, err
		}
		if err := checkLen("scale", a.Scale); err != nil {
			return nil, err
		}
		return &MinMaxScaler{Min: a.Min, Scale: a.Scale}, nil
	default:
		return nil, fmt.Errorf("%w: scaler %q", ErrUnknownType, a.Type)
	}
}

func checkLen(field string, v []float64) error {
	if len(v) != features.Count {
		return fmt.Errorf("%s has %d values, want %d", field, len(v), features.Count)
	}
	return nil
}

// checkFeatureNames rejects artifacts fitted on a different column order.
func checkFeatureNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	if len(names) != features.Count {
		return fmt.Errorf("feature_names has %d entries, want %d", len(names), features.Count)
	}
	for i, n := range names {
		if n != features.Names[i] {
			return fmt.Errorf("feature_names[%d] is %q, want %q", i, n, features.Names[i])
		}
	}
	return nil
}
