package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cementai/plant-core/internal/features"
)

// LoadScaler reads a scaler artifact from path.
func LoadScaler(path string) (Scaler, Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read scaler %s: %w", path, err)
	}
	s, err := ParseScaler(data)
	if err != nil {
		return nil, "", fmt.Errorf("load scaler %s: %w", path, err)
	}
	return s, FingerprintOf(data), nil
}

// ParseScaler decodes a scaler artifact.
func ParseScaler(data []byte) (Scaler, error) {
	var a scalerArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	return a.build()
}

// LoadRegressor reads a regressor artifact from path.
func LoadRegressor(path string) (Regressor, Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read model %s: %w", path, err)
	}
	r, err := ParseRegressor(data)
	if err != nil {
		return nil, "", fmt.Errorf("load model %s: %w", path, err)
	}
	return r, FingerprintOf(data), nil
}

type regressorArtifact struct {
	Type         string   `json:"type"`
	ModelType    string   `json:"model_type"`
	NFeaturesIn  *int     `json:"n_features_in"`
	FeatureNames []string `json:"feature_names"`

	// linear and polynomial
	Coef            []float64 `json:"coef"`
	Intercept       float64   `json:"intercept"`
	Degree          int       `json:"degree"`
	InteractionOnly bool      `json:"interaction_only"`
	IncludeBias     *bool     `json:"include_bias"`

	// tree ensembles
	Trees        []Tree   `json:"trees"`
	Init         float64  `json:"init"`
	LearningRate *float64 `json:"learning_rate"`
}

// defaultModelTypes are the names reported when the artifact carries none.
var defaultModelTypes = map[string]string{
	"linear":            "LinearRegression",
	"polynomial":        "PolynomialRegression",
	"random_forest":     "RandomForestRegressor",
	"gradient_boosting": "GradientBoostingRegressor",
}

// ParseRegressor decodes a regressor artifact and validates its shape.
func ParseRegressor(data []byte) (Regressor, error) {
	var a regressorArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}

	name, ok := defaultModelTypes[a.Type]
	if !ok {
		return nil, fmt.Errorf("%w: model %q", ErrUnknownType, a.Type)
	}
	if a.ModelType != "" {
		name = a.ModelType
	}
	if a.NFeaturesIn != nil && *a.NFeaturesIn != features.Count {
		return nil, fmt.Errorf("model expects %d features, want %d", *a.NFeaturesIn, features.Count)
	}
	if err := checkFeatureNames(a.FeatureNames); err != nil {
		return nil, err
	}

	switch a.Type {
	case "linear":
		if err := checkLen("coef", a.Coef); err != nil {
			return nil, err
		}
		return &Linear{Coef: a.Coef, Intercept: a.Intercept, name: name}, nil

	case "polynomial":
		includeBias := true
		if a.IncludeBias != nil {
			includeBias = *a.IncludeBias
		}
		return newPolynomial(features.Count, a.Degree, a.InteractionOnly, includeBias, a.Coef, a.Intercept, name)

	case "random_forest":
		if err := validateTrees(a.Trees); err != nil {
			return nil, err
		}
		return &Forest{Trees: a.Trees, NFeatures: features.Count, name: name}, nil

	default: // gradient_boosting
		if err := validateTrees(a.Trees); err != nil {
			return nil, err
		}
		lr := 0.1
		if a.LearningRate != nil {
			lr = *a.LearningRate
		}
		return &GradientBoosting{
			Init:         a.Init,
			LearningRate: lr,
			Trees:        a.Trees,
			NFeatures:    features.Count,
			name:         name,
		}, nil
	}
}

func validateTrees(trees []Tree) error {
	if len(trees) == 0 {
		return fmt.Errorf("ensemble has no trees")
	}
	for i := range trees {
		if err := trees[i].validate(features.Count); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}
