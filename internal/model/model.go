// Package model loads the exported feature scaler and efficiency regressor
// and evaluates them on a feature vector.
package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Scaler maps raw feature values into the space the regressor was fitted in.
type Scaler interface {
	Transform(x []float64) ([]float64, error)
	Type() string
}

// Regressor predicts the efficiency percentage from a scaled feature vector.
type Regressor interface {
	Predict(ctx context.Context, x []float64) (float64, error)
	// Type is the model type name reported to clients.
	Type() string
}

// Fingerprint identifies the exact bytes an artifact was loaded from.
type Fingerprint string

// FingerprintOf returns the hex SHA-256 of data.
func FingerprintOf(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Short returns the first 12 hex characters, enough for logs.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

var (
	// ErrDimension is returned when a vector does not have one value per feature.
	ErrDimension = errors.New("feature vector has wrong dimension")
	// ErrUnknownType is returned for an artifact whose type is not supported.
	ErrUnknownType = errors.New("unknown artifact type")
)
