package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxRequestIDLen bounds client-supplied request IDs.
const maxRequestIDLen = 128

// GenerateRequestID generates a request ID (random UUID)
func GenerateRequestID() string {
	return uuid.NewString()
}

// GeneratePredictionID generates a prediction ID with a timestamp prefix
func GeneratePredictionID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	id := uuid.New()
	return fmt.Sprintf("pred-%s-%x", timestamp, id[:4])
}

// ValidRequestID reports whether a client-supplied request ID can be
// echoed back and logged as is.
func ValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r < 0x21 || r > 0x7e
	})
}
