// Package features holds the input contract of the efficiency model: the
// fifteen process features, their order, their positional aliases used by
// the optimizer output and their operating windows.
package features

import (
	"strconv"
	"strings"
)

// Count is the model input dimension.
const Count = 15

// Names lists the features in model input order. The scaler and the model
// were fitted on columns in exactly this order.
var Names = [Count]string{
	"FeedSize",
	"ProductSize",
	"MillPowerConsumption1",
	"MillInletTemperature",
	"BlendingEfficiency",
	"C5Temperature",
	"HeatRecoveryEfficiency",
	"FuelFlowRate",
	"PrimaryFuelFlow",
	"SecondaryAirTemp",
	"KilnDrivePower",
	"ClinkerInletTemp",
	"CoolingAirFlow",
	"MillPowerConsumption2",
	"PackingRate",
}

var nameIndex = func() map[string]int {
	m := make(map[string]int, Count)
	for i, n := range Names {
		m[n] = i
	}
	return m
}()

// Vector is an ordered feature vector.
type Vector [Count]float64

// Slice returns a copy of v as a slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Count)
	copy(out, v[:])
	return out
}

// Map returns v keyed by feature name.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, Count)
	for i, n := range Names {
		out[n] = v[i]
	}
	return out
}

// Index returns the input position of a feature name.
func Index(name string) (int, bool) {
	i, ok := nameIndex[name]
	return i, ok
}

// Alias returns the positional key ("F1".."F15") of a feature.
func Alias(name string) (string, bool) {
	i, ok := nameIndex[name]
	if !ok {
		return "", false
	}
	return "F" + strconv.Itoa(i+1), true
}

// Resolve maps a positional key ("F1".."F15") to its feature name. Any
// other key is returned unchanged with ok=false.
func Resolve(key string) (string, bool) {
	rest, found := strings.CutPrefix(key, "F")
	if !found {
		return key, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > Count || strconv.Itoa(n) != rest {
		return key, false
	}
	return Names[n-1], true
}

// Rename converts a solution record keyed by F1..F15 into one keyed by
// feature names. Keys that are not positional aliases pass through. When a
// record holds both an alias and its feature name, the named value wins and
// the feature is reported in shadowed, in model input order.
func Rename(record map[string]any) (out map[string]any, shadowed []string) {
	out = make(map[string]any, len(record))
	for k, v := range record {
		if _, isAlias := Resolve(k); !isAlias {
			out[k] = v
		}
	}
	for i, name := range Names {
		v, ok := record["F"+strconv.Itoa(i+1)]
		if !ok {
			continue
		}
		if _, named := record[name]; named {
			shadowed = append(shadowed, name)
			continue
		}
		out[name] = v
	}
	return out, shadowed
}
