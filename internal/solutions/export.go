package solutions

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cementai/plant-core/internal/features"
	"github.com/cementai/plant-core/pkg/models"
)

// labels are the human-readable feature names used in exports.
var labels = map[string]string{
	"FeedSize":               "Feed Size",
	"ProductSize":            "Product Size",
	"MillPowerConsumption1":  "Mill Power Consumption 1",
	"MillInletTemperature":   "Mill Inlet Temperature",
	"BlendingEfficiency":     "Blending Efficiency",
	"C5Temperature":          "C5 Temperature",
	"HeatRecoveryEfficiency": "Heat Recovery Efficiency",
	"FuelFlowRate":           "Fuel Flow Rate",
	"PrimaryFuelFlow":        "Primary Fuel Flow",
	"SecondaryAirTemp":       "Secondary Air Temperature",
	"KilnDrivePower":         "Kiln Drive Power",
	"ClinkerInletTemp":       "Clinker Inlet Temperature",
	"CoolingAirFlow":         "Cooling Air Flow",
	"MillPowerConsumption2":  "Mill Power Consumption 2",
	"PackingRate":            "Packing Rate",
}

// Label returns the display label of a solution key, which may be a
// positional alias or a feature name.
func Label(key string) string {
	name, _ := features.Resolve(key)
	if l, ok := labels[name]; ok {
		return l
	}
	return key
}

// Response builds the JSON body served for a solution.
func Response(sol *models.OptimalSolution, now time.Time) map[string]any {
	return map[string]any{
		"success":         true,
		"rank":            sol.Rank,
		"solution":        sol.Solution,
		"parameters":      sol.Parameters,
		"total_solutions": sol.TotalSolutions,
		"timestamp":       now.Format(time.RFC3339Nano),
	}
}

// ToStruct builds the protobuf form of Response.
func ToStruct(sol *models.OptimalSolution, now time.Time) (*structpb.Struct, error) {
	var solution map[string]any
	if err := json.Unmarshal(sol.Solution, &solution); err != nil {
		return nil, fmt.Errorf("decode solution: %w", err)
	}
	body := Response(sol, now)
	body["solution"] = solution
	return structpb.NewStruct(body)
}

// skipInCSV are the non-feature keys left out of the feature rows.
var skipInCSV = map[string]bool{
	"efficiency":           true,
	"predicted_efficiency": true,
	"rank":                 true,
}

// WriteCSV writes one "Feature,Optimal Value" row per solution field in
// file order, then the maximum efficiency.
func WriteCSV(w io.Writer, sol *models.OptimalSolution) error {
	var record map[string]any
	if err := json.Unmarshal(sol.Solution, &record); err != nil {
		return fmt.Errorf("decode solution: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Feature", "Optimal Value"}); err != nil {
		return err
	}
	for _, key := range fieldOrder(sol.Solution) {
		if skipInCSV[key] {
			continue
		}
		if err := cw.Write([]string{Label(key), formatValue(record[key])}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	efficiency := "N/A"
	if eff, ok := sol.Efficiency(); ok {
		efficiency = formatValue(eff) + "%"
	}
	_, err := fmt.Fprintf(w, "\nMaximum Efficiency,%s\n", efficiency)
	return err
}
