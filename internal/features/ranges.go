package features

import "github.com/cementai/plant-core/pkg/models"

// Range is the operating window of one feature and the process step it
// belongs to.
type Range struct {
	Min  float64
	Max  float64
	Step int
}

// Ranges are the operating windows the plant simulator accepts.
var Ranges = map[string]Range{
	"FeedSize":               {Min: 914.00, Max: 1200.00, Step: 1},
	"ProductSize":            {Min: 19.00, Max: 22.20, Step: 1},
	"MillPowerConsumption1":  {Min: 1600.00, Max: 1922.00, Step: 1},
	"MillInletTemperature":   {Min: 96.00, Max: 120.00, Step: 1},
	"BlendingEfficiency":     {Min: 88.40, Max: 95.00, Step: 2},
	"C5Temperature":          {Min: 850.00, Max: 891.00, Step: 2},
	"HeatRecoveryEfficiency": {Min: 85.00, Max: 90.00, Step: 2},
	"FuelFlowRate":           {Min: 4.00, Max: 5.90, Step: 3},
	"PrimaryFuelFlow":        {Min: 8.00, Max: 10.00, Step: 3},
	"SecondaryAirTemp":       {Min: 908.00, Max: 1100.00, Step: 3},
	"KilnDrivePower":         {Min: 800.00, Max: 1200.00, Step: 4},
	"ClinkerInletTemp":       {Min: 1250.00, Max: 1400.00, Step: 4},
	"CoolingAirFlow":         {Min: 437.00, Max: 600.00, Step: 5},
	"MillPowerConsumption2":  {Min: 2052.00, Max: 2500.00, Step: 6},
	"PackingRate":            {Min: 10.80, Max: 15.00, Step: 6},
}

// CheckRanges returns the features of v outside their operating window,
// in input order.
func CheckRanges(v Vector) []models.RangeViolation {
	var out []models.RangeViolation
	for i, name := range Names {
		r, ok := Ranges[name]
		if !ok {
			continue
		}
		if v[i] < r.Min || v[i] > r.Max {
			out = append(out, models.RangeViolation{
				Feature: name,
				Value:   v[i],
				Min:     r.Min,
				Max:     r.Max,
				Step:    r.Step,
			})
		}
	}
	return out
}
