package service

import "github.com/noah-isme/flightwx-scheduler/internal/models"

func floatPtr(v float64) *float64 { return &v }

var defaultMinimums = map[models.TrainingLevel]models.TrainingLevelMinimums{
	models.TrainingLevelStudent: {
		Visibility:   5,
		Ceiling:      floatPtr(3000),
		MaxWindSpeed: 10,
		MaxCrosswind: 8,
		MaxTailwind:  8,
		IMCAllowed:   false,
	},
	models.TrainingLevelPrivate: {
		Visibility:   3,
		Ceiling:      floatPtr(1000),
		MaxWindSpeed: 20,
		MaxCrosswind: 15,
		MaxTailwind:  10,
		IMCAllowed:   false,
	},
	models.TrainingLevelInstrument: {
		Visibility:   1,
		Ceiling:      floatPtr(500),
		MaxWindSpeed: 25,
		MaxCrosswind: 20,
		MaxTailwind:  10,
		IMCAllowed:   true,
	},
	models.TrainingLevelCommercial: {
		Visibility:   3,
		Ceiling:      floatPtr(1000),
		MaxWindSpeed: 25,
		MaxCrosswind: 20,
		MaxTailwind:  10,
		IMCAllowed:   true,
	},
}

// MinimumsFor returns the weather minimums for level. Unknown levels get the
// most restrictive (student) table.
func MinimumsFor(level models.TrainingLevel) models.TrainingLevelMinimums {
	if m, ok := defaultMinimums[level]; ok {
		return m
	}
	return defaultMinimums[models.TrainingLevelStudent]
}
