package service

import (
	"math"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

const meetsMinimumsReason = "meets minimums"

var trainingMultipliers = map[models.TrainingLevel]float64{
	models.TrainingLevelStudent:    1.2,
	models.TrainingLevelPrivate:    1.1,
	models.TrainingLevelInstrument: 1.0,
	models.TrainingLevelCommercial: 0.9,
}

type categoryWeight struct {
	weight float64
	reason string
}

var categoryWeights = map[models.ViolationCategory]categoryWeight{
	models.ViolationWind:       {weight: 5, reason: "wind exceeds training limits"},
	models.ViolationVisibility: {weight: 4, reason: "visibility below minimums"},
	models.ViolationCeiling:    {weight: 3, reason: "ceiling below minimums"},
	models.ViolationSevere:     {weight: 15, reason: "severe weather reported"},
	models.ViolationIMC:        {weight: 10, reason: "instrument conditions for a VFR-only level"},
}

// ScoreCancellationRisk converts an evaluation into a cancellation
// probability for the given training level.
//
// The severity score already prices the first (primary) violation category;
// every further category compounds the risk by its flat weight.
func ScoreCancellationRisk(result models.EvaluationResult, level models.TrainingLevel) models.CancellationAssessment {
	if result.IsSafe {
		return models.CancellationAssessment{
			Probability: 0,
			RiskLevel:   models.RiskLevelLow,
			Reasons:     []string{meetsMinimumsReason},
		}
	}

	multiplier, ok := trainingMultipliers[level]
	if !ok {
		multiplier = 1.0
	}
	probability := result.SeverityScore * multiplier

	reasons := make([]string, 0, len(result.Categories))
	for i, category := range result.Categories {
		w, known := categoryWeights[category]
		if !known {
			continue
		}
		reasons = append(reasons, w.reason)
		if i > 0 {
			probability += w.weight
		}
	}

	rounded := int(math.Round(math.Min(100, math.Max(0, probability))))
	return models.CancellationAssessment{
		Probability: rounded,
		RiskLevel:   RiskLevelFor(rounded),
		Reasons:     reasons,
	}
}

// RiskLevelFor buckets a probability.
func RiskLevelFor(probability int) models.RiskLevel {
	switch {
	case probability <= 30:
		return models.RiskLevelLow
	case probability <= 60:
		return models.RiskLevelModerate
	case probability <= 85:
		return models.RiskLevelHigh
	default:
		return models.RiskLevelExtreme
	}
}

// BookingStatusFor maps a probability to the status callers persist.
func BookingStatusFor(probability int) models.BookingStatus {
	if probability > 0 {
		return models.BookingStatusAtRisk
	}
	return models.BookingStatusScheduled
}
