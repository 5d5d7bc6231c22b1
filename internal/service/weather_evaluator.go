package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

const (
	gustFactor         = 1.5
	gustPenalty        = 20.0
	imcPenalty         = 30.0
	severePenalty      = 50.0
	componentWeight    = 50.0
	imcVisibilityLimit = 3.0
	imcCloudCoverLimit = 80.0
	maxSeverity        = 100.0
)

var severeKeywords = []string{"thunderstorm", "tornado", "severe", "extreme"}

// EvaluateWeather compares a snapshot with the minimums of a training level.
// runwayHeading is degrees true; nil means unknown and triggers the
// worst-case wind assumption. The function performs no I/O.
func EvaluateWeather(snapshot models.WeatherSnapshot, minimums models.TrainingLevelMinimums, runwayHeading *float64) models.EvaluationResult {
	e := evaluation{}

	if snapshot.Visibility < minimums.Visibility {
		deficit := minimums.Visibility - snapshot.Visibility
		e.add(models.ViolationVisibility, ratio(deficit, minimums.Visibility)*100,
			"Visibility %.1fsm below minimum %.1fsm", snapshot.Visibility, minimums.Visibility)
	}

	if minimums.Ceiling != nil && snapshot.Ceiling != nil && *snapshot.Ceiling < *minimums.Ceiling {
		deficit := *minimums.Ceiling - *snapshot.Ceiling
		e.add(models.ViolationCeiling, ratio(deficit, *minimums.Ceiling)*100,
			"Ceiling %.0fft below minimum %.0fft", *snapshot.Ceiling, *minimums.Ceiling)
	}

	if snapshot.WindSpeed > minimums.MaxWindSpeed {
		excess := snapshot.WindSpeed - minimums.MaxWindSpeed
		e.add(models.ViolationWind, ratio(excess, minimums.MaxWindSpeed)*100,
			"Wind %.0fkt exceeds maximum %.0fkt", snapshot.WindSpeed, minimums.MaxWindSpeed)
	}

	if snapshot.WindGust != nil && *snapshot.WindGust > minimums.MaxWindSpeed*gustFactor {
		e.add(models.ViolationWind, gustPenalty,
			"Gusts %.0fkt exceed %.0fkt", *snapshot.WindGust, minimums.MaxWindSpeed*gustFactor)
	}

	wind := windComponentsFor(snapshot, runwayHeading)
	if wind != nil {
		if wind.Crosswind > minimums.MaxCrosswind {
			excess := wind.Crosswind - minimums.MaxCrosswind
			e.add(models.ViolationWind, math.Max(0, ratio(excess, minimums.MaxCrosswind)*componentWeight),
				"Crosswind %.0fkt exceeds maximum %.0fkt", wind.Crosswind, minimums.MaxCrosswind)
		}
		if wind.Tailwind > minimums.MaxTailwind {
			excess := wind.Tailwind - minimums.MaxTailwind
			e.add(models.ViolationWind, math.Max(0, ratio(excess, minimums.MaxTailwind)*componentWeight),
				"Tailwind %.0fkt exceeds maximum %.0fkt", wind.Tailwind, minimums.MaxTailwind)
		}
	}

	if !minimums.IMCAllowed && snapshot.Visibility < imcVisibilityLimit && snapshot.CloudCover > imcCloudCoverLimit {
		e.add(models.ViolationIMC, imcPenalty,
			"IMC conditions (visibility %.1fsm, cloud cover %.0f%%) not permitted", snapshot.Visibility, snapshot.CloudCover)
	}

	if keyword := matchSevere(snapshot.Conditions); keyword != "" {
		e.add(models.ViolationSevere, severePenalty, "Severe weather reported: %s", keyword)
	}

	return models.EvaluationResult{
		IsSafe:        len(e.violations) == 0,
		Violations:    e.violations,
		Categories:    e.categories,
		SeverityScore: math.Min(maxSeverity, math.Max(0, e.severity)),
		Wind:          wind,
	}
}

// WindComponents decomposes a wind of speed knots from direction (degrees
// true) against a runway heading.
func WindComponents(speed, direction, runwayHeading float64) models.WindComponents {
	diff := math.Mod(math.Abs(direction-runwayHeading), 360)
	if diff > 180 {
		diff = 360 - diff
	}
	rad := diff * math.Pi / 180
	headwind := speed * math.Cos(rad)
	return models.WindComponents{
		Crosswind: math.Abs(speed * math.Sin(rad)),
		Headwind:  headwind,
		Tailwind:  math.Max(0, -headwind),
	}
}

func windComponentsFor(snapshot models.WeatherSnapshot, runwayHeading *float64) *models.WindComponents {
	if runwayHeading == nil {
		return &models.WindComponents{
			Crosswind: snapshot.WindSpeed,
			Headwind:  0,
			Tailwind:  snapshot.WindSpeed,
			Estimated: true,
		}
	}
	if snapshot.WindDirection == nil {
		return nil
	}
	wc := WindComponents(snapshot.WindSpeed, *snapshot.WindDirection, *runwayHeading)
	return &wc
}

func matchSevere(conditions string) string {
	lower := strings.ToLower(conditions)
	for _, keyword := range severeKeywords {
		if strings.Contains(lower, keyword) {
			return keyword
		}
	}
	return ""
}

// ratio guards against zero limits: any excess over a zero limit counts as 100%.
func ratio(delta, limit float64) float64 {
	if limit <= 0 {
		return 1
	}
	return delta / limit
}

type evaluation struct {
	violations []string
	categories []models.ViolationCategory
	severity   float64
}

func (e *evaluation) add(category models.ViolationCategory, severity float64, format string, args ...interface{}) {
	e.violations = append(e.violations, fmt.Sprintf(format, args...))
	e.severity += severity
	for _, c := range e.categories {
		if c == category {
			return
		}
	}
	e.categories = append(e.categories, category)
}
