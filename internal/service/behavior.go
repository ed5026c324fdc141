package service

import "github.com/noah-isme/sma-conduct-api/internal/models"

// ClassifyBehavior maps a score to its behaviour label.
func ClassifyBehavior(score float64) models.BehaviorLabel {
	switch {
	case score >= 10.0:
		return models.BehaviorExceptional
	case score >= 9.0:
		return models.BehaviorExcellent
	case score >= 7.0:
		return models.BehaviorGood
	case score >= 5.0:
		return models.BehaviorRegular
	case score >= 2.0:
		return models.BehaviorInsufficient
	default:
		return models.BehaviorIncompatible
	}
}
