package patient

import (
	"strconv"
	"strings"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
)

const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"

	// HighRiskThreshold is the score above which a patient is high risk.
	HighRiskThreshold = 70
	// MediumRiskThreshold is the lowest medium-risk score.
	MediumRiskThreshold = 40
	// AlertRiskThreshold is the score above which a high-risk alert fires.
	AlertRiskThreshold = 80

	maxRiskScore = 100
)

var riskConditions = []string{"diabetes", "hypertension", "heart disease", "cancer"}

// ComputeRiskScore derives a 0-100 score from age, conditions and vitals.
// It fails only on a malformed blood pressure.
func ComputeRiskScore(p *Patient) (int, error) {
	score := 0

	switch {
	case p.Age > 65:
		score += 20
	case p.Age > 50:
		score += 10
	}

	for _, c := range p.Conditions {
		lc := strings.ToLower(c)
		for _, risk := range riskConditions {
			if strings.Contains(lc, risk) {
				score += 15
				break
			}
		}
	}

	systolic, diastolic, err := ParseBloodPressure(p.Vitals.BloodPressure)
	if err != nil {
		return 0, err
	}
	if systolic > 140 || diastolic > 90 {
		score += 15
	}
	if p.Vitals.HeartRate > 100 || p.Vitals.HeartRate < 60 {
		score += 10
	}
	if p.Vitals.OxygenSaturation < 95 {
		score += 20
	}

	if score > maxRiskScore {
		score = maxRiskScore
	}
	return score, nil
}

// ParseBloodPressure splits "systolic/diastolic" into two integers.
func ParseBloodPressure(bp string) (systolic, diastolic int, err error) {
	parts := strings.Split(strings.TrimSpace(bp), "/")
	if len(parts) != 2 {
		return 0, 0, apperr.Validation("malformed blood pressure %q", bp)
	}
	systolic, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, apperr.Validation("malformed blood pressure %q", bp)
	}
	diastolic, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, apperr.Validation("malformed blood pressure %q", bp)
	}
	return systolic, diastolic, nil
}

// RiskLevel buckets a score: high above 70, medium from 40 to 70, low below 40.
func RiskLevel(score int) string {
	switch {
	case score > HighRiskThreshold:
		return RiskHigh
	case score >= MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}
