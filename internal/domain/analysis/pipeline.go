package analysis

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
)

// Confidence bounds of the simulated processor.
const (
	MinConfidence = 0.85
	MaxConfidence = 1.0
)

var resultTemplates = map[string]Results{
	TypeBloodTest: {
		Summary: "Analyse sanguine complète montrant des valeurs globalement normales avec quelques points d'attention.",
		KeyFindings: []string{
			"Numération formule sanguine dans les normes",
			"Fonction hépatique normale",
			"Glycémie légèrement élevée",
			"Profil lipidique acceptable",
		},
		Recommendations: []string{
			"Surveiller la glycémie",
			"Maintenir une alimentation équilibrée",
			"Contrôle dans 3 mois",
		},
		AbnormalValues: []AbnormalValue{
			{Parameter: "Glycémie", Value: "1.15 g/L", Normal: "0.70-1.10 g/L", Severity: "low"},
		},
	},
	TypeECG: {
		Summary: "Électrocardiogramme montrant un rythme sinusal normal avec quelques variations mineures.",
		KeyFindings: []string{
			"Rythme sinusal régulier",
			"Fréquence cardiaque normale",
			"Pas d'anomalie majeure détectée",
		},
		Recommendations: []string{
			"Surveillance cardiaque de routine",
			"Maintenir l'activité physique",
		},
		AbnormalValues: []AbnormalValue{},
	},
}

var genericResults = Results{
	Summary:         "Analyse automatique terminée. Résultats extraits et structurés.",
	KeyFindings:     []string{"Paramètres principaux identifiés"},
	Recommendations: []string{"Consultation de suivi recommandée"},
	AbnormalValues:  []AbnormalValue{},
}

// resultsFor returns a copy of the template for analysisType.
func resultsFor(analysisType string) *Results {
	t, ok := resultTemplates[analysisType]
	if !ok {
		t = genericResults
	}
	return &Results{
		Summary:         t.Summary,
		KeyFindings:     append([]string(nil), t.KeyFindings...),
		Recommendations: append([]string(nil), t.Recommendations...),
		AbnormalValues:  append([]AbnormalValue{}, t.AbnormalValues...),
	}
}

// SimulateProcessing fills templated results, appends one processed log entry
// and moves a pending analysis to processed.
func SimulateProcessing(a *Analysis, rng *rand.Rand, now time.Time) error {
	if a.Status != StatusPending {
		return apperr.InvalidState("analysis is not in pending status")
	}
	confidence := MinConfidence + rng.Float64()*(MaxConfidence-MinConfidence)
	a.Results = resultsFor(a.Type)
	a.ProcessingLog = append(a.ProcessingLog, LogEntry{
		Timestamp:  now,
		Action:     StatusProcessed,
		Details:    "AI analysis completed",
		Confidence: confidence,
	})
	a.Status = StatusProcessed
	a.UpdatedAt = now
	return nil
}

// Review closes a processed analysis as reviewed or archived.
func Review(a *Analysis, reviewerID uuid.UUID, notes, target string, now time.Time) error {
	if target != StatusReviewed && target != StatusArchived {
		return apperr.Validation("status must be reviewed or archived")
	}
	if a.Status != StatusProcessed {
		return apperr.InvalidState("analysis must be processed before review")
	}
	reviewer := reviewerID
	reviewedAt := now
	a.Status = target
	a.ReviewedBy = &reviewer
	a.ReviewedAt = &reviewedAt
	a.ReviewNotes = notes
	a.ProcessingLog = append(a.ProcessingLog, LogEntry{
		Timestamp:  now,
		Action:     target,
		Details:    fmt.Sprintf("Analysis %s by doctor %s", target, reviewerID),
		Confidence: 1.0,
	})
	a.UpdatedAt = now
	return nil
}
