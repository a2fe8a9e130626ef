package prescription

import (
	"bytes"
	"fmt"
	"regexp"
	"text/template"
	"time"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

// Document is a rendered ordonnance ready to be served as an attachment.
type Document struct {
	FileName string
	Content  []byte
}

type documentData struct {
	Prescription *Prescription
	Patient      ref.PatientSummary
	Doctor       ref.DoctorSummary
	SignedAt     time.Time
}

const rule = "═══════════════════════════════════════════════════════════════"

var documentTmpl = template.Must(template.New("ordonnance").Funcs(template.FuncMap{
	"date":    func(t time.Time) string { return t.Format("02/01/2006") },
	"inc":     func(i int) int { return i + 1 },
	"rule":    func() string { return rule },
	"default": orDefault,
}).Parse(`ORDONNANCE MÉDICALE

{{rule}}

Patient: {{.Patient.Name}}
Email: {{.Patient.Email}}
Téléphone: {{.Patient.Phone}}
Âge: {{.Patient.Age}} ans

Date: {{date .Prescription.CreatedAt}}
Numéro d'ordonnance: {{.Prescription.Number}}
Pharmacie: {{default .Prescription.Pharmacy "Non spécifiée"}}

{{rule}}

MÉDICAMENTS PRESCRITS:
{{range $i, $m := .Prescription.Medications}}
{{inc $i}}. {{$m.Name}}
   Dosage: {{$m.Dosage}}
   Fréquence: {{$m.Frequency}}
   Durée du traitement: {{$m.Duration}}
{{- if $m.Instructions}}
   Instructions: {{$m.Instructions}}
{{- end}}
{{end}}
{{rule}}

INSTRUCTIONS PARTICULIÈRES:
{{default .Prescription.Notes "Aucune instruction particulière"}}

{{rule}}

Dr. {{.Doctor.FullName}}
{{.Doctor.Specialty}}
Licence: {{.Doctor.License}}
Signature électronique: {{.SignedAt.Format "2006-01-02T15:04:05Z07:00"}}

Valide jusqu'au: {{date .Prescription.ValidUntil}}

{{rule}}

Cette ordonnance a été générée électroniquement par App4Doctors
`))

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

var spaceRun = regexp.MustCompile(`\s+`)

// RenderDocument renders the plain-text ordonnance for p.
func RenderDocument(p *Prescription, patient ref.PatientSummary, doctor ref.DoctorSummary, now time.Time) (*Document, error) {
	var buf bytes.Buffer
	err := documentTmpl.Execute(&buf, documentData{Prescription: p, Patient: patient, Doctor: doctor, SignedAt: now})
	if err != nil {
		return nil, fmt.Errorf("render prescription: %w", err)
	}
	return &Document{
		FileName: fmt.Sprintf("Ordonnance_%s_%s.txt", spaceRun.ReplaceAllString(patient.Name, "_"), p.Number),
		Content:  buf.Bytes(),
	}, nil
}
