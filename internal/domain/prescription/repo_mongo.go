package prescription

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/docstore"
)

type medicationDoc struct {
	Name         string `bson:"name"`
	Dosage       string `bson:"dosage"`
	Frequency    string `bson:"frequency"`
	Duration     string `bson:"duration"`
	Instructions string `bson:"instructions,omitempty"`
}

type prescriptionDoc struct {
	ID              string          `bson:"_id"`
	DoctorID        string          `bson:"doctor_id"`
	PatientID       string          `bson:"patient_id"`
	Number          string          `bson:"prescription_number"`
	Medications     []medicationDoc `bson:"medications"`
	Status          string          `bson:"status"`
	ValidUntil      time.Time       `bson:"valid_until"`
	FilledDate      *time.Time      `bson:"filled_date,omitempty"`
	Pharmacy        string          `bson:"pharmacy,omitempty"`
	Notes           string          `bson:"notes,omitempty"`
	PharmacistNotes string          `bson:"pharmacist_notes,omitempty"`
	CreatedAt       time.Time       `bson:"created_at"`
	UpdatedAt       time.Time       `bson:"updated_at"`
}

func toPrescriptionDoc(p *Prescription) prescriptionDoc {
	meds := make([]medicationDoc, len(p.Medications))
	for i, m := range p.Medications {
		meds[i] = medicationDoc(m)
	}
	return prescriptionDoc{
		ID: p.ID.String(), DoctorID: p.DoctorID.String(), PatientID: p.PatientID.String(),
		Number: p.Number, Medications: meds, Status: p.Status, ValidUntil: p.ValidUntil,
		FilledDate: p.FilledDate, Pharmacy: p.Pharmacy, Notes: p.Notes, PharmacistNotes: p.PharmacistNotes,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d prescriptionDoc) model() *Prescription {
	meds := make([]Medication, len(d.Medications))
	for i, m := range d.Medications {
		meds[i] = Medication(m)
	}
	p := &Prescription{
		ID: uuid.MustParse(d.ID), DoctorID: uuid.MustParse(d.DoctorID), PatientID: uuid.MustParse(d.PatientID),
		Number: d.Number, Medications: meds, Status: d.Status, ValidUntil: d.ValidUntil.UTC(),
		Pharmacy: d.Pharmacy, Notes: d.Notes, PharmacistNotes: d.PharmacistNotes,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.FilledDate != nil {
		filled := d.FilledDate.UTC()
		p.FilledDate = &filled
	}
	return p
}

type prescriptionRepoMongo struct {
	coll     *mongo.Collection
	patients *mongo.Collection
}

func NewRepoMongo(store *docstore.Store) Repository {
	return &prescriptionRepoMongo{
		coll:     store.Collection(docstore.Prescriptions),
		patients: store.Collection(docstore.Patients),
	}
}

func (r *prescriptionRepoMongo) Create(ctx context.Context, p *Prescription) error {
	_, err := r.coll.InsertOne(ctx, toPrescriptionDoc(p))
	if docstore.IsDuplicateKey(err, docstore.IndexPrescriptionNumber) {
		return apperr.Wrap(apperr.ErrUniqueness, err, "prescription number already exists")
	}
	return err
}

func (r *prescriptionRepoMongo) GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Prescription, error) {
	var d prescriptionDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String(), "doctor_id": doctorID.String()}).Decode(&d)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, apperr.NotFound("prescription not found")
		}
		return nil, err
	}
	return d.model(), nil
}

func (r *prescriptionRepoMongo) Update(ctx context.Context, p *Prescription, fromStatus string) error {
	doc := toPrescriptionDoc(p)
	set := bson.M{
		"medications":      doc.Medications,
		"status":           doc.Status,
		"valid_until":      doc.ValidUntil,
		"filled_date":      doc.FilledDate,
		"pharmacy":         doc.Pharmacy,
		"notes":            doc.Notes,
		"pharmacist_notes": doc.PharmacistNotes,
		"updated_at":       doc.UpdatedAt,
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": doc.ID, "doctor_id": doc.DoctorID, "status": fromStatus}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.InvalidState("prescription changed concurrently")
	}
	return nil
}

func (r *prescriptionRepoMongo) MarkExpired(ctx context.Context, doctorID, id uuid.UUID, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id.String(), "doctor_id": doctorID.String(), "status": bson.M{"$in": bson.A{StatusPending, StatusSent}}},
		bson.M{"$set": bson.M{"status": StatusExpired, "updated_at": at}})
	return err
}

func (r *prescriptionRepoMongo) DeletePending(ctx context.Context, doctorID, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx,
		bson.M{"_id": id.String(), "doctor_id": doctorID.String(), "status": StatusPending})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("prescription not found")
	}
	return nil
}

// matchingPatients returns the ids of the doctor's patients whose name
// matches pattern.
func (r *prescriptionRepoMongo) matchingPatients(ctx context.Context, doctorID uuid.UUID, pattern string) (bson.A, error) {
	cur, err := r.patients.Find(ctx,
		bson.M{"doctor_id": doctorID.String(), "name": bson.M{"$regex": pattern, "$options": "i"}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make(bson.A, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (r *prescriptionRepoMongo) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Prescription, int, error) {
	q := bson.M{"doctor_id": doctorID.String()}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.PatientID != nil {
		q["patient_id"] = filter.PatientID.String()
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := regexp.QuoteMeta(s)
		ids, err := r.matchingPatients(ctx, doctorID, pattern)
		if err != nil {
			return nil, 0, err
		}
		q["$or"] = []bson.M{
			{"medications.name": bson.M{"$regex": pattern, "$options": "i"}},
			{"patient_id": bson.M{"$in": ids}},
		}
	}

	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	cur, err := r.coll.Find(ctx, q, docstore.Paginate(bson.D{{Key: "created_at", Value: -1}}, limit, offset))
	if err != nil {
		return nil, 0, err
	}
	var docs []prescriptionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	items := make([]*Prescription, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.model())
	}
	return items, int(total), nil
}

func (r *prescriptionRepoMongo) Stats(ctx context.Context, doctorID uuid.UUID, monthStart time.Time) (*Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctor_id": doctorID.String()}}},
		{{Key: "$facet", Value: bson.M{
			"total":      bson.A{bson.M{"$count": "count"}},
			"this_month": bson.A{bson.M{"$match": bson.M{"created_at": bson.M{"$gte": monthStart}}}, bson.M{"$count": "count"}},
			"active":     bson.A{bson.M{"$match": bson.M{"status": bson.M{"$in": bson.A{StatusPending, StatusSent}}}}, bson.M{"$count": "count"}},
			"expired":    bson.A{bson.M{"$match": bson.M{"status": StatusExpired}}, bson.M{"$count": "count"}},
			"by_status":  bson.A{bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}, bson.M{"$sort": bson.M{"_id": 1}}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	type counted struct {
		ID    string `bson:"_id"`
		Count int    `bson:"count"`
	}
	var facets []struct {
		Total     []counted `bson:"total"`
		ThisMonth []counted `bson:"this_month"`
		Active    []counted `bson:"active"`
		Expired   []counted `bson:"expired"`
		ByStatus  []counted `bson:"by_status"`
	}
	if err := cur.All(ctx, &facets); err != nil {
		return nil, err
	}

	s := &Stats{ByStatus: []CountByKey{}}
	if len(facets) == 0 {
		return s, nil
	}
	f := facets[0]
	first := func(c []counted) int {
		if len(c) == 0 {
			return 0
		}
		return c[0].Count
	}
	s.TotalPrescriptions = first(f.Total)
	s.ThisMonthPrescriptions = first(f.ThisMonth)
	s.ActivePrescriptions = first(f.Active)
	s.ExpiredPrescriptions = first(f.Expired)
	for _, c := range f.ByStatus {
		s.ByStatus = append(s.ByStatus, CountByKey{Key: c.ID, Count: c.Count})
	}
	return s, nil
}
