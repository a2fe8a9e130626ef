package patient

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/docstore"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/ref"
)

type vitalsDoc struct {
	BloodPressure    string    `bson:"blood_pressure"`
	HeartRate        int       `bson:"heart_rate"`
	Temperature      float64   `bson:"temperature"`
	OxygenSaturation int       `bson:"oxygen_saturation"`
	LastUpdated      time.Time `bson:"last_updated"`
}

type patientDoc struct {
	ID              string     `bson:"_id"`
	DoctorID        string     `bson:"doctor_id"`
	Name            string     `bson:"name"`
	Email           string     `bson:"email"`
	Phone           string     `bson:"phone"`
	Age             int        `bson:"age"`
	Gender          string     `bson:"gender"`
	BloodType       string     `bson:"blood_type,omitempty"`
	Conditions      []string   `bson:"conditions"`
	Allergies       []string   `bson:"allergies"`
	Vitals          vitalsDoc  `bson:"vitals"`
	RiskScore       int        `bson:"risk_score"`
	LastVisit       time.Time  `bson:"last_visit"`
	NextAppointment *time.Time `bson:"next_appointment,omitempty"`
	Notes           string     `bson:"notes,omitempty"`
	IsActive        bool       `bson:"is_active"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

func toPatientDoc(p *Patient) patientDoc {
	return patientDoc{
		ID: p.ID.String(), DoctorID: p.DoctorID.String(),
		Name: p.Name, Email: p.Email, Phone: p.Phone, Age: p.Age, Gender: p.Gender, BloodType: p.BloodType,
		Conditions: p.Conditions, Allergies: p.Allergies,
		Vitals: vitalsDoc{
			BloodPressure: p.Vitals.BloodPressure, HeartRate: p.Vitals.HeartRate,
			Temperature: p.Vitals.Temperature, OxygenSaturation: p.Vitals.OxygenSaturation,
			LastUpdated: p.Vitals.LastUpdated,
		},
		RiskScore: p.RiskScore, LastVisit: p.LastVisit, NextAppointment: p.NextAppointment,
		Notes: p.Notes, IsActive: p.IsActive, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d patientDoc) model() *Patient {
	return &Patient{
		ID: uuid.MustParse(d.ID), DoctorID: uuid.MustParse(d.DoctorID),
		Name: d.Name, Email: d.Email, Phone: d.Phone, Age: d.Age, Gender: d.Gender, BloodType: d.BloodType,
		Conditions: nonNil(d.Conditions), Allergies: nonNil(d.Allergies),
		Vitals: Vitals{
			BloodPressure: d.Vitals.BloodPressure, HeartRate: d.Vitals.HeartRate,
			Temperature: d.Vitals.Temperature, OxygenSaturation: d.Vitals.OxygenSaturation,
			LastUpdated: d.Vitals.LastUpdated.UTC(),
		},
		RiskScore: d.RiskScore, LastVisit: d.LastVisit.UTC(), NextAppointment: d.NextAppointment,
		Notes: d.Notes, IsActive: d.IsActive, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type patientRepoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(store *docstore.Store) Repository {
	return &patientRepoMongo{coll: store.Collection(docstore.Patients)}
}

func mongoWriteErr(err error) error {
	if docstore.IsDuplicateKey(err, docstore.IndexPatientEmail) {
		return apperr.Uniqueness("patient with this email already exists")
	}
	return err
}

func (r *patientRepoMongo) findOne(ctx context.Context, filter bson.M) (*Patient, error) {
	var d patientDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, apperr.NotFound("patient not found")
		}
		return nil, err
	}
	return d.model(), nil
}

func (r *patientRepoMongo) Create(ctx context.Context, p *Patient) error {
	_, err := r.coll.InsertOne(ctx, toPatientDoc(p))
	return mongoWriteErr(err)
}

func (r *patientRepoMongo) GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Patient, error) {
	return r.findOne(ctx, bson.M{"_id": id.String(), "doctor_id": doctorID.String(), "is_active": true})
}

func (r *patientRepoMongo) FindActiveByEmail(ctx context.Context, doctorID uuid.UUID, email string) (*Patient, error) {
	return r.findOne(ctx, bson.M{"doctor_id": doctorID.String(), "email": NormalizeEmail(email), "is_active": true})
}

func (r *patientRepoMongo) Update(ctx context.Context, p *Patient) error {
	res, err := r.coll.ReplaceOne(ctx,
		bson.M{"_id": p.ID.String(), "doctor_id": p.DoctorID.String(), "is_active": true},
		toPatientDoc(p))
	if err != nil {
		return mongoWriteErr(err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoMongo) updateActive(ctx context.Context, doctorID, id uuid.UUID, set bson.M) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id.String(), "doctor_id": doctorID.String(), "is_active": true},
		bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *patientRepoMongo) SetNextAppointment(ctx context.Context, doctorID, id uuid.UUID, at time.Time) error {
	return r.updateActive(ctx, doctorID, id, bson.M{"next_appointment": at, "updated_at": time.Now().UTC()})
}

func (r *patientRepoMongo) Deactivate(ctx context.Context, doctorID, id uuid.UUID) error {
	return r.updateActive(ctx, doctorID, id, bson.M{"is_active": false, "updated_at": time.Now().UTC()})
}

func listFilter(doctorID uuid.UUID, filter ListFilter) bson.M {
	q := bson.M{"doctor_id": doctorID.String(), "is_active": true}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := regexp.QuoteMeta(s)
		q["$or"] = []bson.M{
			{"name": bson.M{"$regex": pattern, "$options": "i"}},
			{"email": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	if lo, hi, ok := RiskBounds(filter.RiskLevel); ok {
		q["risk_score"] = bson.M{"$gte": lo, "$lte": hi}
	}
	return q
}

func (r *patientRepoMongo) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Patient, int, error) {
	q := listFilter(doctorID, filter)
	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	cur, err := r.coll.Find(ctx, q, docstore.Paginate(bson.D{{Key: "last_visit", Value: -1}}, limit, offset))
	if err != nil {
		return nil, 0, err
	}
	var docs []patientDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	items := make([]*Patient, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.model())
	}
	return items, int(total), nil
}

func (r *patientRepoMongo) Stats(ctx context.Context, doctorID uuid.UUID) (*Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctor_id": doctorID.String(), "is_active": true}}},
		{{Key: "$group", Value: bson.M{
			"_id":                  nil,
			"total_patients":       bson.M{"$sum": 1},
			"average_age":          bson.M{"$avg": "$age"},
			"average_risk_score":   bson.M{"$avg": "$risk_score"},
			"high_risk_patients":   bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$gt": bson.A{"$risk_score", HighRiskThreshold}}, 1, 0}}},
			"medium_risk_patients": bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$and": bson.A{bson.M{"$gte": bson.A{"$risk_score", MediumRiskThreshold}}, bson.M{"$lte": bson.A{"$risk_score", HighRiskThreshold}}}}, 1, 0}}},
			"low_risk_patients":    bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$lt": bson.A{"$risk_score", MediumRiskThreshold}}, 1, 0}}},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		TotalPatients      int     `bson:"total_patients"`
		AverageAge         float64 `bson:"average_age"`
		AverageRiskScore   float64 `bson:"average_risk_score"`
		HighRiskPatients   int     `bson:"high_risk_patients"`
		MediumRiskPatients int     `bson:"medium_risk_patients"`
		LowRiskPatients    int     `bson:"low_risk_patients"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Stats{}, nil
	}
	s := rows[0]
	return &Stats{
		TotalPatients: s.TotalPatients, AverageAge: s.AverageAge, AverageRiskScore: s.AverageRiskScore,
		HighRiskPatients: s.HighRiskPatients, MediumRiskPatients: s.MediumRiskPatients, LowRiskPatients: s.LowRiskPatients,
	}, nil
}

func (r *patientRepoMongo) Summaries(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ref.PatientSummary, error) {
	out := make(map[uuid.UUID]ref.PatientSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	cur, err := r.coll.Find(ctx, bson.M{"doctor_id": doctorID.String(), "_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, err
	}
	var docs []patientDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		p := d.model()
		out[p.ID] = summaryOf(p)
	}
	return out, nil
}

type vitalDoc struct {
	ID               string    `bson:"_id"`
	DoctorID         string    `bson:"doctor_id"`
	PatientID        string    `bson:"patient_id"`
	BloodPressure    string    `bson:"blood_pressure"`
	HeartRate        int       `bson:"heart_rate"`
	Temperature      float64   `bson:"temperature"`
	OxygenSaturation int       `bson:"oxygen_saturation"`
	RecordedAt       time.Time `bson:"recorded_at"`
}

type vitalRepoMongo struct{ coll *mongo.Collection }

func NewVitalRepoMongo(store *docstore.Store) VitalRepository {
	return &vitalRepoMongo{coll: store.Collection(docstore.VitalReadings)}
}

func (r *vitalRepoMongo) Append(ctx context.Context, v *VitalReading) error {
	_, err := r.coll.InsertOne(ctx, vitalDoc{
		ID: v.ID.String(), DoctorID: v.DoctorID.String(), PatientID: v.PatientID.String(),
		BloodPressure: v.BloodPressure, HeartRate: v.HeartRate, Temperature: v.Temperature,
		OxygenSaturation: v.OxygenSaturation, RecordedAt: v.RecordedAt,
	})
	return err
}

func (r *vitalRepoMongo) ListByPatient(ctx context.Context, doctorID, patientID uuid.UUID, limit int) ([]*VitalReading, error) {
	cur, err := r.coll.Find(ctx,
		bson.M{"doctor_id": doctorID.String(), "patient_id": patientID.String()},
		docstore.Paginate(bson.D{{Key: "recorded_at", Value: -1}}, limit, 0))
	if err != nil {
		return nil, err
	}
	var docs []vitalDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*VitalReading, 0, len(docs))
	for _, d := range docs {
		items = append(items, &VitalReading{
			ID: uuid.MustParse(d.ID), DoctorID: uuid.MustParse(d.DoctorID), PatientID: uuid.MustParse(d.PatientID),
			BloodPressure: d.BloodPressure, HeartRate: d.HeartRate, Temperature: d.Temperature,
			OxygenSaturation: d.OxygenSaturation, RecordedAt: d.RecordedAt.UTC(),
		})
	}
	return items, nil
}
