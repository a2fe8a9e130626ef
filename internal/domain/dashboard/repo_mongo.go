package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/docstore"
)

type dashboardRepoMongo struct {
	patients      *mongo.Collection
	appointments  *mongo.Collection
	prescriptions *mongo.Collection
	analyses      *mongo.Collection
	vitals        *mongo.Collection
}

func NewRepoMongo(store *docstore.Store) Repository {
	return &dashboardRepoMongo{
		patients:      store.Collection(docstore.Patients),
		appointments:  store.Collection(docstore.Appointments),
		prescriptions: store.Collection(docstore.Prescriptions),
		analyses:      store.Collection(docstore.Analyses),
		vitals:        store.Collection(docstore.VitalReadings),
	}
}

type countQuery struct {
	coll   *mongo.Collection
	filter bson.M
	dst    *int
}

func (r *dashboardRepoMongo) Stats(ctx context.Context, doctorID uuid.UUID, today, monthStart time.Time, highRiskAbove int) (*Stats, error) {
	doc := doctorID.String()
	var s Stats
	queries := []countQuery{
		{r.patients, bson.M{"doctor_id": doc, "is_active": true}, &s.TotalPatients},
		{r.appointments, bson.M{"doctor_id": doc, "date": today, "status": "scheduled"}, &s.TodayAppointments},
		{r.patients, bson.M{"doctor_id": doc, "is_active": true, "risk_score": bson.M{"$gt": highRiskAbove}}, &s.HighRiskPatients},
		{r.appointments, bson.M{"doctor_id": doc, "status": "completed", "created_at": bson.M{"$gte": monthStart}}, &s.ThisMonthConsultations},
		{r.analyses, bson.M{"doctor_id": doc, "status": "pending"}, &s.PendingAnalyses},
		{r.prescriptions, bson.M{"doctor_id": doc, "status": bson.M{"$in": bson.A{"pending", "sent"}}}, &s.ActivePrescriptions},
	}
	for _, q := range queries {
		n, err := q.coll.CountDocuments(ctx, q.filter)
		if err != nil {
			return nil, err
		}
		*q.dst = int(n)
	}
	return &s, nil
}

type patientBriefDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	Email     string `bson:"email"`
	Phone     string `bson:"phone"`
	RiskScore int    `bson:"risk_score"`
}

// briefs resolves patient ids with a single $in lookup.
func (r *dashboardRepoMongo) briefs(ctx context.Context, doctorID uuid.UUID, ids []string) (map[string]PatientBrief, error) {
	out := make(map[string]PatientBrief, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.patients.Find(ctx, bson.M{"doctor_id": doctorID.String(), "_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1, "email": 1, "phone": 1, "risk_score": 1}))
	if err != nil {
		return nil, err
	}
	var docs []patientBriefDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = PatientBrief{ID: uuid.MustParse(d.ID), Name: d.Name, Email: d.Email, Phone: d.Phone, RiskScore: d.RiskScore}
	}
	return out, nil
}

type appointmentRowDoc struct {
	ID        string    `bson:"_id"`
	PatientID string    `bson:"patient_id"`
	Date      time.Time `bson:"date"`
	Time      string    `bson:"time"`
	Duration  int       `bson:"duration"`
	Type      string    `bson:"type"`
	Status    string    `bson:"status"`
	MeetLink  string    `bson:"meet_link"`
	CreatedAt time.Time `bson:"created_at"`
}

func (r *dashboardRepoMongo) findAppointments(ctx context.Context, doctorID uuid.UUID, filter bson.M, sort bson.D, limit int) ([]AppointmentRow, error) {
	filter["doctor_id"] = doctorID.String()
	cur, err := r.appointments.Find(ctx, filter, docstore.Paginate(sort, limit, 0))
	if err != nil {
		return nil, err
	}
	var docs []appointmentRowDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.PatientID)
	}
	patients, err := r.briefs(ctx, doctorID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]AppointmentRow, 0, len(docs))
	for _, d := range docs {
		p, ok := patients[d.PatientID]
		if !ok {
			p = PatientBrief{ID: uuid.MustParse(d.PatientID)}
		}
		out = append(out, AppointmentRow{
			ID: uuid.MustParse(d.ID), Patient: p, Date: dayOf(d.Date), Time: d.Time, Duration: d.Duration,
			Type: d.Type, Status: d.Status, MeetLink: d.MeetLink, CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *dashboardRepoMongo) RecentAppointments(ctx context.Context, doctorID uuid.UUID, limit int) ([]AppointmentRow, error) {
	return r.findAppointments(ctx, doctorID, bson.M{}, bson.D{{Key: "created_at", Value: -1}}, limit)
}

func (r *dashboardRepoMongo) UpcomingAppointments(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]AppointmentRow, error) {
	today, hhmm := slotOf(now)
	return r.findAppointments(ctx, doctorID, bson.M{
		"status": "scheduled",
		"$or": bson.A{
			bson.M{"date": bson.M{"$gt": today}},
			bson.M{"date": today, "time": bson.M{"$gte": hhmm}},
		},
	}, bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}}, limit)
}

func (r *dashboardRepoMongo) OverdueAppointments(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]AppointmentRow, error) {
	today, hhmm := slotOf(now)
	return r.findAppointments(ctx, doctorID, bson.M{
		"status": "scheduled",
		"$or": bson.A{
			bson.M{"date": bson.M{"$lt": today}},
			bson.M{"date": today, "time": bson.M{"$lt": hhmm}},
		},
	}, bson.D{{Key: "date", Value: -1}, {Key: "time", Value: -1}}, limit)
}

type analysisRowDoc struct {
	ID        string    `bson:"_id"`
	PatientID string    `bson:"patient_id"`
	Type      string    `bson:"type"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
}

func (r *dashboardRepoMongo) findAnalyses(ctx context.Context, doctorID uuid.UUID, filter bson.M, sort bson.D, limit int) ([]AnalysisRow, error) {
	filter["doctor_id"] = doctorID.String()
	cur, err := r.analyses.Find(ctx, filter, docstore.Paginate(sort, limit, 0))
	if err != nil {
		return nil, err
	}
	var docs []analysisRowDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.PatientID)
	}
	patients, err := r.briefs(ctx, doctorID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]AnalysisRow, 0, len(docs))
	for _, d := range docs {
		out = append(out, AnalysisRow{
			ID: uuid.MustParse(d.ID), PatientID: uuid.MustParse(d.PatientID), PatientName: patients[d.PatientID].Name,
			Type: d.Type, Status: d.Status, CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *dashboardRepoMongo) RecentAnalyses(ctx context.Context, doctorID uuid.UUID, limit int) ([]AnalysisRow, error) {
	return r.findAnalyses(ctx, doctorID, bson.M{}, bson.D{{Key: "created_at", Value: -1}}, limit)
}

func (r *dashboardRepoMongo) PendingAnalysesBefore(ctx context.Context, doctorID uuid.UUID, before time.Time, limit int) ([]AnalysisRow, error) {
	return r.findAnalyses(ctx, doctorID, bson.M{"status": "pending", "created_at": bson.M{"$lt": before}},
		bson.D{{Key: "created_at", Value: 1}}, limit)
}

type prescriptionRowDoc struct {
	ID          string        `bson:"_id"`
	PatientID   string        `bson:"patient_id"`
	Medications []interface{} `bson:"medications"`
	Status      string        `bson:"status"`
	ValidUntil  time.Time     `bson:"valid_until"`
	CreatedAt   time.Time     `bson:"created_at"`
}

func (r *dashboardRepoMongo) findPrescriptions(ctx context.Context, doctorID uuid.UUID, filter bson.M, sort bson.D, limit int) ([]PrescriptionRow, error) {
	filter["doctor_id"] = doctorID.String()
	cur, err := r.prescriptions.Find(ctx, filter, docstore.Paginate(sort, limit, 0))
	if err != nil {
		return nil, err
	}
	var docs []prescriptionRowDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.PatientID)
	}
	patients, err := r.briefs(ctx, doctorID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]PrescriptionRow, 0, len(docs))
	for _, d := range docs {
		out = append(out, PrescriptionRow{
			ID: uuid.MustParse(d.ID), PatientID: uuid.MustParse(d.PatientID), PatientName: patients[d.PatientID].Name,
			Medications: len(d.Medications), Status: d.Status, ValidUntil: d.ValidUntil.UTC(), CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (r *dashboardRepoMongo) RecentPrescriptions(ctx context.Context, doctorID uuid.UUID, limit int) ([]PrescriptionRow, error) {
	return r.findPrescriptions(ctx, doctorID, bson.M{}, bson.D{{Key: "created_at", Value: -1}}, limit)
}

func (r *dashboardRepoMongo) ExpiredPrescriptions(ctx context.Context, doctorID uuid.UUID, now time.Time, limit int) ([]PrescriptionRow, error) {
	return r.findPrescriptions(ctx, doctorID, bson.M{
		"valid_until": bson.M{"$lt": now},
		"status":      bson.M{"$nin": bson.A{"expired", "filled"}},
	}, bson.D{{Key: "valid_until", Value: -1}}, limit)
}

func (r *dashboardRepoMongo) HighRiskPatients(ctx context.Context, doctorID uuid.UUID, above, limit int) ([]PatientRow, error) {
	cur, err := r.patients.Find(ctx,
		bson.M{"doctor_id": doctorID.String(), "is_active": true, "risk_score": bson.M{"$gt": above}},
		docstore.Paginate(bson.D{{Key: "risk_score", Value: -1}, {Key: "updated_at", Value: -1}}, limit, 0))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID        string    `bson:"_id"`
		Name      string    `bson:"name"`
		RiskScore int       `bson:"risk_score"`
		UpdatedAt time.Time `bson:"updated_at"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]PatientRow, 0, len(docs))
	for _, d := range docs {
		out = append(out, PatientRow{ID: uuid.MustParse(d.ID), Name: d.Name, RiskScore: d.RiskScore, UpdatedAt: d.UpdatedAt.UTC()})
	}
	return out, nil
}

func (r *dashboardRepoMongo) AppointmentCounts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[time.Time]int, error) {
	cur, err := r.appointments.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctor_id": doctorID.String(), "date": bson.M{"$gte": from, "$lte": to}}}},
		{{Key: "$group", Value: bson.M{"_id": "$date", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	var groups []struct {
		Date  time.Time `bson:"_id"`
		Count int       `bson:"count"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	out := make(map[time.Time]int, len(groups))
	for _, g := range groups {
		out[dayOf(g.Date)] = g.Count
	}
	return out, nil
}

func (r *dashboardRepoMongo) VitalSamples(ctx context.Context, doctorID uuid.UUID, patientID *uuid.UUID, since time.Time) ([]VitalSample, error) {
	filter := bson.M{"doctor_id": doctorID.String(), "recorded_at": bson.M{"$gte": since}}
	if patientID != nil {
		filter["patient_id"] = patientID.String()
	}
	cur, err := r.vitals.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		RecordedAt       time.Time `bson:"recorded_at"`
		BloodPressure    string    `bson:"blood_pressure"`
		HeartRate        int       `bson:"heart_rate"`
		Temperature      float64   `bson:"temperature"`
		OxygenSaturation int       `bson:"oxygen_saturation"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]VitalSample, 0, len(docs))
	for _, d := range docs {
		out = append(out, VitalSample{
			RecordedAt: d.RecordedAt.UTC(), BloodPressure: d.BloodPressure, HeartRate: d.HeartRate,
			Temperature: d.Temperature, OxygenSaturation: d.OxygenSaturation,
		})
	}
	return out, nil
}
