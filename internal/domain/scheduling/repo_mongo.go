package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/docstore"
)

type appointmentDoc struct {
	ID               string     `bson:"_id"`
	DoctorID         string     `bson:"doctor_id"`
	PatientID        string     `bson:"patient_id"`
	Date             time.Time  `bson:"date"`
	Time             string     `bson:"time"`
	Duration         int        `bson:"duration"`
	Type             string     `bson:"type"`
	Status           string     `bson:"status"`
	MeetLink         string     `bson:"meet_link,omitempty"`
	Notes            string     `bson:"notes,omitempty"`
	Symptoms         []string   `bson:"symptoms"`
	Diagnosis        string     `bson:"diagnosis,omitempty"`
	Treatment        string     `bson:"treatment,omitempty"`
	FollowUpRequired bool       `bson:"follow_up_required"`
	FollowUpDate     *time.Time `bson:"follow_up_date,omitempty"`
	CreatedAt        time.Time  `bson:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at"`
}

func toAppointmentDoc(a *Appointment) appointmentDoc {
	return appointmentDoc{
		ID: a.ID.String(), DoctorID: a.DoctorID.String(), PatientID: a.PatientID.String(),
		Date: a.Date, Time: a.Time, Duration: a.Duration, Type: a.Type, Status: a.Status,
		MeetLink: a.MeetLink, Notes: a.Notes, Symptoms: a.Symptoms, Diagnosis: a.Diagnosis,
		Treatment: a.Treatment, FollowUpRequired: a.FollowUpRequired, FollowUpDate: a.FollowUpDate,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (d appointmentDoc) model() *Appointment {
	symptoms := d.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	return &Appointment{
		ID: uuid.MustParse(d.ID), DoctorID: uuid.MustParse(d.DoctorID), PatientID: uuid.MustParse(d.PatientID),
		Date: DayOf(d.Date), Time: d.Time, Duration: d.Duration, Type: d.Type, Status: d.Status,
		MeetLink: d.MeetLink, Notes: d.Notes, Symptoms: symptoms, Diagnosis: d.Diagnosis,
		Treatment: d.Treatment, FollowUpRequired: d.FollowUpRequired, FollowUpDate: d.FollowUpDate,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type appointmentRepoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(store *docstore.Store) Repository {
	return &appointmentRepoMongo{coll: store.Collection(docstore.Appointments)}
}

func mongoSlotErr(err error) error {
	if docstore.IsDuplicateKey(err, docstore.IndexAppointmentSlot) {
		return apperr.Wrap(apperr.ErrSlotConflict, err, "time slot already booked")
	}
	return err
}

func (r *appointmentRepoMongo) findOne(ctx context.Context, filter bson.M) (*Appointment, error) {
	var d appointmentDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, apperr.NotFound("appointment not found")
		}
		return nil, err
	}
	return d.model(), nil
}

func (r *appointmentRepoMongo) find(ctx context.Context, filter bson.M, limit, offset int) ([]*Appointment, error) {
	sort := bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}}
	cur, err := r.coll.Find(ctx, filter, docstore.Paginate(sort, limit, offset))
	if err != nil {
		return nil, err
	}
	var docs []appointmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*Appointment, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.model())
	}
	return items, nil
}

func (r *appointmentRepoMongo) Create(ctx context.Context, a *Appointment) error {
	_, err := r.coll.InsertOne(ctx, toAppointmentDoc(a))
	return mongoSlotErr(err)
}

func (r *appointmentRepoMongo) GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	return r.findOne(ctx, bson.M{"_id": id.String(), "doctor_id": doctorID.String()})
}

func (r *appointmentRepoMongo) FindScheduledAt(ctx context.Context, doctorID uuid.UUID, date time.Time, hhmm string, excludeID uuid.UUID) (*Appointment, error) {
	return r.findOne(ctx, bson.M{
		"_id":       bson.M{"$ne": excludeID.String()},
		"doctor_id": doctorID.String(),
		"date":      date,
		"time":      hhmm,
		"status":    StatusScheduled,
	})
}

func (r *appointmentRepoMongo) Update(ctx context.Context, a *Appointment) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": a.ID.String(), "doctor_id": a.DoctorID.String()}, toAppointmentDoc(a))
	if err != nil {
		return mongoSlotErr(err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoMongo) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String(), "doctor_id": doctorID.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoMongo) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Appointment, int, error) {
	q := bson.M{"doctor_id": doctorID.String()}
	if filter.Date != nil {
		q["date"] = *filter.Date
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.Type != "" {
		q["type"] = filter.Type
	}
	if filter.PatientID != nil {
		q["patient_id"] = filter.PatientID.String()
	}
	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.find(ctx, q, limit, offset)
	return items, int(total), err
}

func (r *appointmentRepoMongo) ListBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return r.find(ctx, bson.M{"doctor_id": doctorID.String(), "date": bson.M{"$gte": from, "$lte": to}}, 0, 0)
}

func (r *appointmentRepoMongo) Stats(ctx context.Context, doctorID uuid.UUID, today time.Time) (*Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctor_id": doctorID.String()}}},
		{{Key: "$facet", Value: bson.M{
			"today":     bson.A{bson.M{"$match": bson.M{"date": today}}, bson.M{"$count": "count"}},
			"total":     bson.A{bson.M{"$count": "count"}},
			"upcoming":  bson.A{bson.M{"$match": bson.M{"date": bson.M{"$gte": today}, "status": StatusScheduled}}, bson.M{"$count": "count"}},
			"by_status": bson.A{bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}, bson.M{"$sort": bson.M{"_id": 1}}},
			"by_type":   bson.A{bson.M{"$group": bson.M{"_id": "$type", "count": bson.M{"$sum": 1}}}, bson.M{"$sort": bson.M{"_id": 1}}},
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
		Today    []counted `bson:"today"`
		Total    []counted `bson:"total"`
		Upcoming []counted `bson:"upcoming"`
		ByStatus []counted `bson:"by_status"`
		ByType   []counted `bson:"by_type"`
	}
	if err := cur.All(ctx, &facets); err != nil {
		return nil, err
	}

	s := &Stats{ByStatus: []CountByKey{}, ByType: []CountByKey{}}
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
	s.TodayAppointments = first(f.Today)
	s.TotalAppointments = first(f.Total)
	s.UpcomingAppointments = first(f.Upcoming)
	for _, c := range f.ByStatus {
		s.ByStatus = append(s.ByStatus, CountByKey{Key: c.ID, Count: c.Count})
	}
	for _, c := range f.ByType {
		s.ByType = append(s.ByType, CountByKey{Key: c.ID, Count: c.Count})
	}
	return s, nil
}
