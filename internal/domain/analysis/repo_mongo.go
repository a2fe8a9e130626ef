package analysis

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

type analysisDoc struct {
	ID            string     `bson:"_id"`
	DoctorID      string     `bson:"doctor_id"`
	PatientID     string     `bson:"patient_id"`
	Type          string     `bson:"type"`
	FileName      string     `bson:"file_name"`
	FileSize      string     `bson:"file_size"`
	FilePath      string     `bson:"file_path"`
	ContentType   string     `bson:"content_type"`
	Status        string     `bson:"status"`
	Results       *Results   `bson:"results,omitempty"`
	ProcessingLog []LogEntry `bson:"processing_log"`
	ReviewedBy    string     `bson:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `bson:"reviewed_at,omitempty"`
	ReviewNotes   string     `bson:"review_notes,omitempty"`
	Priority      string     `bson:"priority"`
	Tags          []string   `bson:"tags"`
	UploadDate    time.Time  `bson:"upload_date"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toAnalysisDoc(a *Analysis) analysisDoc {
	d := analysisDoc{
		ID: a.ID.String(), DoctorID: a.DoctorID.String(), PatientID: a.PatientID.String(),
		Type: a.Type, FileName: a.FileName, FileSize: a.FileSize, FilePath: a.FilePath,
		ContentType: a.ContentType, Status: a.Status, Results: a.Results, ProcessingLog: a.ProcessingLog,
		ReviewedAt: a.ReviewedAt, ReviewNotes: a.ReviewNotes, Priority: a.Priority, Tags: a.Tags,
		UploadDate: a.UploadDate, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
	if a.ReviewedBy != nil {
		d.ReviewedBy = a.ReviewedBy.String()
	}
	return d
}

func (d analysisDoc) model() *Analysis {
	a := &Analysis{
		ID: uuid.MustParse(d.ID), DoctorID: uuid.MustParse(d.DoctorID), PatientID: uuid.MustParse(d.PatientID),
		Type: d.Type, FileName: d.FileName, FileSize: d.FileSize, FilePath: d.FilePath,
		ContentType: d.ContentType, Status: d.Status, Results: d.Results, ProcessingLog: d.ProcessingLog,
		ReviewNotes: d.ReviewNotes, Priority: d.Priority, Tags: d.Tags,
		UploadDate: d.UploadDate.UTC(), CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
	if a.ProcessingLog == nil {
		a.ProcessingLog = []LogEntry{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if d.ReviewedBy != "" {
		if id, err := uuid.Parse(d.ReviewedBy); err == nil {
			a.ReviewedBy = &id
		}
	}
	if d.ReviewedAt != nil {
		at := d.ReviewedAt.UTC()
		a.ReviewedAt = &at
	}
	return a
}

type analysisRepoMongo struct {
	coll     *mongo.Collection
	patients *mongo.Collection
}

func NewRepoMongo(store *docstore.Store) Repository {
	return &analysisRepoMongo{
		coll:     store.Collection(docstore.Analyses),
		patients: store.Collection(docstore.Patients),
	}
}

func (r *analysisRepoMongo) Create(ctx context.Context, a *Analysis) error {
	_, err := r.coll.InsertOne(ctx, toAnalysisDoc(a))
	return err
}

func (r *analysisRepoMongo) GetByID(ctx context.Context, doctorID, id uuid.UUID) (*Analysis, error) {
	var d analysisDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String(), "doctor_id": doctorID.String()}).Decode(&d)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, apperr.NotFound("analysis not found")
		}
		return nil, err
	}
	return d.model(), nil
}

func (r *analysisRepoMongo) Update(ctx context.Context, a *Analysis, fromStatus string) error {
	d := toAnalysisDoc(a)
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": d.ID, "doctor_id": d.DoctorID, "status": fromStatus}, d)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.InvalidState("analysis changed concurrently")
	}
	return nil
}

func (r *analysisRepoMongo) Delete(ctx context.Context, doctorID, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String(), "doctor_id": doctorID.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("analysis not found")
	}
	return nil
}

func (r *analysisRepoMongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Analysis, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []analysisDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*Analysis, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.model())
	}
	return items, nil
}

func (r *analysisRepoMongo) List(ctx context.Context, doctorID uuid.UUID, filter ListFilter, limit, offset int) ([]*Analysis, int, error) {
	q := bson.M{"doctor_id": doctorID.String()}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	if filter.Type != "" {
		q["type"] = filter.Type
	}
	if filter.PatientID != nil {
		q["patient_id"] = filter.PatientID.String()
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
		cur, err := r.patients.Find(ctx, bson.M{"doctor_id": doctorID.String(), "name": pattern},
			options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return nil, 0, err
		}
		var matched []struct {
			ID string `bson:"_id"`
		}
		if err := cur.All(ctx, &matched); err != nil {
			return nil, 0, err
		}
		ids := make(bson.A, len(matched))
		for i, m := range matched {
			ids[i] = m.ID
		}
		q["$or"] = []bson.M{
			{"type": pattern},
			{"file_name": pattern},
			{"patient_id": bson.M{"$in": ids}},
		}
	}

	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.find(ctx, q, docstore.Paginate(bson.D{{Key: "upload_date", Value: -1}}, limit, offset))
	return items, int(total), err
}

func (r *analysisRepoMongo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Analysis, error) {
	return r.find(ctx,
		bson.M{"status": StatusPending, "upload_date": bson.M{"$lt": before}},
		docstore.Paginate(bson.D{{Key: "upload_date", Value: 1}}, limit, 0))
}

func (r *analysisRepoMongo) Stats(ctx context.Context, doctorID uuid.UUID, monthStart time.Time) (*Stats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"doctor_id": doctorID.String()}}},
		{{Key: "$facet", Value: bson.M{
			"total":      bson.A{bson.M{"$count": "count"}},
			"this_month": bson.A{bson.M{"$match": bson.M{"created_at": bson.M{"$gte": monthStart}}}, bson.M{"$count": "count"}},
			"pending":    bson.A{bson.M{"$match": bson.M{"status": StatusPending}}, bson.M{"$count": "count"}},
			"by_status":  bson.A{bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}, bson.M{"$sort": bson.M{"_id": 1}}},
			"by_type":    bson.A{bson.M{"$group": bson.M{"_id": "$type", "count": bson.M{"$sum": 1}}}, bson.M{"$sort": bson.M{"_id": 1}}},
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
		Pending   []counted `bson:"pending"`
		ByStatus  []counted `bson:"by_status"`
		ByType    []counted `bson:"by_type"`
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
	s.TotalAnalyses = first(f.Total)
	s.ThisMonthAnalyses = first(f.ThisMonth)
	s.PendingAnalyses = first(f.Pending)
	for _, c := range f.ByStatus {
		s.ByStatus = append(s.ByStatus, CountByKey{Key: c.ID, Count: c.Count})
	}
	for _, c := range f.ByType {
		s.ByType = append(s.ByType, CountByKey{Key: c.ID, Count: c.Count})
	}
	return s, nil
}
