// Package docstore wraps the MongoDB client used when STORE_DRIVER=mongo.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	Doctors       = "doctors"
	Patients      = "patients"
	VitalReadings = "vital_readings"
	Appointments  = "appointments"
	Prescriptions = "prescriptions"
	Analyses      = "analyses"
)

// Index names reported back in duplicate key errors.
const (
	IndexAppointmentSlot    = "appointments_scheduled_slot"
	IndexPrescriptionNumber = "prescriptions_number"
	IndexDoctorEmail        = "doctors_email"
	IndexPatientEmail       = "patients_doctor_email_active"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client and verifies it with a primary ping.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Indexes returns the index models created at start-up, per collection.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		Doctors: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(IndexDoctorEmail)},
		},
		Patients: {
			{
				Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(IndexPatientEmail).
					SetPartialFilterExpression(bson.M{"is_active": true}),
			},
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "last_visit", Value: -1}}},
		},
		VitalReadings: {
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "patient_id", Value: 1}, {Key: "recorded_at", Value: -1}}},
		},
		Appointments: {
			{
				Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "date", Value: 1}, {Key: "time", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(IndexAppointmentSlot).
					SetPartialFilterExpression(bson.M{"status": "scheduled"}),
			},
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "patient_id", Value: 1}}},
		},
		Prescriptions: {
			{Keys: bson.D{{Key: "prescription_number", Value: 1}}, Options: options.Index().SetUnique(true).SetName(IndexPrescriptionNumber)},
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		Analyses: {
			{Keys: bson.D{{Key: "doctor_id", Value: 1}, {Key: "status", Value: 1}, {Key: "upload_date", Value: -1}}},
		},
	}
}

// EnsureIndexes creates every index in Indexes. Existing indexes are left alone.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for coll, models := range Indexes() {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// IsNotFound reports whether err is mongo.ErrNoDocuments.
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// IsDuplicateKey reports whether err is a duplicate key error, optionally
// restricted to a named index.
func IsDuplicateKey(err error, index string) bool {
	if !mongo.IsDuplicateKeyError(err) {
		return false
	}
	if index == "" {
		return true
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 && containsIndex(e.Message, index) {
				return true
			}
		}
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return containsIndex(ce.Message, index)
	}
	return true
}

func containsIndex(msg, index string) bool {
	return strings.Contains(msg, "index: "+index)
}

// Paginate applies skip/limit and a sort to find options.
func Paginate(sort bson.D, limit, offset int) *options.FindOptions {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	return opts
}
