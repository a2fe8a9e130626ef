package docstore

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIndexes_AppointmentSlotIsPartialUnique(t *testing.T) {
	models := Indexes()[Appointments]
	var found bool
	for _, m := range models {
		if m.Options == nil || m.Options.Name == nil || *m.Options.Name != IndexAppointmentSlot {
			continue
		}
		found = true
		if m.Options.Unique == nil || !*m.Options.Unique {
			t.Error("slot index must be unique")
		}
		filter, ok := m.Options.PartialFilterExpression.(bson.M)
		if !ok || filter["status"] != "scheduled" {
			t.Errorf("expected partial filter on scheduled status, got %v", m.Options.PartialFilterExpression)
		}
	}
	if !found {
		t.Fatal("slot index not declared")
	}
}

func TestIndexes_EveryCollectionCovered(t *testing.T) {
	idx := Indexes()
	for _, coll := range []string{Doctors, Patients, VitalReadings, Appointments, Prescriptions, Analyses} {
		if len(idx[coll]) == 0 {
			t.Errorf("no indexes for %s", coll)
		}
	}
}

func TestIsDuplicateKey(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: "E11000 duplicate key error collection: medicare.prescriptions index: prescriptions_number dup key",
	}}}

	if !IsDuplicateKey(dup, "") {
		t.Error("expected duplicate key")
	}
	if !IsDuplicateKey(dup, IndexPrescriptionNumber) {
		t.Error("expected match on index name")
	}
	if IsDuplicateKey(dup, IndexAppointmentSlot) {
		t.Error("unexpected match on other index")
	}
	if IsDuplicateKey(errors.New("boom"), "") {
		t.Error("plain error is not a duplicate key")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(mongo.ErrNoDocuments) {
		t.Error("expected ErrNoDocuments to be not found")
	}
	if IsNotFound(errors.New("other")) {
		t.Error("unexpected not found")
	}
}

func TestPaginate(t *testing.T) {
	opts := Paginate(bson.D{{Key: "date", Value: 1}}, 10, 20)
	if opts.Limit == nil || *opts.Limit != 10 {
		t.Errorf("unexpected limit %v", opts.Limit)
	}
	if opts.Skip == nil || *opts.Skip != 20 {
		t.Errorf("unexpected skip %v", opts.Skip)
	}
}
