package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roudayn-kouka/App4Doctors/internal/platform/apperr"
	"github.com/roudayn-kouka/App4Doctors/internal/platform/docstore"
)

type doctorDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	FullName     string    `bson:"full_name"`
	Specialty    string    `bson:"specialty"`
	License      string    `bson:"license_number"`
	Phone        string    `bson:"phone"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type doctorRepoMongo struct{ coll *mongo.Collection }

func NewRepoMongo(store *docstore.Store) Repository {
	return &doctorRepoMongo{coll: store.Collection(docstore.Doctors)}
}

func (r *doctorRepoMongo) Create(ctx context.Context, d *Doctor) error {
	_, err := r.coll.InsertOne(ctx, doctorDoc{
		ID: d.ID.String(), Email: d.Email, PasswordHash: d.PasswordHash, FullName: d.FullName,
		Specialty: d.Specialty, License: d.License, Phone: d.Phone, Role: d.Role,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	})
	if docstore.IsDuplicateKey(err, docstore.IndexDoctorEmail) {
		return apperr.Uniqueness("an account with this email already exists")
	}
	return err
}

func (r *doctorRepoMongo) findOne(ctx context.Context, filter bson.M) (*Doctor, error) {
	var d doctorDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if docstore.IsNotFound(err) {
			return nil, apperr.NotFound("doctor not found")
		}
		return nil, err
	}
	return &Doctor{
		ID: uuid.MustParse(d.ID), Email: d.Email, PasswordHash: d.PasswordHash, FullName: d.FullName,
		Specialty: d.Specialty, License: d.License, Phone: d.Phone, Role: d.Role,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}, nil
}

func (r *doctorRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

// GetByEmail expects a normalized address; emails are stored lower-cased.
func (r *doctorRepoMongo) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return r.findOne(ctx, bson.M{"email": email})
}
