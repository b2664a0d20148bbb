package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/school-site-api/internal/models"
	"github.com/noah-isme/school-site-api/pkg/database"
)

// CollectionProvider hands out MongoDB collections, connecting lazily.
type CollectionProvider interface {
	Collection(ctx context.Context, name string) (*mongo.Collection, error)
}

// documentStore implements the shared CRUD of the inquiry collections.
type documentStore struct {
	provider   CollectionProvider
	collection string
}

func (s documentStore) coll(ctx context.Context) (*mongo.Collection, error) {
	coll, err := s.provider.Collection(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("acquire %s collection: %w", s.collection, err)
	}
	return coll, nil
}

func (s documentStore) insert(ctx context.Context, doc interface{}) (primitive.ObjectID, error) {
	coll, err := s.coll(ctx)
	if err != nil {
		return primitive.NilObjectID, err
	}
	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert %s: %w", s.collection, err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("insert %s: unexpected id type %T", s.collection, res.InsertedID)
	}
	return id, nil
}

func (s documentStore) list(ctx context.Context, status models.InquiryStatus, out interface{}) error {
	coll, err := s.coll(ctx)
	if err != nil {
		return err
	}
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return fmt.Errorf("list %s: %w", s.collection, err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", s.collection, err)
	}
	return nil
}

func (s documentStore) deleteByID(ctx context.Context, id primitive.ObjectID) error {
	coll, err := s.coll(ctx)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s: %w", s.collection, err)
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s documentStore) updateStatus(ctx context.Context, id primitive.ObjectID, status models.InquiryStatus) error {
	coll, err := s.coll(ctx)
	if err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}}
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update %s status: %w", s.collection, err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func applyInquiryDefaults(status *models.InquiryStatus, createdAt *time.Time) {
	if *status == "" {
		*status = models.InquiryStatusNew
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

// ContactRepository persists contact form messages.
type ContactRepository struct {
	store documentStore
}

// NewContactRepository constructs a ContactRepository on the contacts collection.
func NewContactRepository(provider CollectionProvider) *ContactRepository {
	return &ContactRepository{store: documentStore{provider: provider, collection: database.ContactsCollection}}
}

// Insert stores msg, defaulting status to new and createdAt to now.
func (r *ContactRepository) Insert(ctx context.Context, msg *models.ContactMessage) error {
	applyInquiryDefaults(&msg.Status, &msg.CreatedAt)
	id, err := r.store.insert(ctx, msg)
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// List returns messages newest first, optionally filtered by status.
func (r *ContactRepository) List(ctx context.Context, status models.InquiryStatus) ([]models.ContactMessage, error) {
	messages := make([]models.ContactMessage, 0)
	if err := r.store.list(ctx, status, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteByID removes a message; mongo.ErrNoDocuments when nothing matched.
func (r *ContactRepository) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	return r.store.deleteByID(ctx, id)
}

// UpdateStatus changes the follow-up status of a message.
func (r *ContactRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.InquiryStatus) error {
	return r.store.updateStatus(ctx, id, status)
}

// AdmissionRepository persists admission inquiries.
type AdmissionRepository struct {
	store documentStore
}

// NewAdmissionRepository constructs an AdmissionRepository on the admissions collection.
func NewAdmissionRepository(provider CollectionProvider) *AdmissionRepository {
	return &AdmissionRepository{store: documentStore{provider: provider, collection: database.AdmissionsCollection}}
}

// Insert stores inquiry, defaulting status to new and createdAt to now.
func (r *AdmissionRepository) Insert(ctx context.Context, inquiry *models.AdmissionInquiry) error {
	applyInquiryDefaults(&inquiry.Status, &inquiry.CreatedAt)
	id, err := r.store.insert(ctx, inquiry)
	if err != nil {
		return err
	}
	inquiry.ID = id
	return nil
}

// List returns inquiries newest first, optionally filtered by status.
func (r *AdmissionRepository) List(ctx context.Context, status models.InquiryStatus) ([]models.AdmissionInquiry, error) {
	inquiries := make([]models.AdmissionInquiry, 0)
	if err := r.store.list(ctx, status, &inquiries); err != nil {
		return nil, err
	}
	return inquiries, nil
}

// DeleteByID removes an inquiry; mongo.ErrNoDocuments when nothing matched.
func (r *AdmissionRepository) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	return r.store.deleteByID(ctx, id)
}

// UpdateStatus changes the follow-up status of an inquiry.
func (r *AdmissionRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.InquiryStatus) error {
	return r.store.updateStatus(ctx, id, status)
}
