package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/noah-isme/school-site-api/internal/models"
)

type staticProvider struct {
	coll *mongo.Collection
	err  error
}

func (p staticProvider) Collection(context.Context, string) (*mongo.Collection, error) {
	return p.coll, p.err
}

func TestContactRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert applies defaults", func(mt *mtest.T) {
		repo := NewContactRepository(staticProvider{coll: mt.Coll})
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		msg := &models.ContactMessage{Name: "Parent", Email: "parent@example.com", Subject: "Fees", Message: "Hello"}
		require.NoError(mt, repo.Insert(context.Background(), msg))
		assert.False(mt, msg.ID.IsZero())
		assert.Equal(mt, models.InquiryStatusNew, msg.Status)
		assert.False(mt, msg.CreatedAt.IsZero())
	})

	mt.Run("list decodes newest first", func(mt *mtest.T) {
		repo := NewContactRepository(staticProvider{coll: mt.Coll})
		newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
		older := newer.Add(-24 * time.Hour)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
				bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "B"}, {Key: "status", Value: "read"}, {Key: "createdAt", Value: newer}},
			),
			mtest.CreateCursorResponse(0, ns, mtest.NextBatch,
				bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "A"}, {Key: "status", Value: "new"}, {Key: "createdAt", Value: older}},
			),
		)

		messages, err := repo.List(context.Background(), "")
		require.NoError(mt, err)
		require.Len(mt, messages, 2)
		assert.Equal(mt, "B", messages[0].Name)
		assert.Equal(mt, models.InquiryStatusRead, messages[0].Status)
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		repo := NewContactRepository(staticProvider{coll: mt.Coll})
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := repo.DeleteByID(context.Background(), primitive.NewObjectID())
		assert.True(mt, errors.Is(err, mongo.ErrNoDocuments))
	})

	mt.Run("update status", func(mt *mtest.T) {
		repo := NewContactRepository(staticProvider{coll: mt.Coll})
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		require.NoError(mt, repo.UpdateStatus(context.Background(), primitive.NewObjectID(), models.InquiryStatusReplied))
	})
}

func TestAdmissionRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert keeps explicit status", func(mt *mtest.T) {
		repo := NewAdmissionRepository(staticProvider{coll: mt.Coll})
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		inquiry := &models.AdmissionInquiry{StudentName: "Kid", ParentName: "Parent", Email: "p@example.com", Phone: "555", GradeApplying: "5", Status: models.InquiryStatusRead}
		require.NoError(mt, repo.Insert(context.Background(), inquiry))
		assert.Equal(mt, models.InquiryStatusRead, inquiry.Status)
		assert.False(mt, inquiry.ID.IsZero())
	})

	mt.Run("delete existing", func(mt *mtest.T) {
		repo := NewAdmissionRepository(staticProvider{coll: mt.Coll})
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		require.NoError(mt, repo.DeleteByID(context.Background(), primitive.NewObjectID()))
	})

	mt.Run("write error surfaces", func(mt *mtest.T) {
		repo := NewAdmissionRepository(staticProvider{coll: mt.Coll})
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 11000, Message: "duplicate key"}))
		err := repo.Insert(context.Background(), &models.AdmissionInquiry{StudentName: "Kid"})
		require.Error(mt, err)
	})
}

func TestInquiryRepositoryProviderError(t *testing.T) {
	repo := NewContactRepository(staticProvider{err: errors.New("no mongo")})
	_, err := repo.List(context.Background(), models.InquiryStatusNew)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire contacts collection")
}
