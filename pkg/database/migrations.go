package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names for the inquiry documents.
const (
	ContactsCollection   = "contacts"
	AdmissionsCollection = "admissions"
)

var resultSchema = []string{
	`CREATE TABLE IF NOT EXISTS exam_results (
        id UUID PRIMARY KEY,
        student_name TEXT NOT NULL,
        roll_no VARCHAR(6) NOT NULL CHECK (roll_no ~ '^[0-9]{6}$'),
        class TEXT NOT NULL,
        class_code TEXT NOT NULL,
        exam_type TEXT NOT NULL,
        result_status TEXT NOT NULL CHECK (result_status IN ('Pass', 'Fail')),
        grade TEXT NOT NULL DEFAULT '',
        subjects JSONB NOT NULL DEFAULT '[]'::jsonb,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS exam_results_roll_class_exam_key ON exam_results (roll_no, class_code, exam_type)`,
	`CREATE INDEX IF NOT EXISTS exam_results_created_at_idx ON exam_results (created_at DESC)`,
}

// EnsureResultSchema creates the results table and its indexes when missing.
func EnsureResultSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range resultSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure result schema: %w", err)
		}
	}
	return nil
}

// EnsureInquiryIndexes adds the createdAt index used by newest-first listings.
func EnsureInquiryIndexes(ctx context.Context, pool *MongoPool) error {
	db, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("createdAt_desc"),
	}
	for _, name := range []string{ContactsCollection, AdmissionsCollection} {
		if _, err := db.Collection(name).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("ensure %s indexes: %w", name, err)
		}
	}
	return nil
}
