package repository

import (
	"context"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestForwardedMessageRepositoryAlreadyCopied(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns matched ids", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			testNamespace(mt),
			mtest.FirstBatch,
			bson.D{{Key: "source_message_id", Value: 3}},
			bson.D{{Key: "source_message_id", Value: 7}},
		))

		copied, err := repo.AlreadyCopied(context.Background(), "-1001", "-1002", []int{1, 3, 5, 7})
		if err != nil {
			t.Fatalf("AlreadyCopied failed: %v", err)
		}
		if len(copied) != 2 {
			t.Fatalf("unexpected match count: got %d, want 2", len(copied))
		}
		if _, ok := copied[3]; !ok {
			t.Fatalf("expected id 3 to be reported as copied")
		}
		if _, ok := copied[7]; !ok {
			t.Fatalf("expected id 7 to be reported as copied")
		}
	})

	mt.Run("empty input short circuits", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}

		copied, err := repo.AlreadyCopied(context.Background(), "-1001", "-1002", nil)
		if err != nil {
			t.Fatalf("AlreadyCopied failed: %v", err)
		}
		if len(copied) != 0 {
			t.Fatalf("expected empty result, got %v", copied)
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "mock find error",
		}))

		_, err := repo.AlreadyCopied(context.Background(), "-1001", "-1002", []int{1})
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to query forwarded messages") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestForwardedMessageRepositoryRecordCopied(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 3},
		))

		if err := repo.RecordCopied(context.Background(), "-1001", "-1002", []int{1, 2, 3}); err != nil {
			t.Fatalf("RecordCopied failed: %v", err)
		}
	})

	mt.Run("empty input short circuits", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}

		if err := repo.RecordCopied(context.Background(), "-1001", "-1002", nil); err != nil {
			t.Fatalf("RecordCopied failed: %v", err)
		}
	})

	mt.Run("duplicate key is swallowed", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection",
		}))

		if err := repo.RecordCopied(context.Background(), "-1001", "-1002", []int{1}); err != nil {
			t.Fatalf("duplicate insert must not be an error, got: %v", err)
		}
	})

	mt.Run("other write error surfaces", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    121,
			Message: "Document failed validation",
		}))

		err := repo.RecordCopied(context.Background(), "-1001", "-1002", []int{1})
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to record forwarded messages") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestForwardedMessageRepositoryEnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		if err := repo.EnsureIndexes(context.Background()); err != nil {
			t.Fatalf("EnsureIndexes failed: %v", err)
		}
	})

	mt.Run("create indexes error", func(mt *mtest.T) {
		repo := &forwardedMessageRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    85,
			Name:    "IndexOptionsConflict",
			Message: "mock index error",
		}))

		err := repo.EnsureIndexes(context.Background())
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to create indexes") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
