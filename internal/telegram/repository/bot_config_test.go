package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"forward_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestBotConfigRepositoryLoad(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &botConfigRepository{collection: mt.Coll}
		now := time.Now().UTC().Truncate(time.Second)
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			testNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: models.CurrentConfigID},
				{Key: "source_channel", Value: "-1001234567890"},
				{Key: "dest_channel", Value: "-1009876543210"},
				{Key: "updated_at", Value: now},
			},
		))

		cfg, err := repo.Load(context.Background())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg == nil || cfg.SourceChannel != "-1001234567890" || cfg.DestChannel != "-1009876543210" {
			t.Fatalf("unexpected config: %+v", cfg)
		}
	})

	mt.Run("not configured returns nil", func(mt *mtest.T) {
		repo := &botConfigRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			testNamespace(mt),
			mtest.FirstBatch,
		))

		cfg, err := repo.Load(context.Background())
		if err != nil {
			t.Fatalf("expected nil error, got: %v", err)
		}
		if cfg != nil {
			t.Fatalf("expected nil config, got: %+v", cfg)
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := &botConfigRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "mock find error",
		}))

		_, err := repo.Load(context.Background())
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to load bot config") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestBotConfigRepositorySave(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &botConfigRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.Save(context.Background(), "-1001", "-1002"); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		repo := &botConfigRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    112,
			Name:    "WriteConflict",
			Message: "mock write conflict",
		}))

		err := repo.Save(context.Background(), "-1001", "-1002")
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to save bot config") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func testNamespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}
