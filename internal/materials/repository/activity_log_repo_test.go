package repository

import (
	"context"
	"testing"

	"github.com/bitfantasy/uplink-console/internal/materials/entity"
	"github.com/bitfantasy/uplink-console/internal/testutil"
)

func TestActivityLogCreateAndFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	logs := []entity.ActivityLog{
		{EntityType: "request", EntityID: 42, Action: "create", OperatorID: "1001", OperatorName: "Test Admin"},
		{EntityType: "request", EntityID: 42, Action: "patch_item", FromStatus: "PREPARING", ToStatus: "CHANGED", OperatorID: "1001"},
		{EntityType: "request", EntityID: 7, Action: "delete", OperatorID: "1001"},
	}
	for i := range logs {
		if err := repo.Create(ctx, &logs[i]); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if logs[i].ID == "" {
			t.Fatal("Create must assign an id")
		}
	}

	items, total, err := repo.FindByEntity(ctx, "request", 42, 1, 20)
	if err != nil {
		t.Fatalf("FindByEntity failed: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.EntityID != 42 {
			t.Errorf("unexpected entity id %d in result", item.EntityID)
		}
	}
}

func TestActivityLogPagination(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		log := entity.ActivityLog{EntityType: "request", EntityID: 1, Action: "patch"}
		if err := repo.Create(ctx, &log); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	items, total, err := repo.FindByEntity(ctx, "request", 1, 2, 2)
	if err != nil {
		t.Fatalf("FindByEntity failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(items) != 2 {
		t.Errorf("page items = %d, want 2", len(items))
	}
}

func TestLogActivityBestEffort(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	repo.LogActivity(ctx, "request", 9, "pin", "", "", "", "1001", "Test Admin")

	_, total, err := repo.FindByEntity(ctx, "request", 9, 1, 10)
	if err != nil {
		t.Fatalf("FindByEntity failed: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}
