package store

import (
	"context"
	"testing"

	"github.com/erazemk/kovnica/internal/db"
	"github.com/erazemk/kovnica/internal/model"
)

func TestReplaceAllowlist(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	v, err := AllowlistVersion(ctx, database)
	if err != nil {
		t.Fatalf("AllowlistVersion: %v", err)
	}
	if v != 0 {
		t.Errorf("expected version 0 before upload, got %d", v)
	}

	v1, err := ReplaceAllowlist(ctx, database, []model.AllowlistEntry{
		{Address: "0x00000000000000000000000000000000000000aa", MaxMintAmount: 3},
		{Address: "0x00000000000000000000000000000000000000bb", MaxMintAmount: 1},
	})
	if err != nil {
		t.Fatalf("ReplaceAllowlist: %v", err)
	}
	if v1 != 1 {
		t.Errorf("expected version 1, got %d", v1)
	}

	e, err := GetAllowlistEntry(ctx, database, "0x00000000000000000000000000000000000000aa")
	if err != nil {
		t.Fatalf("GetAllowlistEntry: %v", err)
	}
	if e == nil || e.MaxMintAmount != 3 {
		t.Fatalf("expected entry with max 3, got %+v", e)
	}

	v2, err := ReplaceAllowlist(ctx, database, []model.AllowlistEntry{
		{Address: "0x00000000000000000000000000000000000000cc", MaxMintAmount: 5},
	})
	if err != nil {
		t.Fatalf("ReplaceAllowlist: %v", err)
	}
	if v2 != 2 {
		t.Errorf("expected version 2, got %d", v2)
	}

	gone, _ := GetAllowlistEntry(ctx, database, "0x00000000000000000000000000000000000000aa")
	if gone != nil {
		t.Error("expected old entries to be replaced")
	}

	list, _ := ListAllowlist(ctx, database)
	if len(list) != 1 || list[0].Address != "0x00000000000000000000000000000000000000cc" {
		t.Errorf("unexpected allowlist: %+v", list)
	}

	cur, _ := AllowlistVersion(ctx, database)
	if cur != 2 {
		t.Errorf("expected current version 2, got %d", cur)
	}
}
