/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package enginetest holds the behaviour every datastore.Engine must share.
package enginetest

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/datastore/testmodels"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/query"
)

// Factory returns a fresh engine and a configuration for a new, empty database.
// Opening the same configuration twice must reach the same database.
type Factory func(t *testing.T, opts ...datastore.Option) (datastore.Engine, *datastore.Configuration)

// Run exercises the Engine contract.
func Run(t *testing.T, newEngine Factory) {
	t.Run("InsertFindCount", func(t *testing.T) { testInsertFindCount(t, newEngine) })
	t.Run("DuplicateInsert", func(t *testing.T) { testDuplicateInsert(t, newEngine) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, newEngine) })
	t.Run("Filters", func(t *testing.T) { testFilters(t, newEngine) })
	t.Run("SortAndLimit", func(t *testing.T) { testSortAndLimit(t, newEngine) })
	t.Run("DeleteAndMax", func(t *testing.T) { testDeleteAndMax(t, newEngine) })
	t.Run("NoPrimaryKey", func(t *testing.T) { testNoPrimaryKey(t, newEngine) })
	t.Run("SchemaPolicy", func(t *testing.T) { testSchemaPolicy(t, newEngine) })
	t.Run("NotInSchema", func(t *testing.T) { testNotInSchema(t, newEngine) })
}

func open(t *testing.T, e datastore.Engine, cfg *datastore.Configuration) datastore.Instance {
	t.Helper()
	inst, err := e.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open(%s): %v", cfg.Name, err)
	}
	t.Cleanup(func() { _ = inst.Close() })
	return inst
}

func ratings(t *testing.T, inst datastore.Instance) datastore.DataStore[testmodels.Rating] {
	t.Helper()
	s, err := datastore.For[testmodels.Rating](context.Background(), inst)
	if err != nil {
		t.Fatalf("For[Rating]: %v", err)
	}
	return s
}

func seed(t *testing.T, s datastore.DataStore[testmodels.Rating]) {
	t.Helper()
	items := []testmodels.Rating{
		{ID: 1, SystemID: "elo", Player: "alice", Score: 1500},
		{ID: 2, SystemID: "elo", Player: "bob", Score: 1320, Comment: testmodels.StrPtr("new")},
		{ID: 3, SystemID: "glicko", Player: "carol", Score: 1710},
		{ID: 4, SystemID: "elo", Player: "dave", Score: 1320},
	}
	if err := s.Insert(context.Background(), items); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func ids(items []testmodels.Rating) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func sameIDs(got []testmodels.Rating, want ...int64) bool {
	return fmt.Sprint(ids(got)) == fmt.Sprint(want)
}

func testInsertFindCount(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t)
	s := ratings(t, open(t, e, cfg))
	seed(t, s)

	all, err := s.Find(ctx, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !sameIDs(all, 1, 2, 3, 4) {
		t.Errorf("Find(nil) = %v, want insertion order [1 2 3 4]", ids(all))
	}
	if all[1].Comment == nil || *all[1].Comment != "new" {
		t.Errorf("pointer field not round-tripped: %+v", all[1])
	}

	n, err := s.Count(ctx, query.New().EqualTo("system_id", "elo"))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	// Returned values are detached from storage.
	all[0].Player = "mallory"
	again, err := s.Find(ctx, query.New().EqualTo("id", 1))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(again) != 1 || again[0].Player != "alice" {
		t.Errorf("stored entity changed through a returned copy: %+v", again)
	}
}

func testDuplicateInsert(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t)
	s := ratings(t, open(t, e, cfg))
	seed(t, s)

	err := s.Insert(ctx, []testmodels.Rating{{ID: 2, Player: "eve"}})
	if !errors.IsAlreadyExists(err) {
		t.Fatalf("duplicate Insert error = %v, want AlreadyExists", err)
	}
}

func testUpsert(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t)
	s := ratings(t, open(t, e, cfg))
	seed(t, s)

	err := s.Upsert(ctx, []testmodels.Rating{
		{ID: 2, SystemID: "elo", Player: "bob", Score: 1400},
		{ID: 5, SystemID: "elo", Player: "erin", Score: 1000},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := s.Find(ctx, query.New().In("id", 2, 5).Sort("id", query.Ascending))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 2 || got[0].Score != 1400 || got[1].Player != "erin" {
		t.Errorf("after Upsert got %+v", got)
	}
	if got[0].Comment != nil {
		t.Errorf("Upsert should replace every column, comment = %q", *got[0].Comment)
	}
	if n, _ := s.Count(ctx, nil); n != 5 {
		t.Errorf("Count after Upsert = %d, want 5", n)
	}
}

func testFilters(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t)
	s := ratings(t, open(t, e, cfg))
	seed(t, s)

	tests := []struct {
		name string
		q    *query.Query
		want []int64
	}{
		{"equal", query.New().EqualTo("player", "carol"), []int64{3}},
		{"go field name", query.New().EqualTo("Player", "carol"), []int64{3}},
		{"not equal", query.New().NotEqualTo("system_id", "elo"), []int64{3}},
		{"greater", query.New().GreaterThan("score", 1400), []int64{1, 3}},
		{"less or equal", query.New().LessThanOrEqualTo("score", 1320), []int64{2, 4}},
		{"between", query.New().Between("score", 1320, 1500), []int64{1, 2, 4}},
		{"in", query.New().In("player", "alice", "dave", "zed"), []int64{1, 4}},
		{"begins with", query.New().BeginsWith("player", "ca"), []int64{3}},
		{"ends with", query.New().EndsWith("player", "ve"), []int64{4}},
		{"contains", query.New().Contains("player", "li"), []int64{1}},
		{"case sensitive", query.New().Contains("player", "LI"), nil},
		{"is null", query.New().IsNull("comment"), []int64{1, 3, 4}},
		{"is not null", query.New().IsNotNull("comment"), []int64{2}},
		{"or", query.New().EqualTo("system_id", "elo").Or(
			query.New().EqualTo("player", "alice"),
			query.New().GreaterThan("score", 1400).LessThan("score", 1400),
			query.New().EqualTo("player", "dave"),
		), []int64{1, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Find(ctx, tt.q)
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if !sameIDs(got, tt.want...) {
				t.Errorf("Find = %v, want %v", ids(got), tt.want)
			}
		})
	}

	if _, err := s.Find(ctx, query.New().EqualTo("nope", 1)); !errors.IsValidationError(err) {
		t.Errorf("unknown field error = %v, want validation error", err)
	}
}

func testSortAndLimit(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t)
	s := ratings(t, open(t, e, cfg))
	seed(t, s)

	got, err := s.Find(ctx, query.New().Sort("score", query.Ascending).Sort("player", query.Descending))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !sameIDs(got, 4, 2, 1, 3) {
		t.Errorf("sorted = %v, want [4 2 1 3]", ids(got))
	}

	got, err = s.Find(ctx, query.New().Sort("score", query.Descending).Limit(2))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !sameIDs(got, 3, 1) {
		t.Errorf("limited = %v, want [3 1]", ids(got))
	}
}

func testDeleteAndMax(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t)
	s := ratings(t, open(t, e, cfg))

	if m, err := s.Max(ctx, "id"); err != nil || m != 0 {
		t.Fatalf("Max on empty = %d, %v; want 0", m, err)
	}
	seed(t, s)
	if m, err := s.Max(ctx, "ID"); err != nil || m != 4 {
		t.Fatalf("Max = %d, %v; want 4", m, err)
	}

	n, err := s.Delete(ctx, query.New().EqualTo("system_id", "elo"))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 3 {
		t.Errorf("Delete removed %d, want 3", n)
	}
	n, err = s.Delete(ctx, nil)
	if err != nil || n != 1 {
		t.Errorf("Delete(nil) = %d, %v; want 1", n, err)
	}
	if c, _ := s.Count(ctx, nil); c != 0 {
		t.Errorf("Count after delete = %d", c)
	}
}

func testNoPrimaryKey(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t)
	inst := open(t, e, cfg)
	s, err := datastore.For[testmodels.AuditEntry](ctx, inst)
	if err != nil {
		t.Fatalf("For[AuditEntry]: %v", err)
	}

	entries := []testmodels.AuditEntry{{Action: "login", Actor: "alice"}, {Action: "login", Actor: "alice"}}
	if err := s.Insert(ctx, entries); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if n, _ := s.Count(ctx, query.New().EqualTo("actor", "alice")); n != 2 {
		t.Errorf("Count = %d, want 2 (rows without a key are never merged)", n)
	}
	if err := s.Upsert(ctx, entries); !stderrors.Is(err, errors.ErrPrimaryKeyRequired) {
		t.Errorf("Upsert error = %v, want ErrPrimaryKeyRequired", err)
	}
}

func testSchemaPolicy(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t, datastore.WithSchemaVersion(1))

	inst := open(t, e, cfg)
	seed(t, ratings(t, inst))
	if v, err := inst.SchemaVersion(ctx); err != nil || v != 1 {
		t.Fatalf("SchemaVersion = %d, %v; want 1", v, err)
	}
	_ = inst.Close()

	// Same version keeps the data.
	inst = open(t, e, cfg)
	if n, _ := ratings(t, inst).Count(ctx, nil); n != 4 {
		t.Errorf("reopen lost data, count = %d", n)
	}
	_ = inst.Close()

	// A different version without a policy is refused.
	strict := *cfg
	strict.SchemaVersion = 2
	if _, err := e.Open(ctx, &strict); !errors.IsSchemaMismatch(err) {
		t.Fatalf("Open with new version error = %v, want SchemaMismatch", err)
	}

	// A migration runs once and records the new version.
	migrated := strict
	var calls []string
	migrated.Migration = func(ctx context.Context, inst datastore.Instance, from, to uint64) error {
		calls = append(calls, fmt.Sprintf("%d->%d", from, to))
		_, err := ratings(t, inst).Delete(ctx, query.New().EqualTo("system_id", "glicko"))
		return err
	}
	inst = open(t, e, &migrated)
	if fmt.Sprint(calls) != "[1->2]" {
		t.Errorf("migration calls = %v", calls)
	}
	if n, _ := ratings(t, inst).Count(ctx, nil); n != 3 {
		t.Errorf("count after migration = %d, want 3", n)
	}
	_ = inst.Close()

	// Inspection neither migrates nor deletes.
	inspect := strict
	inspect.SchemaVersion = 9
	inspect.DeleteIfMigrationNeeded = true
	inspect.Inspect = true
	inst = open(t, e, &inspect)
	if v, err := inst.SchemaVersion(ctx); err != nil || v != 2 {
		t.Errorf("SchemaVersion under inspection = %d, %v; want 2", v, err)
	}
	if n, _ := ratings(t, inst).Count(ctx, nil); n != 3 {
		t.Errorf("count under inspection = %d, want 3", n)
	}
	_ = inst.Close()

	// Deleting on mismatch starts from an empty database.
	wipe := strict
	wipe.SchemaVersion = 3
	wipe.DeleteIfMigrationNeeded = true
	inst = open(t, e, &wipe)
	if n, _ := ratings(t, inst).Count(ctx, nil); n != 0 {
		t.Errorf("count after delete-on-mismatch = %d, want 0", n)
	}
	if v, _ := inst.SchemaVersion(ctx); v != 3 {
		t.Errorf("SchemaVersion after delete = %d, want 3", v)
	}
}

func testNotInSchema(t *testing.T, newEngine Factory) {
	ctx := context.Background()
	e, cfg := newEngine(t, datastore.WithModels(testmodels.Rating{}))
	inst := open(t, e, cfg)

	if _, err := datastore.For[testmodels.Rating](ctx, inst); err != nil {
		t.Fatalf("For[Rating]: %v", err)
	}
	_, err := datastore.For[testmodels.AuditEntry](ctx, inst)
	if !errors.IsNotInSchema(err) {
		t.Fatalf("For[AuditEntry] error = %v, want NotInSchema", err)
	}
}
