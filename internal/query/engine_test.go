package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/earn-network/payout-engine/internal/storage"
	"github.com/earn-network/payout-engine/internal/storage/memory"
)

type testDoc struct {
	slug  string
	score int
}

func (d testDoc) ToQuery() map[string]interface{} {
	return map[string]interface{}{"slug": d.slug}
}

func (d testDoc) ToDocument() storage.Document {
	return storage.Document{"slug": d.slug, "score": d.score}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(memory.New(), nil)
}

func seed(t *testing.T, e *Engine, collection string, docs ...testDoc) {
	t.Helper()
	for _, d := range docs {
		if _, err := e.CreateOrUpdate(context.Background(), NewQuery(d.ToQuery()), collection, d.ToDocument(), nil); err != nil {
			t.Fatalf("seed %s: %v", d.slug, err)
		}
	}
}

func TestCreateOrUpdateIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	doc := testDoc{slug: "a", score: 1}
	first, err := e.CreateOrUpdate(ctx, NewQuery(doc.ToQuery()), "items", doc.ToDocument(), nil)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	doc.score = 2
	second, err := e.CreateOrUpdate(ctx, NewQuery(doc.ToQuery()), "items", doc.ToDocument(), nil)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if first["_id"] != second["_id"] {
		t.Fatalf("upsert created a second document: %v vs %v", first["_id"], second["_id"])
	}

	total, err := e.Count(ctx, NewQuery(nil), "items")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("count = %d, want 1", total)
	}
}

func TestCreateOrUpdateMergesExtraOps(t *testing.T) {
	e := newTestEngine(t)
	doc := testDoc{slug: "a", score: 1}

	updated, err := e.CreateOrUpdate(context.Background(), NewQuery(doc.ToQuery()), "items",
		doc.ToDocument(), storage.Document{"flagged": true})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if updated["flagged"] != true {
		t.Fatalf("extra op not applied: %v", updated)
	}
}

func TestCreateOrUpdateStampsTimestamps(t *testing.T) {
	e := newTestEngine(t)
	doc := testDoc{slug: "a", score: 1}

	created, err := e.CreateOrUpdate(context.Background(), NewQuery(doc.ToQuery()), "items", doc.ToDocument(), nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created["createdAt"] == nil || created["updatedAt"] == nil || created["_id"] == nil {
		t.Fatalf("missing stamps on insert: %v", created)
	}
}

func TestFindPaginationDefaults(t *testing.T) {
	e := newTestEngine(t)
	docs := make([]testDoc, 25)
	for i := range docs {
		docs[i] = testDoc{slug: fmt.Sprintf("doc-%02d", i), score: i}
	}
	seed(t, e, "items", docs...)

	page, err := e.Find(context.Background(), NewQuery(nil), "items")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(page.Data) != DefaultPageSize {
		t.Fatalf("default page has %d docs, want %d", len(page.Data), DefaultPageSize)
	}
	if page.Pagination.PageNumber != 1 {
		t.Fatalf("pageNumber = %d, want 1", page.Pagination.PageNumber)
	}
	if page.Pagination.Total != 25 {
		t.Fatalf("total = %d, want 25", page.Pagination.Total)
	}
	if page.IsLastPage() {
		t.Fatal("first page of 25 reported as last")
	}
}

func TestFindSecondPageIsLast(t *testing.T) {
	e := newTestEngine(t)
	docs := make([]testDoc, 25)
	for i := range docs {
		docs[i] = testDoc{slug: fmt.Sprintf("doc-%02d", i), score: i}
	}
	seed(t, e, "items", docs...)

	page, err := e.Find(context.Background(), Query{PageNumber: 2}, "items")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(page.Data) != 5 {
		t.Fatalf("second page has %d docs, want 5", len(page.Data))
	}
	if !page.IsLastPage() {
		t.Fatal("short page not reported as last")
	}
}

func TestFindSortOrder(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "items",
		testDoc{slug: "b", score: 2},
		testDoc{slug: "a", score: 1},
		testDoc{slug: "c", score: 3},
	)

	page, err := e.Find(context.Background(), Query{Sort: "score", Order: Desc}, "items")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if page.Data[0]["slug"] != "c" || page.Data[2]["slug"] != "a" {
		t.Fatalf("descending sort wrong: %v", page.Data)
	}
}

func TestFindEmptyResultHasEmptySlice(t *testing.T) {
	e := newTestEngine(t)
	page, err := e.Find(context.Background(), NewQuery(nil), "items")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if page.Data == nil {
		t.Fatal("empty page data must not be nil")
	}
	if !page.IsLastPage() {
		t.Fatal("empty page must be last")
	}
}

func TestFindWithTotalMatchesFind(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 7; i++ {
		seed(t, e, "items", testDoc{slug: fmt.Sprintf("doc-%d", i), score: i % 2})
	}

	q := Query{Filter: map[string]interface{}{"score": 0}, Sort: "slug", PageSize: 2}
	viaFind, err := e.Find(context.Background(), q, "items")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	viaFacet, err := e.FindWithTotal(context.Background(), q, "items")
	if err != nil {
		t.Fatalf("findWithTotal: %v", err)
	}

	if viaFind.Pagination.Total != viaFacet.Pagination.Total {
		t.Fatalf("totals diverge: %d vs %d", viaFind.Pagination.Total, viaFacet.Pagination.Total)
	}
	if len(viaFind.Data) != len(viaFacet.Data) {
		t.Fatalf("page sizes diverge: %d vs %d", len(viaFind.Data), len(viaFacet.Data))
	}
	for i := range viaFind.Data {
		if viaFind.Data[i]["slug"] != viaFacet.Data[i]["slug"] {
			t.Fatalf("page content diverges at %d: %v vs %v", i, viaFind.Data[i], viaFacet.Data[i])
		}
	}
}

func TestFindWithTotalExtraFilter(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "items",
		testDoc{slug: "a", score: 1},
		testDoc{slug: "b", score: 2},
	)

	page, err := e.FindWithTotal(context.Background(), NewQuery(nil), "items",
		storage.Filter{"score": 2})
	if err != nil {
		t.Fatalf("findWithTotal: %v", err)
	}
	if page.Pagination.Total != 1 || len(page.Data) != 1 {
		t.Fatalf("extra filter not applied: total=%d len=%d", page.Pagination.Total, len(page.Data))
	}
	if page.Data[0]["slug"] != "b" {
		t.Fatalf("wrong document matched: %v", page.Data[0])
	}
}

func TestExists(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "items", testDoc{slug: "a", score: 1})

	ok, err := e.Exists(context.Background(), NewQuery(map[string]interface{}{"slug": "a"}), "items")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatal("seeded document reported absent")
	}

	ok, err = e.Exists(context.Background(), NewQuery(map[string]interface{}{"slug": "zzz"}), "items")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("absent document reported present")
	}
}

func TestUpdateBatch(t *testing.T) {
	e := newTestEngine(t)
	docs := []Upsertable{
		testDoc{slug: "a", score: 1},
		testDoc{slug: "b", score: 2},
	}

	n, err := e.UpdateBatch(context.Background(), "items", docs)
	if err != nil {
		t.Fatalf("updateBatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("updateBatch touched %d docs, want 2", n)
	}

	found, err := e.FindOne(context.Background(), NewQuery(map[string]interface{}{"slug": "b"}), "items", false)
	if err != nil {
		t.Fatalf("findOne: %v", err)
	}
	if found["updatedAt"] == nil {
		t.Fatal("batch update did not stamp updatedAt")
	}
}

func TestUpdateBatchEmpty(t *testing.T) {
	e := newTestEngine(t)
	n, err := e.UpdateBatch(context.Background(), "items", nil)
	if err != nil {
		t.Fatalf("updateBatch: %v", err)
	}
	if n != 0 {
		t.Fatalf("empty batch touched %d docs", n)
	}
}

func TestUnionTagsGroups(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "walks", testDoc{slug: "w1", score: 1})
	seed(t, e, "rides", testDoc{slug: "r1", score: 2}, testDoc{slug: "r2", score: 3})

	page, err := e.Union(context.Background(), Query{Sort: "slug"}, "walks", map[string]Query{
		"rides": NewQuery(nil),
	})
	if err != nil {
		t.Fatalf("union: %v", err)
	}
	if page.Pagination.Total != 3 {
		t.Fatalf("union total = %d, want 3", page.Pagination.Total)
	}

	var tagged int
	for _, doc := range page.Data {
		if doc["collectionName"] == "rides" {
			tagged++
		}
	}
	if tagged != 2 {
		t.Fatalf("tagged %d union docs, want 2", tagged)
	}
}

func TestStringNumberFilterMatchesStoredNumber(t *testing.T) {
	e := newTestEngine(t)
	seed(t, e, "items", testDoc{slug: "a", score: 7})

	page, err := e.Find(context.Background(), NewQuery(map[string]interface{}{"score": "7"}), "items")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(page.Data) != 1 {
		t.Fatalf("string-numeric filter matched %d docs, want 1", len(page.Data))
	}
}
