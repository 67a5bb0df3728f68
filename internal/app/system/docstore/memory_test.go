package docstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
)

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func recvDocs(t *testing.T, ch <-chan []docstore.Doc) []docstore.Doc {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query emission")
		return nil
	}
}

func TestMemory_WriteAssignsID(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	id, err := m.Write(ctx, "notifications", "", docstore.Doc{"title": "hi"})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected an assigned ID")
	}

	got, err := m.Get(ctx, "notifications", id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID() != id {
		t.Errorf("_id: got %q, want %q", got.ID(), id)
	}
	if got["title"] != "hi" {
		t.Errorf("title: got %v, want %q", got["title"], "hi")
	}
}

func TestMemory_UpdateMissing(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	err := m.Update(ctx, "notifications", "nope", docstore.Doc{"read": true})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_DeleteIsIdempotent(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	id, _ := m.Write(ctx, "notifications", "", docstore.Doc{})
	if err := m.Delete(ctx, "notifications", id); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := m.Delete(ctx, "notifications", id); err != nil {
		t.Errorf("second Delete: got %v, want nil", err)
	}
}

func TestMemory_ReturnedDocsAreCopies(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	id, _ := m.Write(ctx, "profiles", "u1", docstore.Doc{"meta": map[string]any{"a": 1}})
	got, _ := m.Get(ctx, "profiles", id)
	got["meta"].(map[string]any)["a"] = 2

	again, _ := m.Get(ctx, "profiles", id)
	if again["meta"].(map[string]any)["a"] != 1 {
		t.Error("mutating a returned document changed the stored one")
	}
}

func TestMemory_QueryFiltersAndOrders(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, uid := range []string{"a", "b", "a", "a"} {
		_, err := m.Write(ctx, "notifications", "", docstore.Doc{
			"user_id":    uid,
			"created_at": base.Add(time.Duration(i) * time.Hour),
			"n":          i,
		})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	docs, err := m.Query(ctx, "notifications",
		[]docstore.Filter{docstore.Where("user_id", "a")},
		docstore.Order{Field: "created_at", Desc: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len: got %d, want 3", len(docs))
	}
	want := []int{3, 2, 0}
	for i, d := range docs {
		if d["n"] != want[i] {
			t.Errorf("docs[%d].n: got %v, want %d", i, d["n"], want[i])
		}
	}
}

func TestMemory_BatchIsAllOrNothing(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	id1, _ := m.Write(ctx, "notifications", "", docstore.Doc{"read": false})
	id2, _ := m.Write(ctx, "notifications", "", docstore.Doc{"read": false})

	err := m.Batch(ctx, []docstore.Op{
		{Kind: docstore.OpUpdate, Collection: "notifications", ID: id1, Data: docstore.Doc{"read": true}},
		{Kind: docstore.OpUpdate, Collection: "notifications", ID: "missing", Data: docstore.Doc{"read": true}},
		{Kind: docstore.OpUpdate, Collection: "notifications", ID: id2, Data: docstore.Doc{"read": true}},
	})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, id := range []string{id1, id2} {
		d, _ := m.Get(ctx, "notifications", id)
		if d["read"] != false {
			t.Errorf("%s read: got %v, want false", id, d["read"])
		}
	}
}

func TestMemory_InjectFaultFailsBatch(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	id1, _ := m.Write(ctx, "notifications", "", docstore.Doc{"read": false})
	id2, _ := m.Write(ctx, "notifications", "", docstore.Doc{"read": false})

	boom := errors.New("commit rejected")
	m.InjectFault(func(op docstore.Op) error {
		if op.ID == id2 {
			return boom
		}
		return nil
	})

	err := m.Batch(ctx, []docstore.Op{
		{Kind: docstore.OpUpdate, Collection: "notifications", ID: id1, Data: docstore.Doc{"read": true}},
		{Kind: docstore.OpUpdate, Collection: "notifications", ID: id2, Data: docstore.Doc{"read": true}},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	d, _ := m.Get(ctx, "notifications", id1)
	if d["read"] != false {
		t.Error("first op was applied despite batch failure")
	}
}

func TestMemory_SubscribeQueryEmitsFullResult(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	ch := make(chan []docstore.Doc, 8)
	unsub := m.SubscribeQuery("notifications",
		[]docstore.Filter{docstore.Where("user_id", "u1")},
		docstore.Order{Field: "created_at", Desc: true},
		func(docs []docstore.Doc) { ch <- docs },
		func(err error) { t.Errorf("unexpected error: %v", err) })
	defer unsub()

	if docs := recvDocs(t, ch); len(docs) != 0 {
		t.Fatalf("initial emission: got %d docs, want 0", len(docs))
	}

	_, _ = m.Write(ctx, "notifications", "", docstore.Doc{"user_id": "u1", "created_at": time.Now()})
	if docs := recvDocs(t, ch); len(docs) != 1 {
		t.Fatalf("after first write: got %d docs, want 1", len(docs))
	}

	_, _ = m.Write(ctx, "notifications", "", docstore.Doc{"user_id": "u1", "created_at": time.Now()})
	if docs := recvDocs(t, ch); len(docs) != 2 {
		t.Fatalf("after second write: got %d docs, want 2", len(docs))
	}
}

func TestMemory_SubscribeDocumentMissingThenCreated(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	ch := make(chan docstore.Doc, 4)
	unsub := m.SubscribeDocument("profiles", "u1",
		func(d docstore.Doc) { ch <- d },
		func(err error) { t.Errorf("unexpected error: %v", err) })
	defer unsub()

	select {
	case d := <-ch:
		if d != nil {
			t.Errorf("initial emission: got %v, want nil", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial emission")
	}

	_, _ = m.Write(ctx, "profiles", "u1", docstore.Doc{"first_name": "John"})
	select {
	case d := <-ch:
		if d["first_name"] != "John" {
			t.Errorf("first_name: got %v, want John", d["first_name"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update emission")
	}
}

func TestMemory_UnsubscribeStopsEmissions(t *testing.T) {
	m := docstore.NewMemory()
	ctx, cancel := testContext()
	defer cancel()

	ch := make(chan []docstore.Doc, 8)
	unsub := m.SubscribeQuery("notifications", nil, docstore.Order{},
		func(docs []docstore.Doc) { ch <- docs },
		func(error) {})
	recvDocs(t, ch)

	unsub()
	unsub() // idempotent

	if n := m.Subscriptions(); n != 0 {
		t.Errorf("Subscriptions: got %d, want 0", n)
	}

	_, _ = m.Write(ctx, "notifications", "", docstore.Doc{})
	select {
	case docs := <-ch:
		t.Errorf("received emission after unsubscribe: %v", docs)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemory_BreakSubscriptions(t *testing.T) {
	m := docstore.NewMemory()

	errCh := make(chan error, 1)
	unsub := m.SubscribeDocument("profiles", "u1", func(docstore.Doc) {}, func(err error) { errCh <- err })
	defer unsub()

	denied := errors.New("permission denied")
	m.BreakSubscriptions("profiles", denied)

	select {
	case err := <-errCh:
		if !errors.Is(err, denied) {
			t.Errorf("error: got %v, want %v", err, denied)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription error")
	}
}
