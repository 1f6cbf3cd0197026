package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"spendman/internal/log"
)

func testEngines(t *testing.T) map[string]Engine {
	t.Helper()

	sqliteEng, err := OpenSQLite(t.TempDir(), "docstore-test")
	if err != nil {
		t.Fatalf("open sqlite engine: %v", err)
	}
	t.Cleanup(func() { sqliteEng.Close() })

	return map[string]Engine{
		"memory": NewMemoryEngine(),
		"sqlite": sqliteEng,
	}
}

func mustDoc(t *testing.T, id string, fields map[string]any) Document {
	t.Helper()
	m := map[string]any{"_id": id}
	for k, v := range fields {
		m[k] = v
	}
	body, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal test doc: %v", err)
	}
	return Document{ID: id, Body: body}
}

func TestEngine_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, eng := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			doc := mustDoc(t, "settings", map[string]any{"type": "settings", "currency": "€"})

			rev, err := eng.Put(ctx, doc)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if rev == "" {
				t.Fatal("Put returned empty revision")
			}

			got, err := eng.Get(ctx, "settings")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Rev != rev {
				t.Errorf("Get rev = %q, want %q", got.Rev, rev)
			}

			var decoded struct {
				ID       string `json:"_id"`
				Rev      string `json:"_rev"`
				Currency string `json:"currency"`
			}
			if err := got.Unmarshal(&decoded); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if decoded.ID != "settings" || decoded.Rev != rev || decoded.Currency != "€" {
				t.Errorf("unexpected body: %+v", decoded)
			}
		})
	}
}

func TestEngine_GetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	for name, eng := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := eng.Get(ctx, "nope")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Get missing doc: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestEngine_RevisionConflicts(t *testing.T) {
	ctx := context.Background()
	for name, eng := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			doc := mustDoc(t, "cat_Rent", map[string]any{"type": "category", "name": "Rent"})
			rev1, err := eng.Put(ctx, doc)
			if err != nil {
				t.Fatalf("initial Put: %v", err)
			}

			t.Run("stale rev on update", func(t *testing.T) {
				stale := doc // rev still empty
				if _, err := eng.Put(ctx, stale); !errors.Is(err, ErrConflict) {
					t.Errorf("Put with stale rev: err = %v, want ErrConflict", err)
				}
			})

			t.Run("fresh rev succeeds", func(t *testing.T) {
				current, err := eng.Get(ctx, "cat_Rent")
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				rev2, err := eng.Put(ctx, current)
				if err != nil {
					t.Fatalf("Put with current rev: %v", err)
				}
				if rev2 == rev1 {
					t.Error("revision did not advance")
				}
			})

			t.Run("create with nonempty rev conflicts", func(t *testing.T) {
				ghost := mustDoc(t, "cat_Ghost", map[string]any{"type": "category", "name": "Ghost"})
				ghost.Rev = "1-deadbeef"
				if _, err := eng.Put(ctx, ghost); !errors.Is(err, ErrConflict) {
					t.Errorf("create with rev: err = %v, want ErrConflict", err)
				}
			})

			t.Run("remove with stale rev conflicts", func(t *testing.T) {
				stale := Document{ID: "cat_Rent", Rev: rev1}
				if err := eng.Remove(ctx, stale); !errors.Is(err, ErrConflict) {
					t.Errorf("Remove with stale rev: err = %v, want ErrConflict", err)
				}
			})

			t.Run("remove with current rev succeeds", func(t *testing.T) {
				current, err := eng.Get(ctx, "cat_Rent")
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if err := eng.Remove(ctx, current); err != nil {
					t.Fatalf("Remove: %v", err)
				}
				if _, err := eng.Get(ctx, "cat_Rent"); !errors.Is(err, ErrNotFound) {
					t.Errorf("doc still present after remove: %v", err)
				}
			})
		})
	}
}

func TestEngine_RangeScanOrderAndBounds(t *testing.T) {
	ctx := context.Background()
	for name, eng := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			ids := []string{
				"exp_0000000000500_aaaaaa",
				"exp_0000000001000_bbbbbb",
				"exp_0000000001500_cccccc",
				"exp_0000000002000_dddddd",
				"month_202601",
				"settings",
			}
			for _, id := range ids {
				if _, err := eng.Put(ctx, mustDoc(t, id, map[string]any{"type": "any"})); err != nil {
					t.Fatalf("Put %s: %v", id, err)
				}
			}

			got, err := eng.RangeScan(ctx, "exp_0000000001000", "exp_0000000002000￿")
			if err != nil {
				t.Fatalf("RangeScan: %v", err)
			}
			want := []string{
				"exp_0000000001000_bbbbbb",
				"exp_0000000001500_cccccc",
				"exp_0000000002000_dddddd",
			}
			if len(got) != len(want) {
				t.Fatalf("RangeScan returned %d docs, want %d", len(got), len(want))
			}
			for i, doc := range got {
				if doc.ID != want[i] {
					t.Errorf("doc[%d].ID = %q, want %q", i, doc.ID, want[i])
				}
			}
		})
	}
}

func TestEngine_PrefixScan(t *testing.T) {
	ctx := context.Background()
	for name, eng := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"cat_Rent", "cat_Travel", "month_202601", "settings"} {
				if _, err := eng.Put(ctx, mustDoc(t, id, map[string]any{"type": "any"})); err != nil {
					t.Fatalf("Put %s: %v", id, err)
				}
			}

			got, err := eng.RangeScan(ctx, "cat_", "cat_￿")
			if err != nil {
				t.Fatalf("RangeScan: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("prefix scan returned %d docs, want 2", len(got))
			}
			if got[0].ID != "cat_Rent" || got[1].ID != "cat_Travel" {
				t.Errorf("unexpected ids: %s, %s", got[0].ID, got[1].ID)
			}
		})
	}
}

func TestEngine_BulkWritePartialFailure(t *testing.T) {
	ctx := context.Background()
	for name, eng := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			seed := mustDoc(t, "cat_Rent", map[string]any{"type": "category", "name": "Rent"})
			if _, err := eng.Put(ctx, seed); err != nil {
				t.Fatalf("seed Put: %v", err)
			}

			batch := []Document{
				mustDoc(t, "cat_New", map[string]any{"type": "category", "name": "New"}),
				seed, // empty rev against existing doc: conflicts
				mustDoc(t, "cat_Other", map[string]any{"type": "category", "name": "Other"}),
			}
			results := eng.BulkWrite(ctx, batch)
			if len(results) != 3 {
				t.Fatalf("BulkWrite returned %d results, want 3", len(results))
			}
			if results[0].Err != nil {
				t.Errorf("result[0] unexpected error: %v", results[0].Err)
			}
			if !errors.Is(results[1].Err, ErrConflict) {
				t.Errorf("result[1] err = %v, want ErrConflict", results[1].Err)
			}
			if results[2].Err != nil {
				t.Errorf("result[2] unexpected error: %v", results[2].Err)
			}

			// The failed entry must not block the rest of the batch.
			if _, err := eng.Get(ctx, "cat_Other"); err != nil {
				t.Errorf("doc after conflicting entry was not written: %v", err)
			}
		})
	}
}

func TestEngine_DestroyEmptiesStore(t *testing.T) {
	ctx := context.Background()
	for name, eng := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 4; i++ {
				id := fmt.Sprintf("cat_%d", i)
				if _, err := eng.Put(ctx, mustDoc(t, id, map[string]any{"type": "category"})); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			if err := eng.Destroy(ctx); err != nil {
				t.Fatalf("Destroy: %v", err)
			}
			docs, err := eng.AllDocs(ctx)
			if err != nil {
				t.Fatalf("AllDocs: %v", err)
			}
			if len(docs) != 0 {
				t.Errorf("store holds %d docs after destroy, want 0", len(docs))
			}

			// A destroyed store stays usable.
			if _, err := eng.Put(ctx, mustDoc(t, "settings", map[string]any{"type": "settings"})); err != nil {
				t.Errorf("Put after destroy: %v", err)
			}
		})
	}
}

func TestPutIfMissing(t *testing.T) {
	ctx := context.Background()
	eng := NewMemoryEngine()

	doc := mustDoc(t, "cat_Rent", map[string]any{"type": "category", "name": "Rent"})
	wrote, err := PutIfMissing(ctx, eng, doc)
	if err != nil {
		t.Fatalf("PutIfMissing: %v", err)
	}
	if !wrote {
		t.Error("first PutIfMissing reported no write")
	}

	wrote, err = PutIfMissing(ctx, eng, doc)
	if err != nil {
		t.Fatalf("second PutIfMissing: %v", err)
	}
	if wrote {
		t.Error("second PutIfMissing wrote over an existing doc")
	}
}

func TestOpen_MemoryPlatform(t *testing.T) {
	eng, err := Open(context.Background(), Options{Name: "t", Platform: "memory"}, log.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if eng.Name() != "memory" {
		t.Errorf("engine = %q, want memory", eng.Name())
	}
}

func TestOpen_FallsBackWhenSQLiteUnavailable(t *testing.T) {
	// A regular file where the data directory should be makes sqlite fail.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "data")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	eng, err := Open(context.Background(), Options{
		Name:     "t",
		Platform: "android",
		DataDir:  filepath.Join(blocker, "nested"),
	}, log.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if eng.Name() != "memory" {
		t.Errorf("engine = %q, want memory fallback", eng.Name())
	}
}

func TestFromValue(t *testing.T) {
	type sample struct {
		ID   string `json:"_id"`
		Rev  string `json:"_rev,omitempty"`
		Type string `json:"type"`
	}

	doc, err := FromValue(sample{ID: "settings", Type: "settings"})
	if err != nil {
		t.Fatalf("FromValue: %v", err)
	}
	if doc.ID != "settings" || doc.Rev != "" {
		t.Errorf("unexpected identity: %+v", doc)
	}

	if _, err := FromValue(sample{Type: "settings"}); err == nil {
		t.Error("FromValue accepted a doc without _id")
	}
}
