package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/arkilian/nanostore/internal/config"
	"github.com/arkilian/nanostore/internal/query"
	"github.com/arkilian/nanostore/pkg/types"
)

func openBenchStore(b *testing.B, saveInterval int) *Store {
	b.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = b.TempDir()
	cfg.Store.SaveInterval = saveInterval
	s, err := Open(context.Background(), cfg)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { s.Close() })
	return s
}

func generateTestDocuments(count int) []types.Document {
	docs := make([]types.Document, count)
	for i := 0; i < count; i++ {
		docs[i] = types.NewTaggedObject("Event", "", map[string]any{
			"tenant": fmt.Sprintf("tenant_%d", i%100),
			"user":   int64(i % 1000),
			"type":   "test_event",
			"payload": map[string]any{
				"index": i,
				"data":  "test payload data",
				"tags":  []any{"a", "b"},
			},
		})
	}
	return docs
}

// BenchmarkAddObjects measures batched document writes.
func BenchmarkAddObjects(b *testing.B) {
	s := openBenchStore(b, 1000)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	total := 0
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		docs := generateTestDocuments(1000)
		b.StartTimer()
		if err := s.AddObjects(ctx, docs...); err != nil {
			b.Fatal(err)
		}
		total += len(docs)
	}
	if err := s.SaveStore(ctx); err != nil {
		b.Fatal(err)
	}

	b.ReportMetric(float64(total)/b.Elapsed().Seconds(), "docs/sec")
}

// BenchmarkSearchEqualTo measures an attribute search over 10,000 documents,
// with and without an attribute index.
func BenchmarkSearchEqualTo(b *testing.B) {
	for _, indexed := range []bool{false, true} {
		b.Run(fmt.Sprintf("indexed=%v", indexed), func(b *testing.B) {
			s := openBenchStore(b, 1000)
			ctx := context.Background()
			if err := s.AddObjects(ctx, generateTestDocuments(10000)...); err != nil {
				b.Fatal(err)
			}
			if err := s.SaveStore(ctx); err != nil {
				b.Fatal(err)
			}
			if indexed {
				if err := s.CreateAttributeIndex(ctx, "tenant"); err != nil {
					b.Fatal(err)
				}
			}

			sr := query.NewSearch()
			sr.Attribute = "tenant"
			sr.Value = "tenant_42"
			sr.Match = query.EqualTo
			sr.ReturnType = query.ReturnKeys

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				res, err := s.Search(ctx, sr)
				if err != nil {
					b.Fatal(err)
				}
				if len(res.Keys) != 100 {
					b.Fatalf("got %d keys, want 100", len(res.Keys))
				}
			}
		})
	}
}

// BenchmarkObjectsWithKeys measures hydration of stored documents.
func BenchmarkObjectsWithKeys(b *testing.B) {
	s := openBenchStore(b, 1000)
	ctx := context.Background()
	docs := generateTestDocuments(1000)
	if err := s.AddObjects(ctx, docs...); err != nil {
		b.Fatal(err)
	}
	if err := s.SaveStore(ctx); err != nil {
		b.Fatal(err)
	}
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key()
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		got, err := s.ObjectsWithKeys(ctx, keys)
		if err != nil {
			b.Fatal(err)
		}
		if len(got) != len(keys) {
			b.Fatalf("got %d documents, want %d", len(got), len(keys))
		}
	}
}
