package archive_test

import (
	"context"
	"testing"
	"time"

	"cadence/internal/archive"
	"cadence/internal/testsupport"
)

func TestRecordAndContains(t *testing.T) {
	store := testsupport.MustOpenArchive(t, testsupport.NewConfig(t))
	ctx := context.Background()

	archived, err := store.Contains(ctx, "t1")
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if archived {
		t.Fatal("empty archive must not contain t1")
	}

	entry := archive.Entry{
		TrackID:      "t1",
		Title:        "Some Song",
		Artist:       "Some Artist",
		FilePath:     "/music/Some Artist/Some Album/01 - Some Song.mp3",
		DownloadedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	archived, err = store.Contains(ctx, "t1")
	if err != nil || !archived {
		t.Fatalf("Contains = (%v, %v), want true", archived, err)
	}
}

func TestRecordUpsertsOnConflict(t *testing.T) {
	store := testsupport.MustOpenArchive(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.Record(ctx, archive.Entry{TrackID: "t1", Title: "Old Title"}); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := store.Record(ctx, archive.Entry{TrackID: "t1", Title: "New Title", FilePath: "/music/new.mp3"}); err != nil {
		t.Fatalf("second record: %v", err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 after upsert", len(entries))
	}
	if entries[0].Title != "New Title" || entries[0].FilePath != "/music/new.mp3" {
		t.Fatalf("upsert did not refresh fields: %+v", entries[0])
	}
}

func TestRecordRequiresTrackID(t *testing.T) {
	store := testsupport.MustOpenArchive(t, testsupport.NewConfig(t))
	if err := store.Record(context.Background(), archive.Entry{Title: "No ID"}); err == nil {
		t.Fatal("record without track id must fail")
	}
}

func TestListOrdersByDownloadTime(t *testing.T) {
	store := testsupport.MustOpenArchive(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"t3", "t1", "t2"} {
		entry := archive.Entry{TrackID: id, DownloadedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i, want := range []string{"t3", "t1", "t2"} {
		if entries[i].TrackID != want {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].TrackID, want)
		}
	}
}

func TestRemoveAndCount(t *testing.T) {
	store := testsupport.MustOpenArchive(t, testsupport.NewConfig(t))
	ctx := context.Background()

	store.Record(ctx, archive.Entry{TrackID: "t1"})
	store.Record(ctx, archive.Entry{TrackID: "t2"})

	if n, err := store.Count(ctx); err != nil || n != 2 {
		t.Fatalf("Count = (%d, %v), want 2", n, err)
	}

	removed, err := store.Remove(ctx, "t1")
	if err != nil || !removed {
		t.Fatalf("Remove = (%v, %v), want true", removed, err)
	}
	removed, err = store.Remove(ctx, "t1")
	if err != nil || removed {
		t.Fatalf("second Remove = (%v, %v), want false", removed, err)
	}

	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("Count after remove = %d, want 1", n)
	}
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := archive.Open(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	ctx := context.Background()
	if err := store.Record(ctx, archive.Entry{TrackID: "t1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := archive.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	archived, err := reopened.Contains(ctx, "t1")
	if err != nil || !archived {
		t.Fatalf("Contains after reopen = (%v, %v), want true", archived, err)
	}
}
