package localdb

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestOpenMigrated(t *testing.T) {
	db, res, err := OpenMigrated(filepath.Join(t.TempDir(), "inbox.db"))
	if err != nil {
		t.Fatalf("OpenMigrated() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if !res.Changed || res.Dirty {
		t.Errorf("fresh database result = %+v", res)
	}
}

func TestSchemaVersion(t *testing.T) {
	fresh, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = fresh.Close() }()
	if _, err := fresh.SchemaVersion(); !errors.Is(err, ErrNotMigrated) {
		t.Errorf("fresh SchemaVersion() error = %v, want ErrNotMigrated", err)
	}

	v, err := testDB(t).SchemaVersion()
	if err != nil || v != 1 {
		t.Errorf("SchemaVersion() = %d, %v, want 1", v, err)
	}
}

func TestDrafts(t *testing.T) {
	db := testDB(t)

	if _, ok, err := db.GetDraft("1"); err != nil || ok {
		t.Fatalf("GetDraft() on empty db = ok %v, err %v", ok, err)
	}
	if err := db.PutDraft("1", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := db.PutDraft("1", "hello again"); err != nil {
		t.Fatal(err)
	}
	d, ok, err := db.GetDraft("1")
	if err != nil || !ok {
		t.Fatalf("GetDraft() ok %v, err %v", ok, err)
	}
	if d.Body != "hello again" {
		t.Errorf("body = %q, want latest write", d.Body)
	}

	if err := db.PutDraft("1", "   "); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := db.GetDraft("1"); ok {
		t.Error("blank draft should delete the row")
	}
}

func TestJournalLifecycle(t *testing.T) {
	db := testDB(t)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(db.JournalQueued("tmp-1", "1", "", "first"))
	must(db.JournalQueued("tmp-2", "1", "t1", "second"))
	must(db.JournalQueued("tmp-3", "2", "", "other contact"))
	must(db.JournalSent("tmp-1", "999"))
	must(db.JournalFailed("tmp-2", "boom"))
	must(db.JournalFailed("tmp-3", "boom"))

	failed, err := db.FailedSends("1")
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].TempID != "tmp-2" || failed[0].Error != "boom" || failed[0].TicketID != "t1" {
		t.Fatalf("FailedSends(1) = %+v", failed)
	}

	all, err := db.FailedSends("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].TempID != "tmp-2" {
		t.Errorf("FailedSends(all) = %+v", all)
	}

	// Retrying re-queues the same temp id.
	must(db.JournalQueued("tmp-2", "1", "t1", "second"))
	if failed, _ := db.FailedSends("1"); len(failed) != 0 {
		t.Errorf("re-queued entry still failed: %+v", failed)
	}

	n, err := db.PruneJournal(clock.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("PruneJournal() removed %d, want 1 sent entry", n)
	}
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)

	if _, ok, err := db.Checkpoint("missing"); err != nil || ok {
		t.Fatalf("Checkpoint(missing) ok %v, err %v", ok, err)
	}
	at := time.Date(2026, 2, 3, 4, 5, 6, 7, time.UTC)
	if err := db.SetTimeCheckpoint(CheckpointConversationsLoaded, at); err != nil {
		t.Fatal(err)
	}
	got, ok, err := db.TimeCheckpoint(CheckpointConversationsLoaded)
	if err != nil || !ok || !got.Equal(at) {
		t.Errorf("TimeCheckpoint() = %v, %v, %v; want %v", got, ok, err, at)
	}
	if err := db.SetCheckpoint("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := db.Checkpoint("k"); v != "v2" {
		t.Errorf("Checkpoint(k) = %q, want v2", v)
	}
}
