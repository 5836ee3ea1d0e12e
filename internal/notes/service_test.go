package notes

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceConfig{IDProvider: NewUUIDProvider()}); err == nil {
		t.Fatalf("expected missing database error")
	}
}

func TestCreateValidatesAndDefaultsCategory(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	if _, err := service.Create(ctx, CreateRequest{UserID: 1, Title: "empty"}); !errors.Is(err, ErrInvalidNote) {
		t.Fatalf("expected invalid note for missing content, got %v", err)
	}
	if _, err := service.Create(ctx, CreateRequest{Content: "orphan"}); !errors.Is(err, ErrInvalidNote) {
		t.Fatalf("expected invalid note for missing user, got %v", err)
	}

	note, err := service.Create(ctx, CreateRequest{UserID: 1, Content: "  buy milk  "})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if note.Content != "buy milk" || note.Category != DefaultCategory || note.Title != "" {
		t.Fatalf("unexpected note %+v", note)
	}
	if note.NoteID == "" || note.CreatedAtSeconds == 0 {
		t.Fatalf("expected id and timestamps to be assigned: %+v", note)
	}
}

func TestListOrdersPinnedFirstThenNewest(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	first, _ := service.Create(ctx, CreateRequest{UserID: 1, Content: "first", Category: "Work"})
	second, _ := service.Create(ctx, CreateRequest{UserID: 1, Content: "second"})
	third, _ := service.Create(ctx, CreateRequest{UserID: 1, Content: "third"})
	if _, err := service.Create(ctx, CreateRequest{UserID: 2, Content: "foreign"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	pinned, err := service.TogglePin(ctx, 1, mustNoteID(t, first.NoteID))
	if err != nil {
		t.Fatalf("toggle pin failed: %v", err)
	}
	if !pinned.IsPinned {
		t.Fatalf("expected note to be pinned")
	}

	notes, err := service.List(ctx, 1, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	expected := []string{first.NoteID, third.NoteID, second.NoteID}
	if len(notes) != len(expected) {
		t.Fatalf("expected %d notes, got %d", len(expected), len(notes))
	}
	for index, note := range notes {
		if note.NoteID != expected[index] {
			t.Fatalf("position %d: expected %s, got %s", index, expected[index], note.NoteID)
		}
	}

	work, err := service.List(ctx, 1, "work")
	if err != nil {
		t.Fatalf("list by category failed: %v", err)
	}
	if len(work) != 1 || work[0].NoteID != first.NoteID {
		t.Fatalf("expected category filter to return the work note, got %+v", work)
	}
}

func TestTogglePinTwiceRestoresState(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	note, _ := service.Create(ctx, CreateRequest{UserID: 1, Content: "x"})
	id := mustNoteID(t, note.NoteID)

	if _, err := service.TogglePin(ctx, 1, id); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	unpinned, err := service.TogglePin(ctx, 1, id)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if unpinned.IsPinned {
		t.Fatalf("expected note to be unpinned")
	}
	if _, err := service.TogglePin(ctx, 2, id); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected foreign toggle to be rejected, got %v", err)
	}
}

func TestDeleteAndCounts(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	keep, _ := service.Create(ctx, CreateRequest{UserID: 1, Content: "keep"})
	drop, _ := service.Create(ctx, CreateRequest{UserID: 1, Content: "drop"})
	_, _ = service.Create(ctx, CreateRequest{UserID: 2, Content: "other"})
	if _, err := service.TogglePin(ctx, 1, mustNoteID(t, keep.NoteID)); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}

	if err := service.Delete(ctx, 2, mustNoteID(t, drop.NoteID)); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected foreign delete to be rejected, got %v", err)
	}
	if err := service.Delete(ctx, 1, mustNoteID(t, drop.NoteID)); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := service.Get(ctx, 1, mustNoteID(t, drop.NoteID)); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected deleted note to be gone, got %v", err)
	}

	counts, err := service.Counts(ctx, 1)
	if err != nil {
		t.Fatalf("counts failed: %v", err)
	}
	if counts.Total != 1 || counts.Pinned != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	all, err := service.Counts(ctx, 0)
	if err != nil {
		t.Fatalf("counts failed: %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("expected two notes overall, got %+v", all)
	}
}

func TestUUIDProviderIssuesVersion7(t *testing.T) {
	value, err := NewUUIDProvider().NewID()
	if err != nil {
		t.Fatalf("new id failed: %v", err)
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		t.Fatalf("expected uuid, got %q", value)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestNewNoteIDRejectsBlank(t *testing.T) {
	if _, err := NewNoteID("  "); !errors.Is(err, ErrInvalidNoteID) {
		t.Fatalf("expected invalid note id, got %v", err)
	}
}
