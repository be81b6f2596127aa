package dashboard

import (
	"testing"

	"github.com/cowork-run/supervisor/internal/facade"
	"github.com/cowork-run/supervisor/internal/service"
)

func TestModel_Init(t *testing.T) {
	m := NewModel(nil, nil, "", service.WorkerSpec{}, nil)
	if m.cursor != 0 {
		t.Errorf("initial cursor = %d, want 0", m.cursor)
	}
}

func TestModel_MoveCursor(t *testing.T) {
	m := NewModel(nil, nil, "", service.WorkerSpec{}, nil)
	m.sessions = []facade.Session{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	m.moveCursor(1)
	if m.cursor != 1 {
		t.Errorf("cursor after down = %d, want 1", m.cursor)
	}
	m.moveCursor(1)
	if m.cursor != 2 {
		t.Errorf("cursor after second down = %d, want 2", m.cursor)
	}
	m.moveCursor(1)
	if m.cursor != 2 {
		t.Errorf("cursor at bottom = %d, want 2", m.cursor)
	}
	m.moveCursor(-1)
	if m.cursor != 1 {
		t.Errorf("cursor after up = %d, want 1", m.cursor)
	}
}

func TestModel_SelectedSession(t *testing.T) {
	m := NewModel(nil, nil, "", service.WorkerSpec{}, nil)
	m.sessions = []facade.Session{
		{ID: "1", Title: "one"},
		{ID: "2", Title: "two"},
	}

	m.cursor = 1
	selected := m.SelectedSession()
	if selected == nil {
		t.Fatal("expected selected session")
	}
	if selected.Title != "two" {
		t.Errorf("selected title = %q, want %q", selected.Title, "two")
	}
}

func TestModel_SelectedSessionEmpty(t *testing.T) {
	m := NewModel(nil, nil, "", service.WorkerSpec{}, nil)
	if s := m.SelectedSession(); s != nil {
		t.Fatalf("expected nil selection on empty session list, got %+v", s)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short string = %q, want %q", got, "hello")
	}
	if got := truncate("hello world", 7); got != "hello …" {
		t.Errorf("truncate long string = %q, want %q", got, "hello …")
	}
}

func TestBoolIndicator(t *testing.T) {
	if got := boolIndicator(true); got == "" {
		t.Fatal("expected non-empty indicator")
	}
}
