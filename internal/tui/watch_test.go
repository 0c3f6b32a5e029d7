package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fieldline/internal/domain"
)

type memChannel struct {
	items []domain.Notification
}

func (m *memChannel) add(id, title string) {
	m.items = append(m.items, domain.Notification{
		Seq:     int64(len(m.items) + 1),
		ID:      id,
		Title:   title,
		Message: "m",
		Role:    domain.RoleBrigade,
		Payload: domain.Payload{TaskID: "T001"},
	})
}

func (m *memChannel) ListForRole(_ context.Context, role domain.Role, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		if m.items[i].Role == role {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *memChannel) ListSince(context.Context, domain.Role, int64, int) ([]domain.Notification, error) {
	return nil, nil
}

func (m *memChannel) MarkRead(_ context.Context, id string) (bool, error) {
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memChannel) MarkAllRead(_ context.Context, role domain.Role) (int, error) {
	n := 0
	for i := range m.items {
		if m.items[i].Role == role && !m.items[i].Read {
			m.items[i].Read = true
			n++
		}
	}
	return n, nil
}

// run executes cmd and feeds its message back, as the runtime would.
func run(t *testing.T, w *Watch, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	w.Update(cmd())
}

func TestWatchHighlightsFreshItemsAfterPriming(t *testing.T) {
	ch := &memChannel{}
	ch.add("N001", "Nouvelle tâche")
	w := NewWatch(ch, domain.RoleBrigade, 10, time.Second)
	w.now = func() time.Time { return time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC) }

	run(t, w, w.poll())
	if len(w.items) != 1 || len(w.fresh) != 0 || w.Unread() != 1 {
		t.Fatalf("first poll only primes: items=%d fresh=%v", len(w.items), w.fresh)
	}

	ch.add("N002", "Rapport validé")
	run(t, w, w.poll())
	if !w.fresh["N002"] || w.fresh["N001"] {
		t.Fatalf("expected only N002 fresh, got %v", w.fresh)
	}
	view := w.View()
	if !strings.Contains(view, "2 non lues") || !strings.Contains(view, "/brigade/taches/T001") {
		t.Fatalf("unexpected view:\n%s", view)
	}
}

func TestWatchKeysMarkRead(t *testing.T) {
	ch := &memChannel{}
	ch.add("N001", "a")
	ch.add("N002", "b")
	w := NewWatch(ch, domain.RoleBrigade, 10, time.Second)
	run(t, w, w.poll())

	// Newest first: N002 is selected.
	_, cmd := w.Update(tea.KeyMsg{Type: tea.KeyEnter})
	run(t, w, cmd)
	if w.items[0].Read != true || w.Unread() != 1 {
		t.Fatalf("enter should mark the selection read: %+v", w.items)
	}

	w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if w.selected != 1 {
		t.Fatalf("selection did not move: %d", w.selected)
	}

	_, cmd = w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	msg := cmd()
	_, cmd = w.Update(msg)
	run(t, w, cmd)
	if w.Unread() != 0 {
		t.Fatalf("mark all should clear the window, unread=%d", w.Unread())
	}

	_, cmd = w.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q should quit")
	}
}
