// Package tui renders a live notification feed for one role.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fieldline/internal/domain"
	"fieldline/internal/notify"
)

var (
	accentColor = lipgloss.Color("#2563EB")
	mutedColor  = lipgloss.Color("#6B7280")
	errorColor  = lipgloss.Color("#EF4444")
	freshColor  = lipgloss.Color("#10B981")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Background(accentColor).
			Foreground(lipgloss.Color("#F9FAFB")).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(accentColor).
			Bold(true)

	readStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	freshStyle = lipgloss.NewStyle().Foreground(freshColor).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(errorColor)
	helpStyle  = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
)

type pollMsg struct {
	update notify.Update
	err    error
}

type tickMsg struct{}

type markedMsg struct {
	id  string
	all bool
	err error
}

// Watch is the bubbletea model behind `fl notif watch`.
type Watch struct {
	poller   *notify.Poller
	channel  notify.Channel
	role     domain.Role
	interval time.Duration
	timeout  time.Duration

	spinner  spinner.Model
	items    []domain.Notification
	fresh    map[string]bool
	selected int
	loading  bool
	err      error
	lastPoll time.Time
	now      func() time.Time
}

// NewWatch polls ch for role every interval.
func NewWatch(ch notify.Channel, role domain.Role, limit int, interval time.Duration) *Watch {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)
	return &Watch{
		poller:   notify.NewPoller(ch, role, limit),
		channel:  ch,
		role:     role,
		interval: interval,
		timeout:  10 * time.Second,
		spinner:  sp,
		fresh:    map[string]bool{},
		loading:  true,
		now:      time.Now,
	}
}

// Run starts the program on the terminal.
func (w *Watch) Run() error {
	_, err := tea.NewProgram(w, tea.WithAltScreen()).Run()
	return err
}

func (w *Watch) Init() tea.Cmd {
	return tea.Batch(w.spinner.Tick, w.poll())
}

func (w *Watch) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		up, err := w.poller.Poll(ctx)
		return pollMsg{update: up, err: err}
	}
}

func (w *Watch) tick() tea.Cmd {
	return tea.Tick(w.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (w *Watch) markRead(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		_, err := w.poller.MarkRead(ctx, id)
		return markedMsg{id: id, err: err}
	}
}

func (w *Watch) markAll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		_, err := w.channel.MarkAllRead(ctx, w.role)
		return markedMsg{all: true, err: err}
	}
}

func (w *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return w, tea.Quit
		case "up", "k":
			if w.selected > 0 {
				w.selected--
			}
		case "down", "j":
			if w.selected < len(w.items)-1 {
				w.selected++
			}
		case "enter", " ":
			if w.selected < len(w.items) && !w.items[w.selected].Read {
				return w, w.markRead(w.items[w.selected].ID)
			}
		case "a":
			return w, w.markAll()
		case "r":
			w.loading = true
			return w, w.poll()
		}
		return w, nil

	case pollMsg:
		w.loading = false
		w.lastPoll = w.now()
		w.err = msg.err
		if msg.err == nil {
			w.items = msg.update.Items
			w.fresh = map[string]bool{}
			for _, n := range msg.update.Fresh {
				w.fresh[n.ID] = true
			}
			if w.selected >= len(w.items) {
				w.selected = max(len(w.items)-1, 0)
			}
		}
		return w, w.tick()

	case tickMsg:
		w.loading = true
		return w, w.poll()

	case markedMsg:
		w.err = msg.err
		if msg.err != nil {
			return w, nil
		}
		if msg.all {
			w.loading = true
			return w, w.poll()
		}
		for i := range w.items {
			if w.items[i].ID == msg.id {
				w.items[i].Read = true
			}
		}
		return w, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spinner, cmd = w.spinner.Update(msg)
		return w, cmd
	}
	return w, nil
}

// Unread counts the visible window, matching the server's count.
func (w *Watch) Unread() int {
	return notify.Unread(w.items)
}

func (w *Watch) View() string {
	var b strings.Builder
	header := titleStyle.Render("Notifications · "+string(w.role)) + " " + badgeStyle.Render(fmt.Sprintf("%d non lues", w.Unread()))
	if w.loading {
		header += " " + w.spinner.View()
	}
	b.WriteString(header + "\n\n")

	if len(w.items) == 0 {
		b.WriteString(itemStyle.Render(readStyle.Render("Aucune notification")) + "\n")
	}
	for i, n := range w.items {
		line := fmt.Sprintf("%s  %s : %s", n.ID, n.Title, n.Message)
		target := notify.RedirectURL(n.Role, n.Payload)
		switch {
		case w.fresh[n.ID]:
			line = freshStyle.Render("● " + line)
		case n.Read:
			line = readStyle.Render("  " + line)
		default:
			line = "● " + line
		}
		line += "\n    " + readStyle.Render("→ "+target)
		if i == w.selected {
			b.WriteString(selectedStyle.Render(line) + "\n")
		} else {
			b.WriteString(itemStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n")
	if w.err != nil {
		b.WriteString(errStyle.Render("erreur: "+w.err.Error()) + "\n")
	}
	status := "j/k: naviguer · entrée: lu · a: tout lu · r: rafraîchir · q: quitter"
	if !w.lastPoll.IsZero() {
		status = fmt.Sprintf("maj %s · %s", w.lastPoll.Format("15:04:05"), status)
	}
	b.WriteString(helpStyle.Render(status))
	return b.String()
}
