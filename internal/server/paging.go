package server

import (
	"strconv"
	"strings"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func pageLimit(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	}
	return n
}

// taskCursor points after a row of the newest-first task listing. It is
// sent to clients as "created_at|id".
type taskCursor struct {
	CreatedAt string
	ID        string
}

func parseTaskCursor(s string) (taskCursor, bool) {
	if s == "" {
		return taskCursor{}, true
	}
	ts, id, ok := strings.Cut(s, "|")
	if !ok || ts == "" || id == "" {
		return taskCursor{}, false
	}
	return taskCursor{CreatedAt: ts, ID: id}, true
}

func (c taskCursor) String() string {
	if c.CreatedAt == "" || c.ID == "" {
		return ""
	}
	return c.CreatedAt + "|" + c.ID
}

// parseSeqCursor reads a numeric position in an append-only sequence.
func parseSeqCursor(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, badRequest("invalid cursor", map[string]any{"cursor": s})
	}
	return n, nil
}
