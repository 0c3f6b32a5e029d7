package fieldlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldline/internal/domain"
)

// Client is a minimal Fieldline HTTP API client. It satisfies
// notify.Channel for the role its credentials carry.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// Role, when set, is checked against the role passed to channel calls.
	Role       domain.Role
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

type Phase struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
	PlannedStart string `json:"planned_start,omitempty"`
	PlannedEnd   string `json:"planned_end,omitempty"`
}

type NewTask struct {
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	PlannedStart string                `json:"planned_start,omitempty"`
	PlannedEnd   string                `json:"planned_end,omitempty"`
	Status       string                `json:"status,omitempty"`
	BrigadeID    string                `json:"brigade_id,omitempty"`
	Employees    []string              `json:"employees,omitempty"`
	Materials    []domain.TaskMaterial `json:"materials,omitempty"`
	Phases       []Phase               `json:"phases,omitempty"`
}

// Task is a task as served by the API.
type Task struct {
	domain.Task
	Progress *domain.TaskProgress `json:"progress,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}

// Notification carries the resolved redirect alongside the stored fields.
type Notification struct {
	domain.Notification
	Redirect string `json:"redirect"`
}

type NotificationWindow struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// DevLogin mints a development token and keeps it on the client.
func (c *Client) DevLogin(ctx context.Context, actorID string, role domain.Role) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]any{"actor_id": actorID, "role": string(role)}
	if err := c.do(ctx, http.MethodPost, "v0/auth/dev/login", body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	c.Role = role
	return resp.Token, nil
}

// CreateTask creates a task with its phases.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "v0/tasks", t, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetTaskStatus accepts a status code or its French label.
func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "v0/tasks/"+url.PathEscape(id), map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) StartPhase(ctx context.Context, id string) (domain.Phase, error) {
	var resp domain.Phase
	err := c.do(ctx, http.MethodPost, "v0/phases/"+url.PathEscape(id)+"/start", nil, &resp)
	return resp, err
}

func (c *Client) CompletePhase(ctx context.Context, id string) (domain.Phase, error) {
	var resp domain.Phase
	err := c.do(ctx, http.MethodPost, "v0/phases/"+url.PathEscape(id)+"/complete", nil, &resp)
	return resp, err
}

// SubmitReport files a report on a phase. Photos are sent inline.
func (c *Client) SubmitReport(ctx context.Context, phaseID, description string, advancement int, photos []domain.PhotoUpload) (domain.Report, error) {
	body := map[string]any{
		"description": description,
		"advancement": advancement,
	}
	if len(photos) > 0 {
		body["photos"] = photos
	}
	var resp domain.Report
	err := c.do(ctx, http.MethodPost, "v0/phases/"+url.PathEscape(phaseID)+"/reports", body, &resp)
	return resp, err
}

// JudgeReport records a verdict given as a code or a French label.
func (c *Client) JudgeReport(ctx context.Context, id, validation string, comment *string) (domain.Report, error) {
	body := map[string]any{"validation": validation}
	if comment != nil {
		body["comment"] = *comment
	}
	var resp domain.Report
	err := c.do(ctx, http.MethodPost, "v0/reports/"+url.PathEscape(id)+"/judgement", body, &resp)
	return resp, err
}

func (c *Client) RequestMaterials(ctx context.Context, taskID string, lines []domain.LineItem) (domain.MaterialRequest, error) {
	var resp domain.MaterialRequest
	endpoint := "v0/tasks/" + url.PathEscape(taskID) + "/material-requests"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"materiels": lines}, &resp)
	return resp, err
}

// Notifications returns the caller's window with its unread count.
func (c *Client) Notifications(ctx context.Context, limit int) (NotificationWindow, error) {
	endpoint := "v0/notifications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp NotificationWindow
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) checkRole(role domain.Role) error {
	if c.Role != "" && role != c.Role {
		return fmt.Errorf("client authenticated as %s cannot read %s notifications", c.Role, role)
	}
	return nil
}

func plain(items []Notification) []domain.Notification {
	out := make([]domain.Notification, 0, len(items))
	for _, n := range items {
		out = append(out, n.Notification)
	}
	return out
}

// ListForRole implements notify.Channel. The server answers for the role in
// the credentials.
func (c *Client) ListForRole(ctx context.Context, role domain.Role, limit int) ([]domain.Notification, error) {
	if err := c.checkRole(role); err != nil {
		return nil, err
	}
	w, err := c.Notifications(ctx, limit)
	if err != nil {
		return nil, err
	}
	return plain(w.Items), nil
}

func (c *Client) ListSince(ctx context.Context, role domain.Role, cursor int64, limit int) ([]domain.Notification, error) {
	if err := c.checkRole(role); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("v0/notifications/since?cursor=%d", cursor)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s&limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Notification `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return plain(resp.Items), nil
}

func (c *Client) MarkRead(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodPost, "v0/notifications/"+url.PathEscape(id)+"/read", nil, nil)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (c *Client) MarkAllRead(ctx context.Context, role domain.Role) (int, error) {
	if err := c.checkRole(role); err != nil {
		return 0, err
	}
	var resp struct {
		Updated int `json:"updated"`
	}
	err := c.do(ctx, http.MethodPost, "v0/notifications/read-all", nil, &resp)
	return resp.Updated, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
