package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/notify"
	"fieldline/internal/repo"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultHookTimeout   = 5 * time.Second
	relayBatch           = 100
)

// hookState is one configured endpoint and how far its role's feed has been
// delivered to it.
type hookState struct {
	url    string
	secret string
	role   domain.Role
	client *http.Client
	cursor int64
	primed bool
}

// webhookRelay pushes each role's new notifications to the configured
// endpoints. A hook starts at the newest notification present when it is
// first polled; nothing older is replayed. A failed delivery is retried on
// the next tick from the same notification.
type webhookRelay struct {
	store    repo.Repo
	channel  notify.Channel
	hooks    []*hookState
	interval time.Duration
	logger   *log.Logger
}

// StartWebhookRelay polls in the background until ctx is done. It does
// nothing when no webhook is configured.
func StartWebhookRelay(ctx context.Context, e engine.Engine, ch notify.Channel) {
	if r := newWebhookRelay(e, ch); r != nil {
		go r.run(ctx)
	}
}

func newWebhookRelay(e engine.Engine, ch notify.Channel) *webhookRelay {
	if e.Config == nil {
		return nil
	}
	logger := e.Logger
	if logger == nil {
		logger = log.Default()
	}
	var hooks []*hookState
	for _, h := range e.Config.Webhooks {
		if (h.Enabled != nil && !*h.Enabled) || strings.TrimSpace(h.URL) == "" {
			continue
		}
		hooks = append(hooks, newHookState(h, logger))
	}
	if len(hooks) == 0 {
		return nil
	}
	if ch == nil {
		ch = notify.NewStoreChannel(e.Repo, e.Config)
	}
	interval := e.Config.PollInterval()
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	return &webhookRelay{store: e.Repo, channel: ch, hooks: hooks, interval: interval, logger: logger}
}

func newHookState(h config.WebhookConfig, logger *log.Logger) *hookState {
	timeout := defaultHookTimeout
	if h.TimeoutSeconds > 0 {
		timeout = time.Duration(h.TimeoutSeconds) * time.Second
	}
	role, err := domain.ParseRole(h.Role)
	if err != nil {
		// Config validation rejects this; default to the section feed.
		logger.Printf("webhook %s: %v, using %s", h.URL, err, domain.RoleSection)
		role = domain.RoleSection
	}
	return &hookState{
		url:    h.URL,
		secret: strings.TrimSpace(h.Secret),
		role:   role,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *webhookRelay) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *webhookRelay) dispatchAll(ctx context.Context) {
	for _, h := range r.hooks {
		if err := r.dispatch(ctx, h); err != nil {
			r.logger.Printf("webhook %s: %v", h.url, err)
		}
	}
}

func (r *webhookRelay) dispatch(ctx context.Context, h *hookState) error {
	if !h.primed {
		seq, err := r.store.LatestNotificationSeq(ctx, h.role)
		if err != nil {
			return fmt.Errorf("init cursor: %w", err)
		}
		h.cursor, h.primed = seq, true
		return nil
	}
	items, err := r.channel.ListSince(ctx, h.role, h.cursor, relayBatch)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}
	for _, n := range items {
		if err := h.deliver(ctx, n); err != nil {
			return fmt.Errorf("deliver %s: %w", n.ID, err)
		}
		h.cursor = n.Seq
	}
	return nil
}

type webhookNotification struct {
	domain.Notification
	Redirect string `json:"redirect"`
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (h *hookState) deliver(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(webhookNotification{Notification: n, Redirect: notify.RedirectURL(n.Role, n.Payload)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Fieldline-Notification", n.ID)
	req.Header.Set("X-Fieldline-Role", string(n.Role))
	req.Header.Set("X-Fieldline-Delivery", strconv.FormatInt(n.Seq, 10))
	if h.secret != "" {
		req.Header.Set("X-Fieldline-Signature", signBody(h.secret, body))
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
