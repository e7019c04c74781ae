package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

const defaultSendTimeout = 10 * time.Second

type NtfyOptions struct {
	URL           string // server root, e.g. https://ntfy.sh
	Topic         string
	Token         string // optional access token
	RatePerMinute int    // 0 disables throttling
	Burst         int
	Timeout       time.Duration
	Logger        *slog.Logger
	HTTPClient    *http.Client
}

// Ntfy publishes notifications to an ntfy topic.
type Ntfy struct {
	endpoint string
	token    string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewNtfy(opts NtfyOptions) *Ntfy {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var limiter *rate.Limiter
	if opts.RatePerMinute > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 5
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), burst)
	}

	return &Ntfy{
		endpoint: strings.TrimRight(opts.URL, "/") + "/" + strings.Trim(opts.Topic, "/"),
		token:    opts.Token,
		timeout:  timeout,
		http:     hc,
		limiter:  limiter,
		logger:   logger,
	}
}

// Notify queues n for delivery on its own goroutine.  Delivery outlives ctx
// cancellation (the command that triggered it is usually done by then) but
// is bounded by the send timeout.
func (n *Ntfy) Notify(ctx context.Context, note Notification) {
	if n.limiter != nil && !n.limiter.Allow() {
		n.logger.Warn("notification dropped by rate limit", "title", note.Title, "severity", note.Severity.String())
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		if err := n.Send(sendCtx, note); err != nil {
			n.logger.Warn("notification delivery failed", "title", note.Title, "err", err)
			return
		}
		n.logger.Debug("notification sent", "title", note.Title, "priority", note.Severity.Priority())
	}()
}

// Send delivers note synchronously.
func (n *Ntfy) Send(ctx context.Context, note Notification) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(note.Message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if note.Title != "" {
		req.Header.Set("Title", note.Title)
	}
	req.Header.Set("Priority", note.Severity.Priority())
	req.Header.Set("Tags", strings.Join(tagsFor(note), ","))
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("post ntfy: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post ntfy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Close waits for in-flight deliveries.
func (n *Ntfy) Close() {
	n.wg.Wait()
}

func tagsFor(note Notification) []string {
	tags := make([]string, 0, len(note.Tags)+1)
	tags = append(tags, note.Severity.Tag())
	for _, t := range note.Tags {
		t = strings.TrimSpace(t)
		if t != "" && t != tags[0] {
			tags = append(tags, t)
		}
	}
	return tags
}
