package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"midisession/internal/config"
	"midisession/internal/textutil"
)

const userAgent = "midisession"

// Service is the alert surface the daemon calls on topology changes.
type Service interface {
	NotifyDeviceConnected(ctx context.Context, device, manufacturer string) error
	NotifyDeviceDisconnected(ctx context.Context, device string) error
	NotifyDriverError(ctx context.Context, device string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service. Without a topic it returns a
// service whose methods do nothing.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		clientName: strings.TrimSpace(cfg.Client.Name),
	}
}

// Enabled reports whether svc actually delivers anything.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	clientName string
}

func (n *ntfyService) NotifyDeviceConnected(ctx context.Context, device, manufacturer string) error {
	device = strings.TrimSpace(device)
	message := fmt.Sprintf("Connected: %s", device)
	if manufacturer = strings.TrimSpace(manufacturer); manufacturer != "" {
		message = fmt.Sprintf("%s (%s)", message, manufacturer)
	}
	return n.send(ctx, payload{
		title:   n.titled("Device Connected"),
		message: message,
		tags:    []string{"midisession", "device", "connected", textutil.SanitizeToken(device)},
	})
}

func (n *ntfyService) NotifyDeviceDisconnected(ctx context.Context, device string) error {
	device = strings.TrimSpace(device)
	return n.send(ctx, payload{
		title:   n.titled("Device Disconnected"),
		message: fmt.Sprintf("Disconnected: %s", device),
		tags:    []string{"midisession", "device", "disconnected", textutil.SanitizeToken(device)},
	})
}

func (n *ntfyService) NotifyDriverError(ctx context.Context, device string, err error) error {
	var b strings.Builder
	b.WriteString("Driver error")
	if device = strings.TrimSpace(device); device != "" {
		b.WriteString(" on ")
		b.WriteString(device)
	}
	b.WriteString(": ")
	if err != nil {
		b.WriteString(strings.TrimSpace(err.Error()))
	} else {
		b.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    n.titled("Driver Error"),
		message:  b.String(),
		tags:     []string{"midisession", "driver", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    n.titled("Test"),
		message:  "Notification system test",
		tags:     []string{"midisession", "test"},
		priority: "low",
	})
}

func (n *ntfyService) titled(event string) string {
	if n.clientName == "" {
		return "midisession - " + event
	}
	return n.clientName + " - " + event
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDeviceConnected(context.Context, string, string) error { return nil }
func (noopService) NotifyDeviceDisconnected(context.Context, string) error      { return nil }
func (noopService) NotifyDriverError(context.Context, string, error) error      { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
