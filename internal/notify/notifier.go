package notify

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

	"hadirku/internal/attendance"
	"hadirku/internal/metrics"
	"hadirku/internal/roster"
)

// Methods supported by the gateway config.
const (
	MethodWhatsApp = "WhatsApp"
	MethodTelegram = "Telegram"
)

// Config selects and authenticates the delivery channel.
type Config struct {
	Auto             bool
	Method           string
	WhatsAppEndpoint string
	WhatsAppAPIKey   string
	TelegramBotToken string
}

// Notifier delivers parent notifications over a WhatsApp form-POST gateway
// or the Telegram bot API. Delivery failures are reported but never block
// the attendance flow that triggered them.
type Notifier struct {
	cfg  Config
	http *http.Client
}

// New creates a notifier.
func New(cfg Config) *Notifier {
	return &Notifier{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}
}

// Configured reports whether the selected channel has credentials.
func (n *Notifier) Configured() bool {
	switch n.cfg.Method {
	case MethodWhatsApp:
		return n.cfg.WhatsAppAPIKey != "" && n.cfg.WhatsAppEndpoint != ""
	case MethodTelegram:
		return n.cfg.TelegramBotToken != ""
	}
	return false
}

// Deliver sends the rendered notification for one event to the student's
// parent contact. Skips silently when auto-notify is off, the channel is not
// configured, or the student has no contact on file.
func (n *Notifier) Deliver(ctx context.Context, evt attendance.Event, schoolName string) error {
	if !n.cfg.Auto || !n.Configured() || evt.Student.ParentContact == "" {
		return nil
	}
	message := BuildMessage(evt, schoolName)
	err := n.send(ctx, evt.Student.ParentContact, message)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.NotificationsTotal.WithLabelValues(n.cfg.Method, result).Inc()
	return err
}

// Announce broadcasts a message to every student with a parent contact.
// Returns sent/failed counts; individual failures do not stop the run.
func (n *Notifier) Announce(ctx context.Context, students []roster.Student, text, schoolName string) (sent, failed int) {
	if !n.Configured() {
		return 0, 0
	}
	message := BuildAnnouncement(text, schoolName)
	for _, st := range students {
		if len(st.ParentContact) <= 3 {
			continue
		}
		if err := n.send(ctx, st.ParentContact, message); err != nil {
			failed++
			metrics.NotificationsTotal.WithLabelValues(n.cfg.Method, "error").Inc()
			continue
		}
		sent++
		metrics.NotificationsTotal.WithLabelValues(n.cfg.Method, "ok").Inc()
		// The gateway throttles bursts; pace the broadcast.
		select {
		case <-time.After(400 * time.Millisecond):
		case <-ctx.Done():
			return sent, failed
		}
	}
	return sent, failed
}

// TestGateway verifies connectivity with the configured channel and returns
// a short human-readable confirmation.
func (n *Notifier) TestGateway(ctx context.Context, schoolName string) (string, error) {
	switch n.cfg.Method {
	case MethodWhatsApp:
		if !n.Configured() {
			return "", errors.New("whatsapp gateway not configured")
		}
		testMsg := fmt.Sprintf("🧪 *HADIRKU SYSTEM TEST*\n\nGateway aktif dan tervalidasi!\nSekolah: %s\nWaktu: %s\n\n_Pesan ini adalah uji coba koneksi._",
			schoolName, time.Now().Format("02-01-2006 15:04"))
		if err := n.sendWhatsApp(ctx, "628123456789", testMsg); err != nil {
			return "", err
		}
		return "WhatsApp gateway connected", nil

	case MethodTelegram:
		if !n.Configured() {
			return "", errors.New("telegram bot not configured")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			"https://api.telegram.org/bot"+n.cfg.TelegramBotToken+"/getMe", nil)
		if err != nil {
			return "", err
		}
		resp, err := n.http.Do(req)
		if err != nil {
			return "", fmt.Errorf("telegram: request failed: %w", err)
		}
		defer resp.Body.Close()
		var body struct {
			OK     bool `json:"ok"`
			Result struct {
				Username string `json:"username"`
			} `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !body.OK {
			return "", errors.New("telegram: bot token rejected")
		}
		return "bot active: @" + body.Result.Username, nil
	}
	return "", fmt.Errorf("unsupported notification method %q", n.cfg.Method)
}

func (n *Notifier) send(ctx context.Context, contact, message string) error {
	switch n.cfg.Method {
	case MethodWhatsApp:
		return n.sendWhatsApp(ctx, NormalizePhone(contact), message)
	case MethodTelegram:
		// Telegram contacts are chat ids, not phone numbers.
		return n.sendTelegram(ctx, contact, message)
	}
	return fmt.Errorf("unsupported notification method %q", n.cfg.Method)
}

func (n *Notifier) sendWhatsApp(ctx context.Context, target, message string) error {
	form := url.Values{}
	form.Set("target", target)
	form.Set("message", message)
	form.Set("delay", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WhatsAppEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", n.cfg.WhatsAppAPIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp: gateway returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (n *Notifier) sendTelegram(ctx context.Context, chatID, message string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       message,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.telegram.org/bot"+n.cfg.TelegramBotToken+"/sendMessage",
		bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram: api returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
