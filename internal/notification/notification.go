// Package notification forwards trading events to chat providers.
// Providers subscribe through the event bus; a slow or failing provider
// never blocks the trading loop.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-bot/internal/events"
)

// Notifier is one outbound notification provider
type Notifier interface {
	Send(title, message string) error
	Name() string
	IsEnabled() bool
}

// Manager fans formatted event messages out to the providers
type Manager struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewManager creates a notification manager
func NewManager(log zerolog.Logger, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		log:       log.With().Str("component", "notification").Logger(),
	}
}

// Attach subscribes the manager to the trade and error events
func (m *Manager) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventTradeEntry, m.onTradeEntry)
	bus.Subscribe(events.EventTradeExit, m.onTradeExit)
	bus.Subscribe(events.EventNewsAlert, m.onNewsAlert)
	bus.Subscribe(events.EventError, m.onError)
	bus.Subscribe(events.EventSystemMessage, m.onSystemMessage)
}

func (m *Manager) send(title, message string) {
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(title, message); err != nil {
			m.log.Warn().Err(err).Str("provider", n.Name()).Msg("notification failed")
		}
	}
}

func (m *Manager) onTradeEntry(e events.Event) {
	m.send(
		fmt.Sprintf("Trade Opened: %s", e.Symbol),
		fmt.Sprintf("%v %s %v lots @ %.5f\nSL %.5f | TP %.5f\nStrategy: %v",
			e.Data["side"], e.Symbol, e.Data["lots"], num(e.Data["entry_price"]),
			num(e.Data["stop_loss"]), num(e.Data["take_profit"]), e.Data["strategy"]),
	)
}

func (m *Manager) onTradeExit(e events.Event) {
	pnl := num(e.Data["pnl"])
	mark := "profit"
	if pnl < 0 {
		mark = "loss"
	}
	m.send(
		fmt.Sprintf("Trade Closed: %s (%s)", e.Symbol, mark),
		fmt.Sprintf("Ticket %v closed by %v\nPnL: %.2f\nHeld: %v",
			e.Data["ticket"], e.Data["exit_reason"], pnl, e.Data["duration"]),
	)
}

func (m *Manager) onNewsAlert(e events.Event) {
	m.send(
		fmt.Sprintf("News Alert: %s", e.Symbol),
		fmt.Sprintf("%v (%v) at %v", e.Data["title"], e.Data["currency"], e.Data["event_time"]),
	)
}

func (m *Manager) onError(e events.Event) {
	m.send(
		"Trading Error",
		fmt.Sprintf("[%v] %v: %v", e.Data["component"], e.Data["message"], e.Data["error"]),
	)
}

func (m *Manager) onSystemMessage(e events.Event) {
	m.send("System", fmt.Sprintf("%v", e.Data["message"]))
}

func num(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}

// TelegramConfig holds the Telegram bot settings
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// TelegramNotifier sends messages through the Telegram bot API
type TelegramNotifier struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramNotifier creates a Telegram provider; it stays disabled
// without a token and chat id
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) IsEnabled() bool {
	return t.cfg.Enabled && t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

func (t *TelegramNotifier) Send(title, message string) error {
	payload := map[string]interface{}{
		"chat_id":    t.cfg.ChatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", title, message),
		"parse_mode": "Markdown",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.cfg.BotToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// DiscordConfig holds the Discord webhook settings
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// DiscordNotifier sends messages through a Discord webhook
type DiscordNotifier struct {
	cfg    DiscordConfig
	client *http.Client
}

// NewDiscordNotifier creates a Discord provider
func NewDiscordNotifier(cfg DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) IsEnabled() bool {
	return d.cfg.Enabled && d.cfg.WebhookURL != ""
}

func (d *DiscordNotifier) Send(title, message string) error {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{{
			"title":       title,
			"description": message,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.cfg.WebhookURL, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}
