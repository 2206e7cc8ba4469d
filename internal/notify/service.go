package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lithammer/dedent"
	"github.com/raine/carhunt/internal/storage"
	"github.com/rs/zerolog/log"
)

// QueueSize is the number of events buffered before new ones are dropped.
const QueueSize = 64

// BotSender abstracts the Telegram bot API for sending messages.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(e Event)
}

type EventKind int

const (
	CarListed EventKind = iota
	TestDriveBooked
)

func (k EventKind) String() string {
	switch k {
	case CarListed:
		return "carListed"
	case TestDriveBooked:
		return "testDriveBooked"
	default:
		return "unknown"
	}
}

// Event is something the admin should hear about.
type Event struct {
	Kind  EventKind
	Car   *storage.Car
	Drive *storage.TestDriveDetail
}

// Service delivers events to the admin Telegram chat in the background.
// A Service without a bot is disabled and drops everything silently.
type Service struct {
	bot    BotSender
	chatID int64
	events chan Event
}

// NewService creates a notification service. Pass a nil bot to disable it.
func NewService(bot BotSender, chatID int64) *Service {
	return &Service{
		bot:    bot,
		chatID: chatID,
		events: make(chan Event, QueueSize),
	}
}

func (s *Service) Enabled() bool {
	return s != nil && s.bot != nil && s.chatID != 0
}

// Publish queues an event. It never blocks; when the queue is full the event
// is dropped.
func (s *Service) Publish(e Event) {
	if !s.Enabled() {
		return
	}
	select {
	case s.events <- e:
	default:
		log.Warn().Stringer("kind", e.Kind).Msg("notification queue full, dropping event")
	}
}

// Run sends queued events until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.Enabled() {
		log.Info().Msg("admin notifications disabled")
		<-ctx.Done()
		return
	}

	log.Info().Int64("chatID", s.chatID).Msg("starting notification service")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("notification service stopped")
			return
		case e := <-s.events:
			s.send(e)
		}
	}
}

func (s *Service) send(e Event) {
	text, ok := formatEvent(e)
	if !ok {
		log.Warn().Stringer("kind", e.Kind).Msg("ignoring incomplete event")
		return
	}

	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := s.bot.Send(msg)
	if err != nil {
		log.Error().
			Err(err).
			Stringer("kind", e.Kind).
			Msg("failed to send notification")
	} else {
		log.Debug().
			Stringer("kind", e.Kind).
			Msg("notification sent")
	}
}

var carListedTemplate = dedent.Dedent(`
	🚗 *New listing*

	*%s %s* (%d)
	💰 %.0f
	📸 %d image(s)
	`)

var testDriveBookedTemplate = dedent.Dedent(`
	🔑 *New test drive request*

	*%s %s* (%d)
	📅 %s %s-%s
	👤 %s
	`)

func formatEvent(e Event) (string, bool) {
	switch e.Kind {
	case CarListed:
		if e.Car == nil {
			return "", false
		}
		c := e.Car
		return strings.TrimSpace(fmt.Sprintf(carListedTemplate,
			escapeMarkdown(c.Make), escapeMarkdown(c.Model), c.Year, c.Price, len(c.Images))), true
	case TestDriveBooked:
		if e.Drive == nil {
			return "", false
		}
		d := e.Drive
		who := d.User.Name
		if who == "" {
			who = d.User.Email
		}
		return strings.TrimSpace(fmt.Sprintf(testDriveBookedTemplate,
			escapeMarkdown(d.Car.Make), escapeMarkdown(d.Car.Model), d.Car.Year,
			d.BookingDate, d.StartTime, d.EndTime, escapeMarkdown(who))), true
	default:
		return "", false
	}
}

// escapeMarkdown escapes special characters for Telegram Markdown V1.
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "*", "\\*")
	text = strings.ReplaceAll(text, "_", "\\_")
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "[", "\\[")
	return text
}
