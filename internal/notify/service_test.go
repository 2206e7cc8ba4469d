package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/carhunt/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeBot struct {
	sent chan tgbotapi.MessageConfig
	err  error
}

func newFakeBot() *fakeBot {
	return &fakeBot{sent: make(chan tgbotapi.MessageConfig, 10)}
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent <- c.(tgbotapi.MessageConfig)
	return tgbotapi.Message{}, b.err
}

func (b *fakeBot) next(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	select {
	case msg := <-b.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return tgbotapi.MessageConfig{}
	}
}

func runService(t *testing.T, s *Service) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestService_SendsEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	bot := newFakeBot()
	s := NewService(bot, 42)
	stop := runService(t, s)
	defer stop()

	s.Publish(Event{Kind: CarListed, Car: &storage.Car{Make: "Mini", Model: "Cooper_S", Year: 2019, Price: 15500, Images: []string{"a", "b"}}})
	msg := bot.next(t)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.Equal(t, "🚗 *New listing*\n\n*Mini Cooper\\_S* (2019)\n💰 15500\n📸 2 image(s)", msg.Text)

	drive := &storage.TestDriveDetail{
		TestDrive: storage.TestDrive{BookingDate: "2026-05-01", StartTime: "10:00", EndTime: "10:30"},
		Car:       storage.CarSummary{Make: "Mini", Model: "Cooper", Year: 2019},
		User:      storage.UserSummary{Email: "x@example.com"},
	}
	s.Publish(Event{Kind: TestDriveBooked, Drive: drive})
	msg = bot.next(t)
	assert.Contains(t, msg.Text, "📅 2026-05-01 10:00-10:30")
	assert.Contains(t, msg.Text, "👤 x@example.com")
}

func TestService_SendErrorKeepsRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	bot := newFakeBot()
	bot.err = errors.New("telegram down")
	s := NewService(bot, 42)
	stop := runService(t, s)
	defer stop()

	car := &storage.Car{Make: "Kia", Model: "Rio"}
	s.Publish(Event{Kind: CarListed, Car: car})
	s.Publish(Event{Kind: CarListed, Car: car})
	bot.next(t)
	bot.next(t)
}

func TestService_Disabled(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewService(nil, 42)
	assert.False(t, s.Enabled())
	s.Publish(Event{Kind: CarListed, Car: &storage.Car{}})
	assert.Len(t, s.events, 0)

	stop := runService(t, s)
	stop()

	var nilService *Service
	nilService.Publish(Event{Kind: CarListed})
}

func TestService_PublishDropsWhenFull(t *testing.T) {
	s := NewService(newFakeBot(), 42)
	for i := 0; i < QueueSize+5; i++ {
		s.Publish(Event{Kind: CarListed, Car: &storage.Car{}})
	}
	assert.Len(t, s.events, QueueSize)
}

func TestFormatEvent_Incomplete(t *testing.T) {
	_, ok := formatEvent(Event{Kind: CarListed})
	assert.False(t, ok)
	_, ok = formatEvent(Event{Kind: TestDriveBooked})
	assert.False(t, ok)
	_, ok = formatEvent(Event{Kind: EventKind(99)})
	require.False(t, ok)
}
