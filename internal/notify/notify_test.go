package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a Notifier that keeps every message it is given.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// =========================================================================
// DISPATCHER TESTS
// =========================================================================

func TestDispatcher_DeliversEverythingBeforeStop(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, DispatcherConfig{Workers: 3, QueueSize: 64}, discardLogger())
	d.Start()

	for i := 0; i < 50; i++ {
		require.NoError(t, d.Notify(context.Background(), Message{Channel: ChannelSMS, To: "9876543210"}))
	}
	d.Stop()

	assert.Equal(t, 50, rec.count())
}

func TestDispatcher_RejectsAfterStop(t *testing.T) {
	d := NewDispatcher(&recorder{}, DispatcherConfig{}, discardLogger())
	d.Start()
	d.Stop()
	d.Stop() // second Stop is a no-op

	err := d.Notify(context.Background(), Message{Channel: ChannelSMS})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestDispatcher_QueueFull(t *testing.T) {
	// Not started: nothing drains the single-slot queue.
	d := NewDispatcher(&recorder{}, DispatcherConfig{Workers: 1, QueueSize: 1}, discardLogger())

	require.NoError(t, d.Notify(context.Background(), Message{Channel: ChannelSMS}))
	assert.ErrorIs(t, d.Notify(context.Background(), Message{Channel: ChannelSMS}), ErrQueueFull)

	d.Start()
	d.Stop()
}

func TestDispatcher_FailuresDoNotStopWorkers(t *testing.T) {
	rec := &recorder{err: errors.New("smtp down")}
	d := NewDispatcher(rec, DispatcherConfig{Workers: 1, QueueSize: 8}, discardLogger())
	d.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), Message{Channel: ChannelEmail, To: "a@b.co"}))
	}
	d.Stop()

	assert.Equal(t, 5, rec.count())
}

// =========================================================================
// MUX TESTS
// =========================================================================

func TestMux_Routes(t *testing.T) {
	email, sms := &recorder{}, &recorder{}
	m := NewMux().Handle(ChannelEmail, email).Handle(ChannelSMS, sms)

	require.NoError(t, m.Notify(context.Background(), Message{Channel: ChannelSMS, To: "1"}))
	require.NoError(t, m.Notify(context.Background(), Message{Channel: ChannelEmail, To: "a@b.co"}))

	assert.Equal(t, 1, email.count())
	assert.Equal(t, 1, sms.count())
}

func TestMux_UnknownChannel(t *testing.T) {
	err := NewMux().Notify(context.Background(), Message{Channel: ChannelSMS})
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestLogNotifier(t *testing.T) {
	var buf strings.Builder
	l := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, l.Notify(context.Background(), Message{Channel: ChannelSMS, To: "9876543210", Text: "code 123456"}))
	assert.Contains(t, buf.String(), "9876543210")
	assert.Contains(t, buf.String(), "channel=sms")
	assert.NotContains(t, buf.String(), "123456", "message body logged at info")
}

func TestLogNotifier_BodyAtDebug(t *testing.T) {
	var buf strings.Builder
	l := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	require.NoError(t, l.Notify(context.Background(), Message{Channel: ChannelSMS, To: "9876543210", Text: "code 123456"}))
	assert.Contains(t, buf.String(), "code 123456")
}

// =========================================================================
// SENDER TESTS
// =========================================================================

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailSender(t *testing.T) {
	fd := &fakeDialer{}
	s := &EmailSender{dialer: fd, from: "noreply@cards.example"}

	err := s.Notify(context.Background(), Message{
		Channel: ChannelEmail,
		To:      "asha@example.com",
		Subject: "Your verification code",
		Text:    "123456",
		HTML:    "<b>123456</b>",
	})
	require.NoError(t, err)
	require.Len(t, fd.sent, 1)

	m := fd.sent[0]
	assert.Equal(t, []string{"noreply@cards.example"}, m.GetHeader("From"))
	assert.Equal(t, []string{"asha@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Your verification code"}, m.GetHeader("Subject"))
}

func TestEmailSender_Errors(t *testing.T) {
	fd := &fakeDialer{err: errors.New("connection refused")}
	s := &EmailSender{dialer: fd, from: "noreply@cards.example"}

	assert.Error(t, s.Notify(context.Background(), Message{Channel: ChannelEmail}))
	assert.Error(t, s.Notify(context.Background(), Message{Channel: ChannelEmail, To: "a@b.co"}))
}

func TestSMSSender(t *testing.T) {
	var got struct{ passkey, mobile, message string }
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got.passkey, got.mobile, got.message = q.Get("passkey"), q.Get("mobile"), q.Get("message")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSMSSender(srv.URL+"/send?route=otp", "secret-key")
	err := s.Notify(context.Background(), Message{Channel: ChannelSMS, To: "9876543210", Text: "Your code is 123456 & more"})
	require.NoError(t, err)

	assert.Equal(t, "secret-key", got.passkey)
	assert.Equal(t, "9876543210", got.mobile)
	assert.Equal(t, "Your code is 123456 & more", got.message)
}

func TestSMSSender_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewSMSSender(srv.URL, "k").Notify(context.Background(), Message{Channel: ChannelSMS, To: "9876543210"})
	assert.Error(t, err)
}

// =========================================================================
// TEMPLATE TESTS
// =========================================================================

func TestOTPMessages(t *testing.T) {
	msgs, err := OTPMessages("Asha", "9876543210", "asha@example.com", "482913", 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, ChannelSMS, msgs[0].Channel)
	assert.Equal(t, "9876543210", msgs[0].To)
	assert.Contains(t, msgs[0].Text, "482913")
	assert.Contains(t, msgs[0].Text, "5 minutes")

	assert.Equal(t, ChannelEmail, msgs[1].Channel)
	assert.Contains(t, msgs[1].HTML, "482913")
	assert.Contains(t, msgs[1].HTML, "Asha")
}

func TestOTPMessages_SMSOnlyWithoutEmail(t *testing.T) {
	msgs, err := OTPMessages("Asha", "9876543210", "", "482913", 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, ChannelSMS, msgs[0].Channel)
}

func TestOTPMessages_EscapesName(t *testing.T) {
	msgs, err := OTPMessages("<script>", "9876543210", "a@b.co", "482913", 5*time.Minute)
	require.NoError(t, err)
	assert.NotContains(t, msgs[1].HTML, "<script>")
}

func TestWelcomeMessage(t *testing.T) {
	msg, err := WelcomeMessage("Asha", "asha@example.com", "4000000000000001")
	require.NoError(t, err)

	assert.Equal(t, ChannelEmail, msg.Channel)
	assert.Equal(t, "asha@example.com", msg.To)
	assert.Contains(t, msg.HTML, "4000000000000001")
	assert.Contains(t, msg.Text, "4000000000000001")
}
