package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var otpEmail = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Hello {{.Name}},</p>
<p>Your verification code is</p>
<p style="font-size:28px;letter-spacing:6px"><strong>{{.Code}}</strong></p>
<p>It expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>
</body></html>`))

var welcomeEmail = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<p>Welcome {{.Name}}!</p>
<p>Your account is ready.{{if .CardNumber}} Your card number is <strong>{{.CardNumber}}</strong>.{{end}}</p>
</body></html>`))

// OTPMessages builds the SMS (and, when email is set, the email) carrying a
// signup code.
func OTPMessages(name, mobile, email, code string, ttl time.Duration) ([]Message, error) {
	minutes := int(ttl / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	text := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)

	msgs := []Message{{Channel: ChannelSMS, To: mobile, Text: text}}
	if email == "" {
		return msgs, nil
	}

	var buf bytes.Buffer
	err := otpEmail.Execute(&buf, struct {
		Name    string
		Code    string
		Minutes int
	}{name, code, minutes})
	if err != nil {
		return nil, fmt.Errorf("notify: rendering otp email: %w", err)
	}

	msgs = append(msgs, Message{
		Channel: ChannelEmail,
		To:      email,
		Subject: "Your verification code",
		Text:    text,
		HTML:    buf.String(),
	})
	return msgs, nil
}

// WelcomeMessage builds the post-signup email. cardNumber is shown when
// non-empty.
func WelcomeMessage(name, email, cardNumber string) (Message, error) {
	var buf bytes.Buffer
	err := welcomeEmail.Execute(&buf, struct {
		Name       string
		CardNumber string
	}{name, cardNumber})
	if err != nil {
		return Message{}, fmt.Errorf("notify: rendering welcome email: %w", err)
	}

	text := fmt.Sprintf("Welcome %s! Your account is ready.", name)
	if cardNumber != "" {
		text += " Your card number is " + cardNumber + "."
	}

	return Message{
		Channel: ChannelEmail,
		To:      email,
		Subject: "Welcome aboard",
		Text:    text,
		HTML:    buf.String(),
	}, nil
}
