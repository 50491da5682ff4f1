package utils

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"

	"biscuit-backend/models"

	"github.com/rs/zerolog"
)

type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func GetEmailConfig() *EmailConfig {
	return &EmailConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
}

func SendEmail(to, subject, htmlBody string) error {
	config := GetEmailConfig()
	if config.Host == "" || config.Port == "" || config.From == "" {
		return fmt.Errorf("SMTP not configured")
	}

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n",
		config.From, to, subject)
	msg := []byte(headers + htmlBody)

	var auth smtp.Auth
	if config.Username != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	addr := config.Host + ":" + config.Port
	return smtp.SendMail(addr, auth, config.From, []string{to}, msg)
}

// OrderMailer sends the confirmation email when an order completes.
// Delivery runs in the background and failures are only logged.
type OrderMailer struct {
	Logger zerolog.Logger
	Send   func(to, subject, htmlBody string) error
}

func NewOrderMailer(logger zerolog.Logger) *OrderMailer {
	return &OrderMailer{Logger: logger, Send: SendEmail}
}

func (m *OrderMailer) OrderCompleted(order *models.Order) {
	if order.User.Email == "" {
		return
	}
	subject, body := orderConfirmation(order)
	to := order.User.Email
	go func() {
		if err := m.Send(to, subject, body); err != nil {
			m.Logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to send order confirmation")
		}
	}()
}

func orderConfirmation(order *models.Order) (string, string) {
	name := "there"
	if fields := strings.Fields(order.User.Name); len(fields) > 0 {
		name = fields[0]
	}
	subject := fmt.Sprintf("Order Confirmed - %s", order.ID.String()[:8])
	body := fmt.Sprintf(`<h2>Order Confirmed!</h2>
<p>Hi %s,</p>
<p>Your order <strong>%s</strong> has been paid successfully.</p>
<p>Order total: <strong>%s Ar</strong></p>
<p>Thank you for shopping with us.</p>`, name, order.ID, order.TotalPrice.StringFixed(2))
	return subject, body
}
