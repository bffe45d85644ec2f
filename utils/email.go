package utils

import (
	"fmt"
	"html"
	"net/smtp"
	"os"
	"strings"
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

// EmailConfigured reports whether enough SMTP settings are present to send mail.
func EmailConfigured() bool {
	config := GetEmailConfig()
	return config.Host != "" && config.Port != "" && config.From != ""
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

// RenderRewardsEmail wraps a notification in the rewards email layout.
func RenderRewardsEmail(name, title, message string) (subject, body string) {
	greeting := "there"
	if first := strings.TrimSpace(strings.Split(strings.TrimSpace(name), " ")[0]); first != "" {
		greeting = first
	}

	subject = title + " - Rewards"
	body = fmt.Sprintf(`<h2>%s</h2>
<p>Hi %s,</p>
<p>%s</p>
<p>Open the app to see your points, tier and coupons.</p>
<p>The Rewards Team</p>`, html.EscapeString(title), html.EscapeString(greeting), html.EscapeString(message))
	return subject, body
}
