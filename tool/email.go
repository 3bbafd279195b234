package tool

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/chatmesh/config"
)

// EmailName is the registered name of the email tool.
const EmailName = "send_email"

// Mailer delivers a plain text message.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer sends mail through an SMTP relay using STARTTLS when offered.
type SMTPMailer struct {
	cfg config.EmailConfig
}

// NewSMTPMailer creates a mailer from configuration.
func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send implements Mailer. The context bounds only the pre-send checks since
// net/smtp has no context support.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	port := m.cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(m.cfg.SMTPHost, strconv.Itoa(port))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password(), m.cfg.SMTPHost)
	}
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	return smtp.SendMail(addr, auth, from, to, BuildMessage(from, to, subject, body, time.Now()))
}

// BuildMessage renders an RFC 5322 plain text message.
func BuildMessage(from string, to []string, subject, body string, date time.Time) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", strings.ReplaceAll(subject, "\n", " "))
	fmt.Fprintf(&sb, "Date: %s\r\n", date.Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(sb.String())
}

type emailArgs struct {
	To      string `json:"to" description:"Recipient address, or comma separated addresses"`
	Subject string `json:"subject" description:"Email subject"`
	Body    string `json:"body" description:"Plain text message body"`
}

// NewEmail returns the email tool backed by mailer.
func NewEmail(mailer Mailer) *FunctionTool {
	return NewFunctionToolFromStruct(
		EmailName,
		"Send an email. Provide the recipient address(es), a subject and the message body.",
		emailArgs{},
		func(ctx context.Context, args map[string]any) (string, error) {
			list, err := mail.ParseAddressList(StringArg(args, "to"))
			if err != nil {
				return "", NewError(EmailName, fmt.Sprintf("invalid recipient: %v", err), CodeValidation)
			}
			to := make([]string, len(list))
			for i, a := range list {
				to[i] = a.Address
			}
			if err := mailer.Send(ctx, to, StringArg(args, "subject"), StringArg(args, "body")); err != nil {
				return "", err
			}
			return fmt.Sprintf("Email sent successfully to %s.", strings.Join(to, ", ")), nil
		},
	)
}
