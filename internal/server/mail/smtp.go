package mail

import (
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/dmitrijs2005/authgate/internal/common"
)

// SMTPSender delivers mail over SMTP with implicit TLS (port 465 style).
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPSender constructs a sender for the given SMTP endpoint. from is the
// envelope and header sender address.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// payload renders msg as an RFC 5322 message. Each rendering gets a fresh
// Message-ID.
func (s *SMTPSender) payload(msg Message) ([]byte, error) {
	id, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("smtp message id: %w", err)
	}

	return []byte(
		fmt.Sprintf("From: %s\r\n", s.from) +
			fmt.Sprintf("To: %s\r\n", msg.To) +
			fmt.Sprintf("Subject: %s\r\n", msg.Subject) +
			fmt.Sprintf("Message-ID: <%s@%s>\r\n", id, s.host) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
			"\r\n" +
			msg.Body,
	), nil
}

// Send delivers one message. Each call dials a fresh TLS connection; volume
// is low enough that connection reuse is not worth the state.
func (s *SMTPSender) Send(msg Message) error {
	payload, err := s.payload(msg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.host})
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return nil
}
