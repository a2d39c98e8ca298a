package main

import (
	"context"
	"fmt"
	"net/smtp"
	"time"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender is the outbound mail call, an interface so tests can count send
// attempts without an SMTP server or a clock.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// smtpSender delivers through a plain relay (MailHog in the compose setup).
// delay models a slow provider round trip.
type smtpSender struct {
	addr  string
	from  string
	delay time.Duration
}

func newSMTPSender(addr, from string, delay time.Duration) Sender {
	return &smtpSender{addr: addr, from: from, delay: delay}
}

func (s *smtpSender) Send(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
	}
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		s.from, msg.To, msg.Subject, msg.Body)
	if err := smtp.SendMail(s.addr, nil, s.from, []string{msg.To}, []byte(raw)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}
