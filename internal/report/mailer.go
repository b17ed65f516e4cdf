package report

import (
	"io"

	"gopkg.in/gomail.v2"
)

type Mail struct {
	To             []string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

type Mailer interface {
	Send(m Mail) error
}

// SMTPMailer delivers over SMTP; port 465 uses implicit TLS.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, user, pass, from string) *SMTPMailer {
	return &SMTPMailer{dialer: gomail.NewDialer(host, port, user, pass), from: from}
}

func (s *SMTPMailer) Send(m Mail) error {
	return s.dialer.DialAndSend(buildMessage(s.from, m))
}

func buildMessage(from string, m Mail) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", m.To...)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)
	if len(m.Attachment) > 0 {
		data := m.Attachment
		msg.Attach(m.AttachmentName,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
		)
	}
	return msg
}
