package mailer

import (
	"github.com/samber/oops"
	mail "github.com/wneessen/go-mail"
)

// via https://go-mail.dev/getting-started/introduction/

type Mailer struct {
	Host     string
	Username string
	Password string
	From     string
}

// Send delivers a plain-text run summary to a single recipient.
func (m *Mailer) Send(to string, subject string, body string) (bool, error) {
	oopsBuilder := oops.In("Mailer::Send")
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return false, oopsBuilder.Wrap(err)
	}
	if err := msg.To(to); err != nil {
		return false, oopsBuilder.Wrap(err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString("text/plain", body)

	client, err := mail.NewClient(
		m.Host,
		mail.WithUsername(m.Username),
		mail.WithPassword(m.Password),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
	)
	if err != nil {
		return false, oopsBuilder.Wrap(err)
	}
	defer client.Close()

	err = client.DialAndSend(msg)
	if err != nil {
		err = oops.Wrap(err)
	}

	return err == nil, err
}
