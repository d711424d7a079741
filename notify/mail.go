// Package notify sends sanction mail over SMTP, decoupled from the vote
// transaction through an async queue.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/wansing/curator/core"
	"github.com/wansing/curator/util"
)

// SMTPMailer sends sanction mail through a relay configured in
// config/mail.ini (keys: host, port, from, user, pass).
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

func NewSMTPMailer() (*SMTPMailer, error) {

	settings, err := util.Ini("mail.ini")
	if err != nil {
		return nil, err
	}

	var host = settings["host"]
	if host == "" {
		host = "localhost"
	}
	var port = settings["port"]
	if port == "" {
		port = "25"
	}
	var from = settings["from"]
	if from == "" {
		return nil, fmt.Errorf("mail.ini: no from address")
	}

	var mailer = &SMTPMailer{
		addr: host + ":" + port,
		from: from,
	}
	if settings["user"] != "" {
		mailer.auth = smtp.PlainAuth("", settings["user"], settings["pass"], host)
	}
	return mailer, nil
}

func (m *SMTPMailer) SendSanctionMail(to core.DBUser, data core.MailData) error {

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to.Name())
	fmt.Fprintf(&msg, "Subject: %s\r\n", data.Subject())
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(data.Body())

	return smtp.SendMail(m.addr, m.auth, m.from, []string{to.Name()}, []byte(msg.String()))
}
