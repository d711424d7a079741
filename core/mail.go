package core

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/icza/gox/timex"
	"github.com/wansing/curator/util"
)

// MailData is what an approver needs to cast a vote: what is about to happen,
// to which node, and the two single-purpose links.
type MailData struct {
	SubjectTitle  string
	SubjectPath   string
	KindLabel     string
	InitiatorName string
	Justification string // excerpt, can be empty
	EmbargoPhrase string // like "2 years and 3 months", empty for other kinds
	ApprovalURL   string
	RejectionURL  string
}

func (d MailData) Subject() string {
	return fmt.Sprintf("Approval needed: %s of %s", d.KindLabel, d.SubjectTitle)
}

func (d MailData) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has initiated a %s of %q (%s).\r\n\r\n", d.InitiatorName, d.KindLabel, d.SubjectTitle, d.SubjectPath)
	if d.EmbargoPhrase != "" {
		fmt.Fprintf(&b, "The embargo would last %s.\r\n\r\n", d.EmbargoPhrase)
	}
	if d.Justification != "" {
		fmt.Fprintf(&b, "Justification: %s\r\n\r\n", d.Justification)
	}
	fmt.Fprintf(&b, "To approve: %s\r\n\r\nTo reject: %s\r\n\r\nEach link works once and only for you. A single rejection cancels the %s.\r\n", d.ApprovalURL, d.RejectionURL, d.KindLabel)
	return b.String()
}

type Mailer interface {
	SendSanctionMail(to DBUser, data MailData) error
}

// LogMailer writes mails to the log. It is the default if main does not
// configure SMTP.
type LogMailer struct{}

func (LogMailer) SendSanctionMail(to DBUser, data MailData) error {
	log.Printf("mail to %s: %s", to.Name(), data.Subject())
	return nil
}

// notifyApprovers mails the token links to every approver in the frozen
// ledger. Mail failures are logged, they never roll back the initiation.
func (c *CoreDB) notifyApprovers(s *Sanction, n *Node, initiator DBUser) {

	approvers, err := s.Approvers()
	if err != nil {
		log.Printf("error loading approvers of %s: %v", s.ID(), err)
		return
	}

	var data = MailData{
		SubjectTitle:  n.MailTitle(),
		SubjectPath:   n.Location(),
		KindLabel:     s.Kind().Label(),
		InitiatorName: initiator.Name(),
		Justification: util.Trunc(s.Justification(), 300),
	}
	if s.Kind() == KindEmbargo {
		data.EmbargoPhrase = durationPhrase(time.Now(), time.Unix(s.EndDate(), 0))
	}

	for _, approver := range approvers {

		user, err := c.UserDB.GetUser(approver.UserID())
		if err != nil {
			log.Printf("error loading approver %d of %s: %v", approver.UserID(), s.ID(), err)
			continue
		}

		data.ApprovalURL = c.LinkBase + "/sanction/approve/" + approver.ApprovalToken()
		data.RejectionURL = c.LinkBase + "/sanction/reject/" + approver.RejectionToken()

		if err := c.Mailer.SendSanctionMail(user, data); err != nil {
			log.Printf("error mailing approver %s for %s: %v", user.Name(), s.ID(), err)
		}
	}
}

// durationPhrase phrases the span between two times in the two largest units,
// like "2 years and 3 months" or "14 days".
func durationPhrase(from, to time.Time) string {

	year, month, day, hour, _, _ := timex.Diff(from, to)

	var parts []string
	if year > 0 {
		parts = append(parts, plural(year, "year"))
	}
	if month > 0 {
		parts = append(parts, plural(month, "month"))
	}
	if year == 0 && day > 0 {
		parts = append(parts, plural(day, "day"))
	}
	if year == 0 && month == 0 && day == 0 {
		parts = append(parts, plural(hour, "hour"))
	}

	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, " and ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func headingOf(description string) string {
	return util.Heading(strings.NewReader(description))
}
