package notify

import (
	"log"
	"sync"

	"github.com/wansing/curator/core"
)

type queuedMail struct {
	to   core.DBUser
	data core.MailData
}

// Queue wraps a Mailer with a buffered channel and a single worker, so
// sanction transitions never wait on SMTP. Close drains the queue.
type Queue struct {
	mailer core.Mailer
	ch     chan queuedMail
	wg     sync.WaitGroup
}

func NewQueue(mailer core.Mailer, buffer int) *Queue {

	var q = &Queue{
		mailer: mailer,
		ch:     make(chan queuedMail, buffer),
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for mail := range q.ch {
			if err := q.mailer.SendSanctionMail(mail.to, mail.data); err != nil {
				log.Printf("error sending mail to %s: %v", mail.to.Name(), err)
			}
		}
	}()

	return q
}

// SendSanctionMail enqueues the mail. If the queue is full, it drops the mail
// and logs.
func (q *Queue) SendSanctionMail(to core.DBUser, data core.MailData) error {
	select {
	case q.ch <- queuedMail{to, data}:
	default:
		log.Printf("mail queue full, dropping mail to %s", to.Name())
	}
	return nil
}

// Close stops accepting mail and blocks until the queue is drained.
func (q *Queue) Close() {
	close(q.ch)
	q.wg.Wait()
}
