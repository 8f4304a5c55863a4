// Package mailer sends a single rendered email over SMTP. It knows nothing
// about retries or the circuit breaker; the processor owns that policy and
// only hears success or failure from here.
package mailer

import (
	"torramel/notify-relay/log"
	"torramel/notify-relay/pipeline"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
)

type Dispatcher interface {
	Dispatch(job *pipeline.EmailJob) error
}

type smtpDispatcher struct {
	dialer *gomail.Dialer
	from   string
}

func NewDispatcher(host string, port int, user, pass, from string) Dispatcher {
	return &smtpDispatcher{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   from,
	}
}

// Dispatch sends the job as a multipart message with a plain-text body and
// an HTML alternative. A fresh connection per job keeps short trigger-driven
// invocations simple; there is no pool to keep warm between them.
func (d *smtpDispatcher) Dispatch(job *pipeline.EmailJob) error {
	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", job.To)
	m.SetHeader("Subject", job.Subject)
	m.SetBody("text/plain", job.Text)
	m.AddAlternative("text/html", job.Html)

	if err := d.dialer.DialAndSend(m); err != nil {
		return errors.Wrapf(err, "mailer: error sending email job %d", job.Id)
	}

	log.Logger.Debugf("dispatched email job %d to %s", job.Id, job.To)

	return nil
}
