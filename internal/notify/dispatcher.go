package notify

import (
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dkachan/go-passport-office/internal/domain"
)

var (
	// deliveries counts attempted notification deliveries by event and
	// outcome (sent / failed / dropped).
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Total number of notification deliveries by outcome.",
		},
		[]string{"event", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(deliveries)
}

// Config carries everything the dispatcher needs to build messages: the
// public base URL used in links and the staff recipient list for
// new-request alerts. Passed in explicitly — no global settings.
type Config struct {
	// BaseURL is the externally reachable root of this service,
	// e.g. "https://passport-office.example.com".
	BaseURL string
	// StaffRecipients receive the "task created" alerts.
	StaffRecipients []string
	// QueueSize bounds the in-flight envelope buffer; 0 picks a default.
	QueueSize int
}

// envelope is one queued notification.
type envelope struct {
	event   string
	subject string
	message string
	to      []string
}

// Dispatcher queues notifications onto a background worker so delivery
// never blocks — and is never blocked by — the web-facing transaction.
// Events arrive from the two well-defined emission points (task created,
// task resolved/rejected); ordering between them is whatever causal order
// the emitters produce.
type Dispatcher struct {
	cfg    Config
	mailer Mailer
	log    zerolog.Logger

	queue chan envelope
	wg    sync.WaitGroup
	once  sync.Once
}

// titleCaser renders kind names in subject lines.
var titleCaser = cases.Title(language.English)

// NewDispatcher constructs a dispatcher and starts its worker. Close must be
// called on shutdown to drain the queue.
func NewDispatcher(cfg Config, mailer Mailer, log zerolog.Logger) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	d := &Dispatcher{
		cfg:    cfg,
		mailer: mailer,
		log:    log,
		queue:  make(chan envelope, size),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// run delivers queued envelopes until the queue is closed. A failed
// delivery is logged and counted; there is no synchronous retry.
func (d *Dispatcher) run() {
	defer d.wg.Done()
	for env := range d.queue {
		if d.mailer == nil || len(env.to) == 0 {
			deliveries.WithLabelValues(env.event, "dropped").Inc()
			continue
		}
		if err := d.mailer.Send(env.subject, env.message, env.to); err != nil {
			deliveries.WithLabelValues(env.event, "failed").Inc()
			d.log.Error().
				Err(err).
				Str("event", env.event).
				Str("subject", env.subject).
				Msg("notification delivery failed")
			continue
		}
		deliveries.WithLabelValues(env.event, "sent").Inc()
	}
}

// enqueue hands the envelope to the worker without blocking; when the queue
// is full the envelope is dropped and counted, honoring the best-effort
// contract.
func (d *Dispatcher) enqueue(env envelope) {
	select {
	case d.queue <- env:
	default:
		deliveries.WithLabelValues(env.event, "dropped").Inc()
		d.log.Warn().
			Str("event", env.event).
			Msg("notification queue full, dropping")
	}
}

// Close stops accepting events and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}

// actionPaths maps a task kind to the staff action route handling it, for
// the review link in new-request alerts.
var actionPaths = map[domain.Kind]string{
	domain.KindCreateInternalPassport:        "create-passport",
	domain.KindCreateForeignPassport:         "create-foreign-passport",
	domain.KindCreateVisa:                    "create-visa",
	domain.KindExtendVisa:                    "extend-visa",
	domain.KindRestoreVisaLoss:               "restore-visa",
	domain.KindRestoreInternalPassportLoss:   "restore-passport",
	domain.KindRestoreInternalPassportExpiry: "restore-passport",
	domain.KindRestoreForeignPassportLoss:    "restore-foreign-passport",
	domain.KindRestoreForeignPassportExpiry:  "restore-foreign-passport",
	domain.KindChangeName:                    "change-user-data",
	domain.KindChangeSurname:                 "change-user-data",
	domain.KindChangePatronymic:              "change-user-data",
	domain.KindChangeAddress:                 "change-address",
}

// TaskCreated alerts the staff recipients that a new request needs review.
func (d *Dispatcher) TaskCreated(task *domain.Task, requester *domain.Citizen) {
	link := fmt.Sprintf("%s/api/v1/staff/%s/%d",
		strings.TrimRight(d.cfg.BaseURL, "/"), actionPaths[task.Kind], task.ID)
	d.enqueue(envelope{
		event:   "task_created",
		subject: "New Request: " + titleCaser.String(task.Kind.Name()),
		message: fmt.Sprintf(
			"A new request %q has been created by %s %s.\nYou can review it here: %s",
			task.Kind.Name(), requester.Name, requester.Surname, link,
		),
		to: d.cfg.StaffRecipients,
	})
}

// TaskResolved tells the requester their request was approved.
func (d *Dispatcher) TaskResolved(task *domain.Task, requester *domain.Citizen) {
	link := strings.TrimRight(d.cfg.BaseURL, "/") + "/api/v1/documents"
	d.enqueue(envelope{
		event:   "task_resolved",
		subject: "Your Request Has Been Resolved",
		message: fmt.Sprintf(
			"Hello %s,\nYour request %q has been resolved.\nFollow this link to view your documents: %s",
			requester.Name, task.Kind.Name(), link,
		),
		to: []string{requester.Email},
	})
}

// TaskRejected tells the requester their request was declined.
func (d *Dispatcher) TaskRejected(task *domain.Task, requester *domain.Citizen) {
	d.enqueue(envelope{
		event:   "task_rejected",
		subject: "Your Request Has Been Rejected",
		message: fmt.Sprintf(
			"Hello %s,\nYour request %q has been rejected. Please contact the passport office for details.",
			requester.Name, task.Kind.Name(),
		),
		to: []string{requester.Email},
	})
}
