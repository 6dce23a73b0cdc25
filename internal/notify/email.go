package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"strconv"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"slotkeeper/internal/config"
	"slotkeeper/internal/reminders"
)

// Mailer sends one plain-text e-mail.
type Mailer interface {
	SendEmail(ctx context.Context, to string, msg Message) error
}

// SMTPSender delivers mail directly over SMTP.
type SMTPSender struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPSender{
		addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		from:     from,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-version: 1.0;\r\nContent-Type: text/plain; charset=\"UTF-8\";\r\n\r\n%s\r\n",
		s.from, to, msg.Subject, msg.Body)
	if err := s.sendMail(s.addr, s.auth, s.from, []string{to}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send to %s via %s: %w", to, s.addr, err)
	}
	return nil
}

// Publisher is the part of *amqp.Channel the queue mailer uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueuedEmail is the JSON body put on the mail queue.
type QueuedEmail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// QueueMailer hands mail to a RabbitMQ queue for a separate mail worker.
type QueueMailer struct {
	publisher Publisher
	queue     string
}

func NewQueueMailer(publisher Publisher, queue string) *QueueMailer {
	return &QueueMailer{publisher: publisher, queue: queue}
}

// DialQueueMailer connects to RabbitMQ and declares a durable queue. The
// returned close func releases the channel and connection.
func DialQueueMailer(cfg config.MailQueueConfig) (*QueueMailer, func() error, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	closeFn := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return NewQueueMailer(ch, cfg.Queue), closeFn, nil
}

func (q *QueueMailer) SendEmail(ctx context.Context, to string, msg Message) error {
	body, err := json.Marshal(QueuedEmail{To: to, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return err
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Headers: amqp.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	}
	if err := q.publisher.PublishWithContext(ctx, "", q.queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// EmailChannel adapts a Mailer to the reminder e-mail channel.
type EmailChannel struct {
	mailer Mailer
}

func NewEmailChannel(m Mailer) *EmailChannel { return &EmailChannel{mailer: m} }

func (e *EmailChannel) Send(ctx context.Context, b reminders.Booking, lead int) error {
	if b.Recipient.Email == "" {
		return &reminders.DeliveryError{
			Channel: reminders.ChannelEmail,
			Code:    http.StatusBadRequest,
			Message: "customer has no e-mail address",
		}
	}
	return e.mailer.SendEmail(ctx, b.Recipient.Email, Compose(b, lead))
}
