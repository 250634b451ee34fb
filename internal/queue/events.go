// Package queue publishes run events to RabbitMQ so downstream consumers
// (analytics, alerting) can follow pipeline activity. Publishing is optional
// and best effort: a run never fails because the broker is down.
package queue

import (
	"encoding/json"
	"log"
	"time"

	"github.com/streadway/amqp"
)

const (
	queueRunEvents = "outreach_run_events"
	queueSends     = "outreach_sends"
)

// RunEvent summarizes one completed pipeline run.
type RunEvent struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Healthy        bool      `json:"healthy"`
	DraftsCreated  int       `json:"drafts_created"`
	FollowupsMade  int       `json:"followups_made"`
	EmailsSent     int       `json:"emails_sent"`
	EmailsDeferred int       `json:"emails_deferred"`
	Responses      int       `json:"responses"`
	Orders         int       `json:"orders"`
	Undos          int       `json:"undos"`
	Errors         []string  `json:"errors,omitempty"`
}

// SendEvent records one dispatched email.
type SendEvent struct {
	MessageID string    `json:"message_id"`
	GameID    string    `json:"game_id"`
	School    string    `json:"school"`
	Sport     string    `json:"sport"`
	SentAt    time.Time `json:"sent_at"`
}

// Publisher pushes events to a broker. The zero-value NopPublisher is used
// when AMQP_URL is not configured.
type Publisher interface {
	PublishRun(ev RunEvent)
	PublishSend(ev SendEvent)
	Close()
}

type NopPublisher struct{}

func (NopPublisher) PublishRun(RunEvent)   {}
func (NopPublisher) PublishSend(SendEvent) {}
func (NopPublisher) Close()                {}

// AMQPPublisher publishes to durable RabbitMQ queues.
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, name := range []string{queueRunEvents, queueSends} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) PublishRun(ev RunEvent) {
	p.publish(queueRunEvents, ev)
}

func (p *AMQPPublisher) PublishSend(ev SendEvent) {
	p.publish(queueSends, ev)
}

func (p *AMQPPublisher) publish(queueName string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Println("⚠️ Failed to marshal event:", err)
		return
	}
	err = p.ch.Publish("", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		log.Println("⚠️ Failed to publish event to", queueName+":", err)
	}
}

func (p *AMQPPublisher) Close() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
