package queue

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"
)

// AMQPQueue is the RabbitMQ-backed Queue used in production. Each topic maps
// to a durable queue; consumers ack manually and requeue transient failures
// up to maxRequeues via the x-retry-count header.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

const maxRequeues = 3

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	queue, err := q.declare(topic)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return q.ch.Publish(
		"",
		queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (q *AMQPQueue) Subscribe(topic string, handler func(body []byte) error) error {
	queue, err := q.declare(topic)
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		queue.Name,
		"",
		false, // manual ack for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				log.Printf("⚠️ %s handler failed: %v\n", topic, err)
				retries := retryCount(d.Headers)
				if retries < maxRequeues {
					// republish with an incremented retry header, then ack
					// the original so the broker does not loop it forever
					if err := q.republish(queue.Name, d.Body, retries+1); err != nil {
						log.Printf("⚠️ requeue on %s failed: %v\n", topic, err)
						d.Nack(false, true)
						continue
					}
				} else {
					log.Printf("⚠️ dropping %s message after %d retries\n", topic, retries)
				}
			}
			d.Ack(false)
		}
	}()

	return nil
}

func retryCount(headers amqp.Table) int32 {
	if headers == nil {
		return 0
	}
	if v, ok := headers["x-retry-count"].(int32); ok {
		return v
	}
	return 0
}

func (q *AMQPQueue) republish(name string, body []byte, retries int32) error {
	return q.ch.Publish(
		"",
		name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{"x-retry-count": retries},
			Body:         body,
		},
	)
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
