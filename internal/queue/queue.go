package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// Queue carries contact lifecycle events from the CRM into the engine and
// campaign notifications back out. Payloads cross the wire as JSON, so
// handlers receive raw bytes regardless of the backing implementation.
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(body []byte) error) error
}

// InMemoryQueue is the in-process implementation used by tests and the
// single-binary dev setup.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(body []byte) error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(body []byte) error),
	}
}

// job wraps a delivery with retry info
type job struct {
	body       []byte
	retryCount int
	maxRetries int
}

// Publish sends a message to all subscribers of the topic.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	j := job{body: body, retryCount: 0, maxRetries: 3}
	for _, handler := range handlers {
		go q.processJob(handler, j)
	}

	return nil
}

// processJob retries failed handlers with a linear backoff before giving up.
func (q *InMemoryQueue) processJob(handler func(body []byte) error, j job) {
	for j.retryCount <= j.maxRetries {
		err := handler(j.body)
		if err == nil {
			return // ACK
		}

		j.retryCount++
		log.Printf("⚠️ queue handler failed (attempt %d/%d): %v\n", j.retryCount, j.maxRetries, err)

		if j.retryCount > j.maxRetries {
			log.Printf("⚠️ queue message permanently failed after %d attempts\n", j.maxRetries)
			return // no requeue
		}

		time.Sleep(time.Duration(j.retryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(body []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
