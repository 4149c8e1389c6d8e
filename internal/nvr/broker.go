package nvr

import (
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/camnvr/internal/logging"
)

// Message is one published item: a topic plus its opaque payload. Status
// and label sensors publish small attribute maps; the image path
// publishes JPEG bytes.
type Message struct {
	Topic      string
	Payload    []byte
	Attributes map[string]any
}

// Publisher is a bounded fan-out broker: the Supervisor pushes Messages
// and any number of subscribers (an external broker client being the
// typical one) drain them independently. It never blocks the Supervisor
// — a slow or absent subscriber only loses messages, it never stalls the
// pipeline.
type Publisher struct {
	mu          sync.Mutex
	subscribers map[string]chan Message
	log         *logging.Logger
}

const publisherSubscriberCapacity = 16

// NewPublisher creates an empty Publisher.
func NewPublisher(log *logging.Logger) *Publisher {
	return &Publisher{
		subscribers: make(map[string]chan Message),
		log:         log,
	}
}

// Subscribe registers a new receiver and returns its ID (for
// Unsubscribe) and its delivery channel.
func (p *Publisher) Subscribe() (string, <-chan Message) {
	id := uuid.New().String()
	ch := make(chan Message, publisherSubscriberCapacity)
	p.mu.Lock()
	p.subscribers[id] = ch
	p.mu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
}

// Publish fans msg out to every current subscriber, dropping it for any
// subscriber whose channel is full rather than blocking.
func (p *Publisher) Publish(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subscribers {
		select {
		case ch <- msg:
		default:
			p.log.Warnf("subscriber %s is backed up, dropping %s message", id, msg.Topic)
		}
	}
}

