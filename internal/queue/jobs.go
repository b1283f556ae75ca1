package queue

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Job types carried on the queue.
const (
	TypeOverdueEmail = "overdue-email"
	TypeNotify       = "notify"
)

// OverdueEmail asks the worker to send the overdue notice for one visitor.
type OverdueEmail struct {
	VisitorID   string    `msgpack:"visitor_id"`
	Name        string    `msgpack:"name"`
	Office      string    `msgpack:"office"`
	Page        string    `msgpack:"page"`
	ProcessedAt time.Time `msgpack:"processed_at"`
}

// Notify asks the worker to forward a free-form notification.
type Notify struct {
	VisitorID string `msgpack:"visitor_id"`
	Message   string `msgpack:"message"`
}

// NewMessage encodes job under msgType.
func NewMessage(msgType string, job any) (Message, error) {
	b, err := msgpack.Marshal(job)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s job: %w", msgType, err)
	}
	return Message{Type: msgType, Body: b}, nil
}

// DecodeBody decodes msg's body into dst.
func DecodeBody(msg Message, dst any) error {
	if err := msgpack.Unmarshal(msg.Body, dst); err != nil {
		return fmt.Errorf("decode %s job: %w", msg.Type, err)
	}
	return nil
}
