// Package sink adapts storage writers and the Kafka publisher to
// buffer.Sink so the emitter can flush telemetry into them.
package sink

import (
	"context"
	"errors"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/buffer"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/storage"
)

// EventPublisher publishes a batch of CloudEvents to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, events []cloudevents.Event) error
}

// Storage returns a sink that writes each batch as one file under the
// stream's partition for the batch's earliest record.
func Storage[T event.Rower](writer storage.Writer, router storage.Router, stream string) buffer.Sink[T] {
	return func(ctx context.Context, items []T) error {
		if len(items) == 0 {
			return nil
		}

		rows := make([]event.Row, len(items))
		for i, item := range items {
			rows[i] = item.ToRow()
		}

		first, _ := event.TimeRange(rows)
		path := router.Route(stream, first)
		if _, err := writer.Write(ctx, rows, path); err != nil {
			return fmt.Errorf("write %s batch to %s: %w", stream, path, err)
		}
		return nil
	}
}

// Kafka returns a sink that wraps every record in a CloudEvent and
// publishes the batch to topic.
func Kafka[T event.Rower](publisher EventPublisher, topic string) buffer.Sink[T] {
	return func(ctx context.Context, items []T) error {
		if len(items) == 0 {
			return nil
		}

		events := make([]cloudevents.Event, 0, len(items))
		for _, item := range items {
			e, err := NewCloudEvent(item)
			if err != nil {
				return err
			}
			events = append(events, e)
		}
		return publisher.Publish(ctx, topic, events)
	}
}

// NewCloudEvent builds the CloudEvent envelope for a telemetry record.
// The record itself is the JSON data; its user, when known, is the subject.
func NewCloudEvent[T event.Rower](item T) (cloudevents.Event, error) {
	row := item.ToRow()

	e := cloudevents.NewEvent()
	e.SetID(row.ID)
	e.SetSource(event.EventSource)
	e.SetType(row.Kind.EventType())
	e.SetTime(row.Timestamp)
	if row.UserID != "" {
		e.SetSubject(row.UserID)
	}
	if err := e.SetData(event.ContentTypeJSON, item); err != nil {
		return e, fmt.Errorf("encode %s %s: %w", row.Kind, row.ID, err)
	}
	return e, nil
}

// Fanout returns a sink that hands every batch to each sink in order.
// The batch fails when any sink fails; sinks that succeeded will see the
// batch again on retry.
func Fanout[T any](sinks ...buffer.Sink[T]) buffer.Sink[T] {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return func(ctx context.Context, items []T) error {
		var errs []error
		for _, s := range sinks {
			if err := s(ctx, items); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
