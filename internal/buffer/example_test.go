package buffer_test

import (
	"context"
	"fmt"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/internal/buffer"
	"github.com/unsighted-org/demo-1biome-sub001/pkg/event"
)

func Example_emitter() {
	emitter := buffer.New[event.MetricPoint](buffer.Config{
		MaxBufferSize: 100,
		FlushInterval: time.Minute,
	}, nil, nil)
	defer emitter.Destroy()

	emitter.Register(event.StreamMetrics, func(_ context.Context, points []event.MetricPoint) error {
		for _, p := range points {
			fmt.Printf("%s=%g %s\n", p.Name, p.Value, p.Unit)
		}
		return nil
	})

	emitter.Add(event.StreamMetrics, event.MetricPoint{Name: "heart_rate", Value: 62, Unit: "bpm"})
	emitter.Add(event.StreamMetrics, event.MetricPoint{Name: "steps", Value: 8421, Unit: "count"})
	fmt.Println("pending:", emitter.Size(event.StreamMetrics))

	if err := emitter.Flush(context.Background(), event.StreamMetrics); err != nil {
		fmt.Println("flush failed:", err)
	}
	fmt.Println("pending:", emitter.Size(event.StreamMetrics))

	// Output:
	// pending: 2
	// heart_rate=62 bpm
	// steps=8421 count
	// pending: 0
}

func Example_unregisteredKey() {
	emitter := buffer.New[string](buffer.Config{}, nil, nil)
	defer emitter.Destroy()

	emitter.Add("audit", "login")
	err := emitter.Flush(context.Background(), "audit")
	fmt.Println(err)
	fmt.Println("pending:", emitter.Size("audit"))

	// Output:
	// flush audit: no sink registered
	// pending: 1
}
