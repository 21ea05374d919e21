package fills

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"brokerage/internal/domain"
	"brokerage/internal/util"
)

func testFill(id uint64) domain.Fill {
	return domain.Fill{
		OrderID:    id,
		AccountID:  "testaccount",
		Ticker:     "AAPL",
		Side:       domain.SideBuy,
		Shares:     10,
		Price:      19000,
		ExecutedAt: time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC),
	}
}

func TestFeedBroadcast(t *testing.T) {
	f := NewFeed(util.Discard())
	ctx := context.Background()

	id1, ch1 := f.Subscribe(4)
	_, ch2 := f.Subscribe(4)
	if err := f.RecordFill(ctx, testFill(1)); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}

	for i, ch := range []<-chan domain.Fill{ch1, ch2} {
		select {
		case got := <-ch:
			if got.OrderID != 1 {
				t.Errorf("subscriber %d got order %d, want 1", i, got.OrderID)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}

	f.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel still open")
	}
	f.Unsubscribe(id1) // second call is a no-op
	if got := f.Subscribers(); got != 1 {
		t.Errorf("Subscribers() = %d, want 1", got)
	}
}

func TestFeedDropsOnFull(t *testing.T) {
	f := NewFeed(util.Discard())
	ctx := context.Background()
	_, ch := f.Subscribe(1)

	f.RecordFill(ctx, testFill(1))
	f.RecordFill(ctx, testFill(2))
	if got := f.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
	if got := <-ch; got.OrderID != 1 {
		t.Errorf("buffered fill = %d, want 1", got.OrderID)
	}

	f.Close()
	if _, ok := <-ch; ok {
		t.Error("channel open after Close")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	if err := p.RecordFill(context.Background(), testFill(9)); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "testaccount" {
		t.Errorf("message key = %q, want %q", msg.Key, "testaccount")
	}
	var got domain.Fill
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decoding message: %v", err)
	}
	if got.OrderID != 9 || got.Price != 19000 {
		t.Errorf("decoded fill = %+v, want order 9 at 19000", got)
	}

	w.err = errors.New("broker down")
	if err := p.RecordFill(context.Background(), testFill(10)); !errors.Is(err, w.err) {
		t.Errorf("RecordFill error = %v, want wrapped broker down", err)
	}

	p.Close()
	if !w.closed {
		t.Error("Close did not close the writer")
	}
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "fills")
	kw, ok := p.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("writer is %T, want *kafka.Writer", p.writer)
	}
	if kw.Topic != "fills" {
		t.Errorf("Topic = %q, want %q", kw.Topic, "fills")
	}
	p.Close()
}
