package stages

import (
	"context"
	"sync"
	"time"
)

// Point is one measurement row bound for the destination store.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Time        time.Time
}

// PointWriter performs the bulk write into the destination store.
type PointWriter interface {
	WritePoints(ctx context.Context, points []Point) error
}

// BatchSink sits between the load stage's workers and the destination
// store: producers enqueue points into a bounded queue and a single
// drainer batches them into bulk writes. The bounded queue is the
// backpressure valve; when the store is slower than upstream, Enqueue
// blocks instead of growing memory.
type BatchSink struct {
	writer    PointWriter
	queue     chan Point
	batchSize int

	done chan struct{}

	mu  sync.Mutex
	err error
}

// NewBatchSink starts a sink draining into writer. queueDepth bounds how
// many points may be buffered; batchSize bounds one bulk write.
func NewBatchSink(writer PointWriter, batchSize, queueDepth int) *BatchSink {
	if batchSize < 1 {
		batchSize = 1
	}
	if queueDepth < 1 {
		queueDepth = batchSize
	}
	s := &BatchSink{
		writer:    writer,
		queue:     make(chan Point, queueDepth),
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
	go s.drain()
	return s
}

// Enqueue adds one point, blocking while the queue is full. It fails fast
// once the drainer has recorded a write error, so producers stop feeding
// a sink that cannot deliver.
func (s *BatchSink) Enqueue(ctx context.Context, p Point) error {
	if err := s.Err(); err != nil {
		return err
	}
	select {
	case s.queue <- p:
		return nil
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush stops intake, drains everything buffered into the writer and
// returns the first write error, if any. The sink is finished after
// Flush returns.
func (s *BatchSink) Flush(ctx context.Context) error {
	close(s.queue)
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Err()
}

// Err returns the first write error the drainer hit.
func (s *BatchSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *BatchSink) drain() {
	defer close(s.done)
	batch := make([]Point, 0, s.batchSize)
	for p := range s.queue {
		batch = append(batch, p)
		if len(batch) >= s.batchSize {
			s.write(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		s.write(batch)
	}
}

func (s *BatchSink) write(batch []Point) {
	if s.Err() != nil {
		return
	}
	if err := s.writer.WritePoints(context.Background(), batch); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}
