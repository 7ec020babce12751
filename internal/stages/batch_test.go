package stages

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter captures batches for assertions.
type recordingWriter struct {
	mu      sync.Mutex
	batches [][]Point
	err     error
	delay   time.Duration
}

func (w *recordingWriter) WritePoints(ctx context.Context, points []Point) error {
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	batch := make([]Point, len(points))
	copy(batch, points)
	w.batches = append(w.batches, batch)
	return nil
}

func (w *recordingWriter) all() []Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Point
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

func point(measurement string, ms int64) Point {
	return Point{
		Measurement: measurement,
		Fields:      map[string]interface{}{"close": 1.0},
		Time:        time.UnixMilli(ms).UTC(),
	}
}

func TestBatchSinkBatchesInOrder(t *testing.T) {
	writer := &recordingWriter{}
	sink := NewBatchSink(writer, 3, 10)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, sink.Enqueue(ctx, point("eurusd", int64(i))))
	}
	require.NoError(t, sink.Flush(ctx))

	all := writer.all()
	require.Len(t, all, 7)
	for i, p := range all {
		assert.Equal(t, time.UnixMilli(int64(i)).UTC(), p.Time)
	}

	// Full batches of three, then the remainder on flush.
	require.Len(t, writer.batches, 3)
	assert.Len(t, writer.batches[0], 3)
	assert.Len(t, writer.batches[1], 3)
	assert.Len(t, writer.batches[2], 1)
}

func TestBatchSinkBackpressure(t *testing.T) {
	writer := &recordingWriter{delay: 30 * time.Millisecond}
	sink := NewBatchSink(writer, 1, 1)

	ctx := context.Background()
	require.NoError(t, sink.Enqueue(ctx, point("eurusd", 0)))
	require.NoError(t, sink.Enqueue(ctx, point("eurusd", 1)))

	// Queue and writer are both busy: a bounded enqueue must block
	// rather than buffer without limit.
	blocked, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	err := sink.Enqueue(blocked, point("eurusd", 2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, sink.Flush(ctx))
	assert.Len(t, writer.all(), 2)
}

func TestBatchSinkSurfacesWriteError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("bucket gone")}
	sink := NewBatchSink(writer, 1, 1)

	ctx := context.Background()
	_ = sink.Enqueue(ctx, point("eurusd", 0))

	err := sink.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}
