package archive

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/imagestream/adapter"
	"github.com/pithecene-io/imagestream/log"
	"github.com/pithecene-io/imagestream/metrics"
	"github.com/pithecene-io/imagestream/types"
)

// Queue defaults.
const (
	DefaultQueueSize     = 4
	DefaultWriteTimeout  = 2 * time.Minute
	DefaultNotifyTimeout = 30 * time.Second
)

// QueueOptions configures a Queue.
type QueueOptions struct {
	// Size is the number of frames that may wait for the writer.
	Size int
	// WriteTimeout bounds one frame write.
	WriteTimeout time.Duration
	// Notifier, when set, is told about every archived frame.
	Notifier      adapter.Adapter
	NotifyTimeout time.Duration
	Logger        *log.Logger
	Metrics       *metrics.Collector
}

// Queue archives frames on a background worker. Submit never blocks, so a
// slow store cannot stall live transfer; frames that do not fit are
// dropped and counted.
type Queue struct {
	writer *Writer
	opts   QueueOptions

	mu     sync.Mutex
	closed bool
	frames chan types.FrameSnapshot
	done   chan struct{}
}

// NewQueue starts the worker.
func NewQueue(w *Writer, opts QueueOptions) *Queue {
	if opts.Size <= 0 {
		opts.Size = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	q := &Queue{
		writer: w,
		opts:   opts,
		frames: make(chan types.FrameSnapshot, opts.Size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues snap. It returns false when the queue is full or closed.
func (q *Queue) Submit(snap types.FrameSnapshot) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.drop(snap, "queue closed")
		return false
	}
	select {
	case q.frames <- snap:
		return true
	default:
		q.drop(snap, "queue full")
		return false
	}
}

func (q *Queue) drop(snap types.FrameSnapshot, reason string) {
	q.opts.Metrics.IncArchiveDropped()
	q.opts.Logger.Warn("frame dropped from archive", map[string]any{
		"frame_id": snap.FrameID,
		"reason":   reason,
	})
}

// Close stops accepting frames and waits for queued frames to be written.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.frames)
	}
	q.mu.Unlock()
	<-q.done
	return nil
}

func (q *Queue) run() {
	defer close(q.done)
	for snap := range q.frames {
		q.archive(snap)
	}
}

func (q *Queue) archive(snap types.FrameSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.WriteTimeout)
	res, err := q.writer.Write(ctx, snap)
	cancel()
	if err != nil {
		q.opts.Metrics.IncArchiveFailure()
		q.opts.Logger.Error("frame archive failed", map[string]any{
			"frame_id": snap.FrameID,
			"error":    err.Error(),
		})
		return
	}

	q.opts.Metrics.IncArchiveSuccess()
	q.opts.Logger.Info("frame archived", map[string]any{
		"frame_id":     snap.FrameID,
		"path":         res.ImagePath,
		"stored_bytes": res.Manifest.StoredBytes,
	})

	if q.opts.Notifier == nil {
		return
	}
	ctx, cancel = context.WithTimeout(context.Background(), q.opts.NotifyTimeout)
	defer cancel()
	if err := q.opts.Notifier.Publish(ctx, ArchivedEvent(res)); err != nil {
		q.opts.Logger.Warn("archive notification failed", map[string]any{
			"frame_id": snap.FrameID,
			"error":    err.Error(),
		})
	}
}

// ArchivedEvent builds the notification for a written frame.
func ArchivedEvent(res *Result) *adapter.FrameArchivedEvent {
	m := &res.Manifest
	return &adapter.FrameArchivedEvent{
		ContractVersion: types.Version,
		EventType:       adapter.EventTypeFrameArchived,
		FrameID:         m.FrameID,
		Name:            m.Header.Name,
		Day:             m.Day,
		Width:           m.Header.Width,
		Height:          m.Header.Height,
		Bitpix:          int32(m.Header.Bitpix),
		StoragePath:     res.ImagePath,
		SnapshotID:      res.SnapshotID,
		Compression:     string(m.Compression),
		Digest:          m.Digest,
		FITSBytes:       m.FITSBytes,
		StoredBytes:     m.StoredBytes,
		Chunks:          m.Chunks,
		Events:          m.Events,
		Timestamp:       m.CompletedAt,
	}
}
