// Package metrics provides per-handler counters for the image streaming
// path.
//
// The Collector is a leaf package with no internal dependencies. Event
// kinds are recorded as strings to keep it independent of the types
// package.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Frame lifecycle
	FramesStarted    int64
	FramesCompleted  int64
	FramesSuperseded int64

	// Publishing
	EventsPublished  int64
	PublishedByKind  map[string]int64
	PublishFailures  int64
	ChunksWritten    int64
	ChunksRejected   int64
	MirrorFailures   int64
	SequencingErrors int64

	// Retrieval
	RetrievalsServed int64
	RetrievalsMissed int64
	BadRequests      int64

	// Archive
	ArchiveSuccess int64
	ArchiveFailure int64
	ArchiveDropped int64

	// Store writes, one per file or record batch
	StoreWriteSuccess int64
	StoreWriteFailure int64

	// Dimensions (informational, set at construction)
	Handler        string
	StreamBackend  string
	ArchiveBackend string
}

// Collector accumulates counters for one handler.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	framesStarted    int64
	framesCompleted  int64
	framesSuperseded int64

	eventsPublished  int64
	publishedByKind  map[string]int64
	publishFailures  int64
	chunksWritten    int64
	chunksRejected   int64
	mirrorFailures   int64
	sequencingErrors int64

	retrievalsServed int64
	retrievalsMissed int64
	badRequests      int64

	archiveSuccess int64
	archiveFailure int64
	archiveDropped int64

	storeWriteSuccess int64
	storeWriteFailure int64

	handler        string
	streamBackend  string
	archiveBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(handler, streamBackend, archiveBackend string) *Collector {
	return &Collector{
		publishedByKind: make(map[string]int64),
		handler:         handler,
		streamBackend:   streamBackend,
		archiveBackend:  archiveBackend,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Frame lifecycle ---

// IncFrameStarted records a frame start.
func (c *Collector) IncFrameStarted() {
	if c == nil {
		return
	}
	c.inc(&c.framesStarted)
}

// IncFrameCompleted records a DONE event.
func (c *Collector) IncFrameCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.framesCompleted)
}

// IncFrameSuperseded records a start that replaced an unfinished frame.
func (c *Collector) IncFrameSuperseded() {
	if c == nil {
		return
	}
	c.inc(&c.framesSuperseded)
}

// --- Publishing ---

// IncPublished records a published event of the given kind.
func (c *Collector) IncPublished(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsPublished++
	c.publishedByKind[kind]++
	c.mu.Unlock()
}

// IncPublishFailure records a transport failure on publish.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.inc(&c.publishFailures)
}

// IncChunkWritten records a chunk stored in the frame buffer.
func (c *Collector) IncChunkWritten() {
	if c == nil {
		return
	}
	c.inc(&c.chunksWritten)
}

// IncChunkRejected records a chunk rejected by validation.
func (c *Collector) IncChunkRejected() {
	if c == nil {
		return
	}
	c.inc(&c.chunksRejected)
}

// IncMirrorFailure records a FITS mirror failure.
func (c *Collector) IncMirrorFailure() {
	if c == nil {
		return
	}
	c.inc(&c.mirrorFailures)
}

// IncSequencingError records an operation attempted with no active frame.
func (c *Collector) IncSequencingError() {
	if c == nil {
		return
	}
	c.inc(&c.sequencingErrors)
}

// --- Retrieval ---

// IncRetrievalServed records a chunk returned to a peer.
func (c *Collector) IncRetrievalServed() {
	if c == nil {
		return
	}
	c.inc(&c.retrievalsServed)
}

// IncRetrievalMissed records a request for an unknown chunk.
func (c *Collector) IncRetrievalMissed() {
	if c == nil {
		return
	}
	c.inc(&c.retrievalsMissed)
}

// IncBadRequest records a malformed retrieval request.
func (c *Collector) IncBadRequest() {
	if c == nil {
		return
	}
	c.inc(&c.badRequests)
}

// --- Archive ---

// IncArchiveSuccess records a persisted frame.
func (c *Collector) IncArchiveSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.archiveSuccess)
}

// IncArchiveFailure records a failed archive write.
func (c *Collector) IncArchiveFailure() {
	if c == nil {
		return
	}
	c.inc(&c.archiveFailure)
}

// IncArchiveDropped records a snapshot refused by a full archive queue.
func (c *Collector) IncArchiveDropped() {
	if c == nil {
		return
	}
	c.inc(&c.archiveDropped)
}

// IncStoreWriteSuccess records a store write that committed.
func (c *Collector) IncStoreWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.storeWriteSuccess)
}

// IncStoreWriteFailure records a store write that failed.
func (c *Collector) IncStoreWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.storeWriteFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FramesStarted:    c.framesStarted,
		FramesCompleted:  c.framesCompleted,
		FramesSuperseded: c.framesSuperseded,

		EventsPublished:  c.eventsPublished,
		PublishedByKind:  maps.Clone(c.publishedByKind),
		PublishFailures:  c.publishFailures,
		ChunksWritten:    c.chunksWritten,
		ChunksRejected:   c.chunksRejected,
		MirrorFailures:   c.mirrorFailures,
		SequencingErrors: c.sequencingErrors,

		RetrievalsServed: c.retrievalsServed,
		RetrievalsMissed: c.retrievalsMissed,
		BadRequests:      c.badRequests,

		ArchiveSuccess: c.archiveSuccess,
		ArchiveFailure: c.archiveFailure,
		ArchiveDropped: c.archiveDropped,

		StoreWriteSuccess: c.storeWriteSuccess,
		StoreWriteFailure: c.storeWriteFailure,

		Handler:        c.handler,
		StreamBackend:  c.streamBackend,
		ArchiveBackend: c.archiveBackend,
	}
}
