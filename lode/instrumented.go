package lode

import (
	"context"

	"github.com/pithecene-io/imagestream/metrics"
)

// InstrumentedFiles counts PutFile outcomes on a metrics collector.
type InstrumentedFiles struct {
	FileStore
	collector *metrics.Collector
}

// NewInstrumentedFiles wraps files.
func NewInstrumentedFiles(files FileStore, collector *metrics.Collector) *InstrumentedFiles {
	return &InstrumentedFiles{FileStore: files, collector: collector}
}

// PutFile delegates and records success or failure.
func (f *InstrumentedFiles) PutFile(ctx context.Context, path string, data []byte) error {
	err := f.FileStore.PutFile(ctx, path, data)
	count(f.collector, err)
	return err
}

// InstrumentedRecords counts WriteRecords outcomes on a metrics collector.
type InstrumentedRecords struct {
	RecordStore
	collector *metrics.Collector
}

// NewInstrumentedRecords wraps records.
func NewInstrumentedRecords(records RecordStore, collector *metrics.Collector) *InstrumentedRecords {
	return &InstrumentedRecords{RecordStore: records, collector: collector}
}

// WriteRecords delegates and records success or failure.
func (r *InstrumentedRecords) WriteRecords(ctx context.Context, records []map[string]any) (string, error) {
	id, err := r.RecordStore.WriteRecords(ctx, records)
	count(r.collector, err)
	return id, err
}

func count(c *metrics.Collector, err error) {
	if err != nil {
		c.IncStoreWriteFailure()
	} else {
		c.IncStoreWriteSuccess()
	}
}

var (
	_ FileStore   = (*InstrumentedFiles)(nil)
	_ RecordStore = (*InstrumentedRecords)(nil)
)
