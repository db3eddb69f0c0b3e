package export

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"pixelworld.dev/internal/persistence/r2s3"
	"pixelworld.dev/internal/worldcfg"
)

// Putter is the slice of the object-store client the mirror needs.
type Putter interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	EnqueuedTotal       uint64
	QueueSaturatedTotal uint64
	DroppedTotal        uint64
	UploadSuccessTotal  uint64
	UploadFailTotal     uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

type job struct {
	username string
	payload  []byte
}

// Mirror asynchronously mirrors saved world configurations to object storage
// as zstd-compressed JSON exports. Saves never block on the mirror; when the
// queue saturates, exports are dropped and counted. The database remains the
// source of truth.
type Mirror struct {
	client Putter
	logger *log.Logger
	enc    *zstd.Encoder

	jobs        chan job
	enqueueWait time.Duration
	wg          sync.WaitGroup

	enqueuedTotal       atomic.Uint64
	queueSaturatedTotal atomic.Uint64
	droppedTotal        atomic.Uint64
	uploadSuccessTotal  atomic.Uint64
	uploadFailTotal     atomic.Uint64
	lastSuccessUnix     atomic.Int64
	lastErrorUnix       atomic.Int64
}

func NewMirror(client Putter, workers, queueCapacity int, enqueueWait time.Duration, logger *log.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	if enqueueWait <= 0 {
		enqueueWait = 25 * time.Millisecond
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	m := &Mirror{
		client:      client,
		logger:      logger,
		enc:         enc,
		jobs:        make(chan job, queueCapacity),
		enqueueWait: enqueueWait,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for j := range m.jobs {
				m.uploadOne(j)
			}
		}()
	}
	return m
}

// Enqueue schedules a configuration export. Bounded: a short wait under
// bursts, then drop.
func (m *Mirror) Enqueue(username string, cfg worldcfg.WorldConfig) {
	if m == nil || m.client == nil {
		return
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		m.printf("export mirror marshal failed user=%s err=%v", username, err)
		return
	}
	m.enqueuedTotal.Add(1)

	j := job{username: username, payload: payload}
	select {
	case m.jobs <- j:
		return
	default:
	}

	m.queueSaturatedTotal.Add(1)
	timer := time.NewTimer(m.enqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- j:
	case <-timer.C:
		dropped := m.droppedTotal.Add(1)
		m.printf("export mirror drop user=%s reason=queue_saturated dropped_total=%d", username, dropped)
	}
}

func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(m.jobs),
		QueueCapacity:       cap(m.jobs),
		EnqueuedTotal:       m.enqueuedTotal.Load(),
		QueueSaturatedTotal: m.queueSaturatedTotal.Load(),
		DroppedTotal:        m.droppedTotal.Load(),
		UploadSuccessTotal:  m.uploadSuccessTotal.Load(),
		UploadFailTotal:     m.uploadFailTotal.Load(),
		LastSuccessUnix:     m.lastSuccessUnix.Load(),
		LastErrorUnix:       m.lastErrorUnix.Load(),
	}
}

func (m *Mirror) uploadOne(j job) {
	key := r2s3.BuildKey(j.username, "export", "json.zst")
	body := m.enc.EncodeAll(j.payload, nil)

	if err := m.uploadWithRetry(key, body); err != nil {
		m.uploadFailTotal.Add(1)
		m.lastErrorUnix.Store(time.Now().UTC().Unix())
		m.printf("export mirror upload failed key=%s err=%v", key, err)
		return
	}
	m.uploadSuccessTotal.Add(1)
	m.lastSuccessUnix.Store(time.Now().UTC().Unix())
	m.printf("export mirror uploaded key=%s bytes=%d", key, len(body))
}

func (m *Mirror) uploadWithRetry(key string, body []byte) error {
	const maxAttempts = 4
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := m.client.PutObject(ctx, key, "application/zstd", body)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < maxAttempts {
			backoff := time.Duration(attempt*attempt) * 200 * time.Millisecond
			time.Sleep(backoff)
		}
	}
	return lastErr
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
