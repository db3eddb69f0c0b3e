package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"pixelworld.dev/internal/worldcfg"
)

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
	fail int
}

func (f *fakePutter) PutObject(_ context.Context, key, _ string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("upstream unavailable")
	}
	f.keys = append(f.keys, key)
	f.body = append(f.body, body)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestMirror_UploadsCompressedExport(t *testing.T) {
	p := &fakePutter{}
	m := NewMirror(p, 1, 8, 0, nil)
	defer m.Close()

	cfg := worldcfg.WorldConfig{
		BaseThemeID: "woody",
		WorldScale:  1.8,
		Slots:       worldcfg.DefaultSlots(),
	}
	m.Enqueue("Alice", cfg)

	waitFor(t, func() bool { return m.Stats().UploadSuccessTotal == 1 })

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) != 1 || !strings.HasPrefix(p.keys[0], "alice/export-") {
		t.Fatalf("keys = %v", p.keys)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(p.body[0], nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var got worldcfg.WorldConfig
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.BaseThemeID != "woody" || len(got.Slots) != 5 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestMirror_RetriesTransientFailures(t *testing.T) {
	p := &fakePutter{fail: 2}
	m := NewMirror(p, 1, 8, 0, nil)
	defer m.Close()

	m.Enqueue("alice", worldcfg.WorldConfig{BaseThemeID: "woody", WorldScale: 1.8})
	waitFor(t, func() bool { return m.Stats().UploadSuccessTotal == 1 })
	if got := m.Stats().UploadFailTotal; got != 0 {
		t.Fatalf("retried upload must not count as failed: %d", got)
	}
}

func TestMirror_NilClientIsInert(t *testing.T) {
	var m *Mirror
	m.Enqueue("alice", worldcfg.WorldConfig{})
	if got := m.Stats(); got.EnqueuedTotal != 0 {
		t.Fatalf("nil mirror must be inert: %+v", got)
	}
}
