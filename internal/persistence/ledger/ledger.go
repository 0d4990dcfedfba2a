package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// jsonlZstdWriter appends JSON lines to hourly-rotated zstd files. The
// marketplace ledgers are append-only observability data; losing a flush
// on crash is acceptable, mixing hours in one file is not.
type jsonlZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func newJSONLZstdWriter(baseDir, prefix string) *jsonlZstdWriter {
	return &jsonlZstdWriter{baseDir: baseDir, prefix: prefix}
}

func (w *jsonlZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *jsonlZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *jsonlZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *jsonlZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err
}

// SaleEntry is one settled or refused purchase attempt.
type SaleEntry struct {
	Time      string `json:"time"`
	BuyerID   int    `json:"buyer_id"`
	OwnerID   int    `json:"owner_id"`
	StandInID int    `json:"stand_in_id"`
	SkillID   int    `json:"skill_id"`
	Level     int    `json:"level"`
	Price     int64  `json:"price"`
	Target    string `json:"target"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Anomaly   bool   `json:"anomaly,omitempty"`
}

// LifecycleEntry is one shop open/close transition.
type LifecycleEntry struct {
	Time      string `json:"time"`
	Event     string `json:"event"` // "OPENED", "CLOSED", "RESTORED"
	OwnerID   int    `json:"owner_id"`
	StandInID int    `json:"stand_in_id"`
	Offerings int    `json:"offerings,omitempty"`
}

// MarketLedger writes the sale and lifecycle streams for one data dir.
type MarketLedger struct {
	sales *jsonlZstdWriter
	life  *jsonlZstdWriter
}

func NewMarketLedger(dataDir string) *MarketLedger {
	return &MarketLedger{
		sales: newJSONLZstdWriter(filepath.Join(dataDir, "ledger"), "sales"),
		life:  newJSONLZstdWriter(filepath.Join(dataDir, "ledger"), "shops"),
	}
}

func (l *MarketLedger) WriteSale(e SaleEntry) error {
	if e.Time == "" {
		e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return l.sales.Write(e)
}

func (l *MarketLedger) WriteLifecycle(e LifecycleEntry) error {
	if e.Time == "" {
		e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return l.life.Write(e)
}

func (l *MarketLedger) Close() error {
	err1 := l.sales.Close()
	err2 := l.life.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
