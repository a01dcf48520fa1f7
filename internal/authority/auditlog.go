package authority

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// AuditEventType classifies combat audit entries.
type AuditEventType string

const (
	AuditConnect        AuditEventType = "connect"
	AuditDisconnect     AuditEventType = "disconnect"
	AuditActionRejected AuditEventType = "action_rejected"
	AuditFire           AuditEventType = "fire"
	AuditReload         AuditEventType = "reload"
	AuditEquip          AuditEventType = "equip"
	AuditHitConfirmed   AuditEventType = "hit_confirmed"
	AuditKill           AuditEventType = "kill"
)

// AuditEvent is one entry in the combat audit trail.
type AuditEvent struct {
	Sequence  uint64         `json:"seq"`
	Type      AuditEventType `json:"type"`
	Tick      uint64         `json:"tick"`
	ActorID   string         `json:"actorId,omitempty"`
	Timestamp int64          `json:"ts"`
	Detail    interface{}    `json:"detail,omitempty"`
}

const (
	auditBufferSize     = 1024
	auditMaxPerSec      = 5000
	auditMaxPerActor    = 60
	auditFlushInterval  = 100 * time.Millisecond
	auditFlushBatch     = 64
	auditLimiterCleanup = 5 * time.Minute
)

// AuditLog is a bounded, rate-limited combat trail with an async JSONL
// writer. The ring buffer drops the oldest entries under pressure; a
// flooding client is throttled by a per-actor limiter before it can
// crowd out everyone else's entries.
type AuditLog struct {
	buffer    [auditBufferSize]AuditEvent
	writeHead uint64 // atomic
	readHead  uint64 // atomic

	globalLimiter *rate.Limiter
	actorLimiters sync.Map // map[string]*actorLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	dropped uint64 // atomic
	total   uint64 // atomic
}

type actorLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func NewAuditLog() *AuditLog {
	return &AuditLog{
		globalLimiter: rate.NewLimiter(auditMaxPerSec, auditMaxPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens the JSONL sink (empty path = in-memory only) and launches
// the writer and limiter-cleanup goroutines.
func (l *AuditLog) Start(filePath string) error {
	if l.running.Load() {
		return nil
	}
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		l.file = f
	}
	l.running.Store(true)
	l.writerWg.Add(2)
	go l.writerLoop()
	go l.cleanupLoop()
	return nil
}

// Stop flushes and shuts the log down.
func (l *AuditLog) Stop() {
	l.stopOnce.Do(func() {
		l.running.Store(false)
		close(l.stopChan)
		l.writerWg.Wait()

		l.fileMu.Lock()
		if l.file != nil {
			l.file.Close()
		}
		l.fileMu.Unlock()
	})
}

// Record appends an entry. Returns false when rate limited or stopped.
func (l *AuditLog) Record(eventType AuditEventType, tick uint64, actorID string, detail interface{}) bool {
	if !l.running.Load() {
		return false
	}
	if !l.globalLimiter.Allow() {
		atomic.AddUint64(&l.dropped, 1)
		return false
	}
	if actorID != "" && !l.actorLimiter(actorID).Allow() {
		atomic.AddUint64(&l.dropped, 1)
		return false
	}

	// writeHead counts recorded events; this event's sequence is the
	// pre-increment value, which is also its buffer slot.
	seq := atomic.AddUint64(&l.writeHead, 1) - 1
	tail := atomic.LoadUint64(&l.readHead)
	if seq-tail >= auditBufferSize {
		// Rolling window: losing old entries beats blocking the tick.
		atomic.AddUint64(&l.readHead, 1)
		atomic.AddUint64(&l.dropped, 1)
	}

	l.buffer[seq%auditBufferSize] = AuditEvent{
		Sequence:  seq,
		Type:      eventType,
		Tick:      tick,
		ActorID:   actorID,
		Timestamp: time.Now().UnixMilli(),
		Detail:    detail,
	}
	atomic.AddUint64(&l.total, 1)
	return true
}

func (l *AuditLog) actorLimiter(actorID string) *rate.Limiter {
	if entry, ok := l.actorLimiters.Load(actorID); ok {
		e := entry.(*actorLimiterEntry)
		e.lastUsed = time.Now()
		return e.limiter
	}
	entry := &actorLimiterEntry{
		limiter:  rate.NewLimiter(auditMaxPerActor, auditMaxPerActor/6),
		lastUsed: time.Now(),
	}
	actual, _ := l.actorLimiters.LoadOrStore(actorID, entry)
	return actual.(*actorLimiterEntry).limiter
}

func (l *AuditLog) writerLoop() {
	defer l.writerWg.Done()

	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()

	batch := make([]AuditEvent, 0, auditFlushBatch)
	for {
		select {
		case <-l.stopChan:
			if batch = l.collect(batch[:0]); len(batch) > 0 {
				l.flush(batch)
			}
			return
		case <-ticker.C:
			if batch = l.collect(batch[:0]); len(batch) > 0 {
				l.flush(batch)
			}
		}
	}
}

func (l *AuditLog) cleanupLoop() {
	defer l.writerWg.Done()

	ticker := time.NewTicker(auditLimiterCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-auditLimiterCleanup)
			l.actorLimiters.Range(func(key, value interface{}) bool {
				if value.(*actorLimiterEntry).lastUsed.Before(cutoff) {
					l.actorLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (l *AuditLog) collect(batch []AuditEvent) []AuditEvent {
	head := atomic.LoadUint64(&l.writeHead)
	tail := atomic.LoadUint64(&l.readHead)
	for i := tail; i < head && len(batch) < auditFlushBatch; i++ {
		batch = append(batch, l.buffer[i%auditBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&l.readHead, uint64(len(batch)))
	}
	return batch
}

func (l *AuditLog) flush(batch []AuditEvent) {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	if l.file == nil {
		return
	}
	for _, ev := range batch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		l.file.Write(data)
		l.file.Write([]byte("\n"))
	}
}

// Stats reports counters for monitoring.
func (l *AuditLog) Stats() map[string]interface{} {
	head := atomic.LoadUint64(&l.writeHead)
	tail := atomic.LoadUint64(&l.readHead)
	return map[string]interface{}{
		"total":   atomic.LoadUint64(&l.total),
		"dropped": atomic.LoadUint64(&l.dropped),
		"pending": head - tail,
		"running": l.running.Load(),
	}
}
