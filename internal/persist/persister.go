package persist

import (
	"context"
	"sync"
	"time"

	"github.com/slyxzy/collab-code-editor/internal/backup"
	"github.com/slyxzy/collab-code-editor/internal/logger"
	"github.com/slyxzy/collab-code-editor/internal/store"
)

const (
	// default sizing for the background pipeline; a handful of workers
	// bounds concurrent DB and S3 calls without stalling the hub
	defaultWorkers   = 4
	defaultQueueSize = 256

	// per-task deadline for DB and blob-store operations
	taskTimeout = 10 * time.Second
)

type taskKind int

const (
	taskSave taskKind = iota
	taskActivity
	taskBackup
)

type task struct {
	kind     taskKind
	id       string
	name     string
	code     string
	language string
	entry    *store.ActivityLogEntry
	payload  backup.SnapshotPayload
}

// Persister decouples durable writes from the broadcast path. Saves,
// activity appends and backups are enqueued fire-and-forget and
// drained by a fixed pool of workers; a full queue drops the task
// rather than blocking the caller.
type Persister struct {
	store   store.Store
	backups *backup.Engine
	tasks   chan task
	workers int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPersister(st store.Store, backups *backup.Engine) *Persister {
	return &Persister{
		store:   st,
		backups: backups,
		tasks:   make(chan task, defaultQueueSize),
		workers: defaultWorkers,
	}
}

// starts the worker pool
func (p *Persister) Start() {
	for range p.workers {
		p.wg.Add(1)
		go p.run()
	}

	logger.Info("persistence pipeline started", "workers", p.workers)
}

// stops accepting tasks, drains the queue and waits for workers
func (p *Persister) Stop() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return
	}

	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	logger.Info("persistence pipeline stopped")
}

// enqueues a write-through save for a session. On success the saved
// record is also exported to the backup engine.
func (p *Persister) EnqueueSave(id, name, code, language string) {
	p.enqueue(task{
		kind:     taskSave,
		id:       id,
		name:     name,
		code:     code,
		language: language,
	})
}

// enqueues a best-effort activity log append
func (p *Persister) EnqueueActivity(entry *store.ActivityLogEntry) {
	p.enqueue(task{kind: taskActivity, entry: entry})
}

// enqueues a backup for an already-saved session record (used by the
// REST save path, which persists synchronously)
func (p *Persister) EnqueueBackup(session *store.Session) {
	p.enqueue(task{
		kind: taskBackup,
		id:   session.ID,
		payload: backup.SnapshotPayload{
			ID:       session.ID,
			Name:     session.Name,
			Code:     session.Code,
			Language: session.Language,
		},
	})
}

func (p *Persister) enqueue(t task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		logger.Warn("persistence task dropped, pipeline stopped", "session_id", t.id)
		return
	}

	select {
	case p.tasks <- t:
	default:
		// the queue is the backpressure bound; dropping keeps the hub
		// from ever waiting on persistence latency
		logger.Warn("persistence task dropped, queue full", "session_id", t.id)
	}
}

func (p *Persister) run() {
	defer p.wg.Done()

	for t := range p.tasks {
		p.handle(t)
	}
}

func (p *Persister) handle(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	switch t.kind {
	case taskSave:
		session, err := p.store.Save(ctx, t.id, t.name, t.code, t.language)
		if err != nil {
			// the broadcast already happened; the durable copy is a
			// best-effort checkpoint
			logger.ErrorErr(err, "failed to persist session", "session_id", t.id)
			return
		}

		p.backups.Backup(ctx, session.ID, backup.SnapshotPayload{
			ID:       session.ID,
			Name:     session.Name,
			Code:     session.Code,
			Language: session.Language,
		})

	case taskActivity:
		store.SoftAppendActivity(ctx, p.store, t.entry)

	case taskBackup:
		p.backups.Backup(ctx, t.id, t.payload)
	}
}
