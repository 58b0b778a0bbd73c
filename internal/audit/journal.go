package audit

import (
	"context"
	"sync"
	"time"

	"github.com/frostlux/frostlux/internal/command"
)

const (
	// appendTimeout bounds one journal write.
	appendTimeout = 2 * time.Second

	// queueSize is how many results may wait for the writer before new
	// ones are dropped.
	queueSize = 256
)

// Logger is the logging interface used by the journal.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Journal appends resolved commands to a Repository.
//
// Record only queues; a single writer goroutine started by NewJournal does
// the database work, so the command path never waits on SQLite.
type Journal struct {
	repo  Repository
	queue chan Entry
	done  chan struct{}

	mu     sync.Mutex
	closed bool
	logger Logger
}

// NewJournal creates a journal writing to repo and starts its writer.
// Call Close to flush and stop it.
func NewJournal(repo Repository) *Journal {
	j := &Journal{
		repo:   repo,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
	go j.writeLoop()
	return j
}

// SetLogger sets the logger for failed appends.
func (j *Journal) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	j.mu.Lock()
	j.logger = logger
	j.mu.Unlock()
}

func (j *Journal) log() Logger {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.logger
}

// Record queues res for the journal. It matches the dispatcher's observer
// signature and never blocks: results arriving while the queue is full, or
// after Close, are dropped with a warning.
func (j *Journal) Record(res command.Result) {
	entry := EntryFromResult(res)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		j.logger.Warn("journal closed, entry dropped", "command_id", res.ID)
		return
	}
	select {
	case j.queue <- entry:
	default:
		j.logger.Warn("journal queue full, entry dropped", "command_id", res.ID)
	}
}

func (j *Journal) writeLoop() {
	defer close(j.done)
	for entry := range j.queue {
		j.write(entry)
	}
}

func (j *Journal) write(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	if err := j.repo.Append(ctx, &entry); err != nil {
		j.log().Warn("journal append failed", "command_id", entry.CommandID, "error", err)
	}
}

// Close stops accepting results and waits until the queued ones are
// written. Safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	<-j.done
	return nil
}

// Latest returns the newest n entries.
func (j *Journal) Latest(ctx context.Context, n int) ([]Entry, error) {
	return j.repo.Latest(ctx, n)
}

// EntryFromResult converts a command result into a journal entry.
// The entry is stamped with the time the command started.
func EntryFromResult(res command.Result) Entry {
	e := Entry{
		CommandID: res.ID,
		LightID:   res.LightID,
		LightName: res.LightName,
		Kind:      res.Kind,
		Delta:     res.Delta.String(),
		Outcome:   res.Outcome.String(),
		Attempts:  res.Attempts,
		Latency:   res.Latency,
		CreatedAt: res.StartedAt,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}
