package journal

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"go.uber.org/atomic"
	"gorm.io/gorm"

	"rideway/internal/booking"
	"rideway/pkg/exception"
)

const DefaultQueueSize = 256

// UpdateSource emits booking updates. *booking.Adapter implements it.
type UpdateSource interface {
	OnUpdate(fn func(booking.Update)) func()
}

// Recorder persists booking updates in the background so the client
// callbacks never wait on the database.
type Recorder struct {
	db      *gorm.DB
	queue   *queue
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewRecorder builds a recorder writing to db.
func NewRecorder(db *gorm.DB, queueSize int) (*Recorder, error) {
	if db == nil {
		return nil, exception.ErrJournalNilDB
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{db: db, queue: newQueue(queueSize)}, nil
}

// Migrate creates or updates the booking_events table.
func (r *Recorder) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Event{}); err != nil {
		return errors.Wrap(err, "migrate booking events")
	}
	return nil
}

// Record writes e synchronously.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	if err := r.db.WithContext(ctx).Create(&e).Error; err != nil {
		return errors.Wrap(err, "insert booking event").With("messageId", e.MessageID)
	}
	r.written.Inc()
	return nil
}

// Attach queues every update of src for Run. The returned function detaches.
func (r *Recorder) Attach(src UpdateSource) func() {
	return src.OnUpdate(func(u booking.Update) {
		if err := r.queue.TryPublish(NewEvent(u)); err != nil {
			r.dropped.Inc()
			logs.Warnf("journal %s %s, err: %+v", u.Type, u.MessageID, err)
		}
	})
}

// Run writes queued updates until ctx is done or Close was called.
func (r *Recorder) Run(ctx context.Context) {
	r.queue.Run(ctx, func(e Event) {
		if err := r.Record(ctx, e); err != nil {
			logs.Errorf("%+v", err)
		}
	})
}

// Close stops accepting updates; Run returns after flushing the backlog.
func (r *Recorder) Close() {
	r.queue.Close()
}

// Dropped returns the number of updates lost to a full or closed queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns the number of rows inserted.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}
