package audit

import (
	"context"
	"sync"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const (
	ActionOrderPlaced        = "order_placed"
	ActionOrderCancelled     = "order_cancelled"
	ActionOrderStatusChanged = "order_status_changed"
	ActionOrderDeleted       = "order_deleted"
	ActionStockAdjustFailed  = "stock_adjust_failed"
)

const writeTimeout = 5 * time.Second

// Sink persists audit entries. *repository.MongoRepository satisfies it.
type Sink interface {
	CreateAuditLog(ctx context.Context, log *repository.AuditLog) error
}

// Messages
type recordEvent struct {
	Action   string
	EntityID string
	Data     bson.M
	At       time.Time
}

// auditActor owns every write to the sink, so entries land in the order they were recorded.
type auditActor struct {
	sink    Sink
	service string
	logger  *zap.Logger
}

func (a *auditActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *recordEvent:
		wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		err := a.sink.CreateAuditLog(wctx, &repository.AuditLog{
			Service:   a.service,
			Action:    msg.Action,
			EntityID:  msg.EntityID,
			Data:      msg.Data,
			CreatedAt: msg.At,
		})
		if err != nil {
			a.logger.Warn("Failed to write audit log",
				zap.String("action", msg.Action),
				zap.String("entity_id", msg.EntityID),
				zap.Error(err))
		}

	case *actor.Started:
		a.logger.Info("Audit actor started")

	case *actor.Stopping:
		a.logger.Info("Audit actor stopping")

	case *actor.Stopped:
		a.logger.Info("Audit actor stopped")
	}
}

// Recorder is a fire-and-forget front for the audit actor.
type Recorder struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(sink Sink, service string, logger *zap.Logger) *Recorder {
	logger = logger.Named("audit")
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &auditActor{sink: sink, service: service, logger: logger}
	})

	return &Recorder{
		system: system,
		pid:    system.Root.Spawn(props),
		logger: logger,
	}
}

// Record queues an entry and returns immediately. Entries recorded after Close are dropped.
func (r *Recorder) Record(action, entityID string, data bson.M) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Debug("Audit recorder closed, dropping entry",
			zap.String("action", action),
			zap.String("entity_id", entityID))
		return
	}
	r.system.Root.Send(r.pid, &recordEvent{
		Action:   action,
		EntityID: entityID,
		Data:     data,
		At:       time.Now(),
	})
}

// Close stops the actor after it has written everything queued before the call.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.system.Root.PoisonFuture(r.pid).Wait()
}
