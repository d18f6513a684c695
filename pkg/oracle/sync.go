package oracle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vouchnet/settlement-middleware/internal/metrics"
)

const pushTimeout = 30 * time.Second

type pushOp struct {
	op   string
	run  func(ctx context.Context) error
	user string
}

// Synchronizer decouples oracle pushes from the settlement path. Pushes
// are queued and executed by a single background worker; failures are
// logged and dropped, never propagated to the caller. A full queue also
// drops the push rather than blocking settlement.
type Synchronizer struct {
	oracle StatusOracle
	logger *zap.Logger
	queue  chan pushOp

	stopOnce sync.Once
	stopped  chan struct{}
	drained  chan struct{}
}

func NewSynchronizer(oracle StatusOracle, queueSize int, logger *zap.Logger) *Synchronizer {
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &Synchronizer{
		oracle:  oracle,
		logger:  logger,
		queue:   make(chan pushOp, queueSize),
		stopped: make(chan struct{}),
		drained: make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *Synchronizer) worker() {
	defer close(s.drained)
	for {
		select {
		case <-s.stopped:
			return
		case op := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			err := op.run(ctx)
			cancel()
			if err != nil {
				metrics.OraclePushes.WithLabelValues(op.op, "failure").Inc()
				s.logger.Warn("oracle push failed",
					zap.String("op", op.op),
					zap.String("user", op.user),
					zap.Error(err))
				continue
			}
			metrics.OraclePushes.WithLabelValues(op.op, "success").Inc()
		}
	}
}

func (s *Synchronizer) enqueue(op pushOp) {
	select {
	case s.queue <- op:
	default:
		metrics.OraclePushes.WithLabelValues(op.op, "dropped").Inc()
		s.logger.Warn("oracle push queue full, dropping",
			zap.String("op", op.op), zap.String("user", op.user))
	}
}

// MarkDefault queues a default flag push for the user.
func (s *Synchronizer) MarkDefault(user string) {
	s.enqueue(pushOp{op: "mark_default", user: user, run: func(ctx context.Context) error {
		return s.oracle.MarkDefault(ctx, user)
	}})
}

// ClearDefault queues removal of the user's default flag.
func (s *Synchronizer) ClearDefault(user string) {
	s.enqueue(pushOp{op: "clear_default", user: user, run: func(ctx context.Context) error {
		return s.oracle.ClearDefault(ctx, user)
	}})
}

// UpdateCreditScore queues a score push for the user.
func (s *Synchronizer) UpdateCreditScore(user string, score int) {
	s.enqueue(pushOp{op: "update_score", user: user, run: func(ctx context.Context) error {
		return s.oracle.UpdateCreditScore(ctx, user, score)
	}})
}

// Stop shuts the worker down. Queued pushes that have not started are
// discarded.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
	<-s.drained
}
