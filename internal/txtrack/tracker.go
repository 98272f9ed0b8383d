package txtrack

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "InkaSwap-Provider/internal/errors"
	"InkaSwap-Provider/internal/storage/mysql"
	"InkaSwap-Provider/internal/submit"
)

// Tracker records transactions whose receipt did not arrive in time and
// queues them for the Reconciler. It never resubmits anything.
type Tracker struct {
	producer Producer
	repo     mysql.TransactionRepository
	delay    time.Duration
	now      func() time.Time
}

var _ submit.Tracker = (*Tracker)(nil)

// NewTracker publishes to producer; repo may be nil.
func NewTracker(producer Producer, repo mysql.TransactionRepository, delay time.Duration) *Tracker {
	return &Tracker{producer: producer, repo: repo, delay: delay, now: time.Now}
}

// Track stores hash as pending and queues it for a later receipt check.
func (t *Tracker) Track(ctx context.Context, network string, hash common.Hash) error {
	if t.producer == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "未配置待确认交易队列")
	}
	now := t.now()
	if t.repo != nil {
		if err := t.repo.SaveTransaction(ctx, mysql.TransactionRecord{
			Hash:      hash.Hex(),
			Network:   network,
			Status:    mysql.StatusPending,
			CreatedAt: now.Unix(),
			UpdatedAt: now.Unix(),
		}); err != nil {
			return err
		}
	}
	pending := Pending{Network: network, Hash: hash.Hex()}
	if t.delay > 0 {
		pending.NotBefore = now.Add(t.delay).UnixMilli()
	}
	return t.producer.Publish(ctx, pending)
}

// Requeue publishes every transaction still recorded as pending, so a
// restarted reconciler picks up hashes a memory queue lost. It returns the
// number of hashes queued.
func Requeue(ctx context.Context, repo mysql.TransactionRepository, producer Producer, limit int) (int, error) {
	records, err := repo.ListTransactions(ctx, mysql.StatusPending, limit)
	if err != nil {
		return 0, err
	}
	for i, rec := range records {
		if err := producer.Publish(ctx, Pending{Network: rec.Network, Hash: rec.Hash, Attempts: rec.Attempts}); err != nil {
			return i, xerrors.Wrap(xerrors.CodeQueueFailure, err, "重新投递待确认交易失败")
		}
	}
	return len(records), nil
}
