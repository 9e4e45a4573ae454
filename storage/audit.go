package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

type enqueuer interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

type dequeuer interface {
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

func queueOptions() *azqueue.ClientOptions {
	return &azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// AuditQueue is an ActivityLog that also exports every appended record to an
// Azure queue for downstream consumers. The export is best effort: the record
// is already stored when the enqueue runs.
type AuditQueue struct {
	domain.ActivityLog
	queue   enqueuer
	timeout time.Duration
	log     *log.Logger
}

// NewAuditQueue connects to the named queue and wraps base.
func NewAuditQueue(base domain.ActivityLog, connStr, queueName string, logger *log.Logger) (*AuditQueue, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, queueOptions())
	if err != nil {
		return nil, err
	}
	return newAuditQueue(base, q, logger), nil
}

func newAuditQueue(base domain.ActivityLog, q enqueuer, logger *log.Logger) *AuditQueue {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &AuditQueue{ActivityLog: base, queue: q, timeout: 10 * time.Second, log: logger}
}

// auditMessage is the queue payload for one activity record.
type auditMessage struct {
	Kind     string          `json:"kind"`
	Activity domain.Activity `json:"activity"`
}

func (a *AuditQueue) AppendActivity(ctx context.Context, act domain.Activity) error {
	if err := a.ActivityLog.AppendActivity(ctx, act); err != nil {
		return err
	}
	data, err := json.Marshal(auditMessage{Kind: "activity", Activity: act})
	if err != nil {
		return err
	}
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	if _, err := a.queue.EnqueueMessage(qctx, string(data), nil); err != nil {
		a.log.WithError(err).WithFields(log.Fields{
			"board":    act.BoardID,
			"activity": act.ID,
		}).Error("audit enqueue failed")
	}
	return nil
}

// AuditFeed consumes the activity records an AuditQueue exports.
type AuditFeed struct {
	queue dequeuer
	idle  time.Duration
	log   *log.Logger
}

// NewAuditFeed connects to the named export queue.
func NewAuditFeed(connStr, queueName string, logger *log.Logger) (*AuditFeed, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, queueOptions())
	if err != nil {
		return nil, err
	}
	return newAuditFeed(q, time.Second, logger), nil
}

func newAuditFeed(q dequeuer, idle time.Duration, logger *log.Logger) *AuditFeed {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &AuditFeed{queue: q, idle: idle, log: logger}
}

// Run hands every exported activity to fn until ctx is done. A message is
// deleted once fn accepts it; when fn fails it becomes visible again after
// the queue's visibility timeout. Malformed messages are dropped.
func (f *AuditFeed) Run(ctx context.Context, fn func(domain.Activity) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := f.queue.DequeueMessage(ctx, nil)
		if err != nil {
			if ctx.Err() == nil {
				f.log.WithError(err).Warn("audit dequeue failed")
			}
			f.wait(ctx)
			continue
		}
		if len(resp.Messages) == 0 {
			f.wait(ctx)
			continue
		}
		for _, msg := range resp.Messages {
			f.handle(ctx, msg, fn)
		}
	}
}

func (f *AuditFeed) handle(ctx context.Context, msg *azqueue.DequeuedMessage, fn func(domain.Activity) error) {
	if msg == nil || msg.MessageID == nil || msg.PopReceipt == nil {
		return
	}
	var m auditMessage
	if msg.MessageText == nil || json.Unmarshal([]byte(*msg.MessageText), &m) != nil || m.Kind != "activity" {
		f.log.WithField("message", *msg.MessageID).Warn("dropping malformed audit message")
	} else if err := fn(m.Activity); err != nil {
		f.log.WithError(err).WithField("activity", m.Activity.ID).Warn("audit message not handled")
		return
	}
	if _, err := f.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
		f.log.WithError(err).WithField("message", *msg.MessageID).Warn("audit delete failed")
	}
}

func (f *AuditFeed) wait(ctx context.Context) {
	t := time.NewTimer(f.idle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
