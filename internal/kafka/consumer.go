package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message is fully processed and its offset may be committed.
// A failing message is retried in place until it succeeds or the consumer stops, and no later
// offset of its partition is committed before it, so delivery is at least once.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger

	// newBackOff paces handler retries of one message.
	newBackOff func() backoff.BackOff
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:          r,
		workers:    workers,
		log:        log.With(zap.String("topic", topic), zap.String("group", group)),
		newBackOff: handlerBackOff,
	}
}

func handlerBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan *pending, 1024)
	commits := newCommitQueue(func(m kafka.Message) error { return c.r.CommitMessages(ctx, m) })

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if err := c.handle(ctx, h, p.m); err != nil {
					// stopped mid-retry; the offset stays uncommitted
					continue
				}
				if err := commits.done(p); err != nil {
					c.log.Warn("commit failed", zap.Int("partition", p.m.Partition), zap.Int64("offset", p.m.Offset), zap.Error(err))
				}
			}
		}()
	}
	stop := func() {
		close(jobs)
		wg.Wait()
	}

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- commits.add(m):
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// handle runs h until it succeeds or ctx is done.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return h(ctx, m)
	}, backoff.WithContext(c.newBackOff(), ctx), func(err error, wait time.Duration) {
		c.log.Warn("handler failed, retrying",
			zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
	})
}

type pending struct {
	m    kafka.Message
	done bool
}

// commitQueue commits, per partition, the highest offset below which every
// fetched message has been handled.
type commitQueue struct {
	mu     sync.Mutex
	parts  map[int][]*pending
	commit func(kafka.Message) error
}

func newCommitQueue(commit func(kafka.Message) error) *commitQueue {
	return &commitQueue{parts: map[int][]*pending{}, commit: commit}
}

// add must be called in fetch order.
func (q *commitQueue) add(m kafka.Message) *pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := &pending{m: m}
	q.parts[m.Partition] = append(q.parts[m.Partition], p)
	return p
}

func (q *commitQueue) done(p *pending) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	p.done = true
	queue := q.parts[p.m.Partition]
	var last *pending
	for len(queue) > 0 && queue[0].done {
		last, queue = queue[0], queue[1:]
	}
	q.parts[p.m.Partition] = queue
	if last == nil {
		return nil
	}
	return q.commit(last.m)
}
