package audit

import (
	"context"
	"sync/atomic"

	"exexd/services/security"

	"github.com/google/uuid"
)

const defaultQueueSize = 1024

// Sink 审计事件的最终落地方
type Sink interface {
	Write(ctx context.Context, event security.AuditEvent) error
}

// Dispatcher 把授权路径上的审计事件异步转交给 Sink。
//
// Record 永不阻塞：队列满时丢弃事件并计数，授权判定不会因为审计变慢。
type Dispatcher struct {
	events chan security.AuditEvent
	sink   Sink

	dropped atomic.Uint64
	failed  atomic.Uint64

	// OnError 在 Sink 写入失败时调用，可为 nil
	OnError func(ctx context.Context, err error)
}

// NewDispatcher size <= 0 时使用默认队列长度
func NewDispatcher(sink Sink, size int) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Dispatcher{
		events: make(chan security.AuditEvent, size),
		sink:   sink,
	}
}

// Record 实现 security.Auditor
func (d *Dispatcher) Record(event security.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	select {
	case d.events <- event:
	default:
		d.dropped.Add(1)
	}
}

// Run 持续消费事件直到 ctx 结束，结束前把队列中剩余的事件写完
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case event := <-d.events:
			d.write(ctx, event)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.events:
			d.write(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, event security.AuditEvent) {
	if d.sink == nil {
		return
	}
	if err := d.sink.Write(ctx, event); err != nil {
		d.failed.Add(1)
		if d.OnError != nil {
			d.OnError(ctx, err)
		}
	}
}

// Dropped 因队列满而丢弃的事件数
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Failed Sink 写入失败的事件数
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}

// Pending 队列中尚未写出的事件数
func (d *Dispatcher) Pending() int {
	return len(d.events)
}
