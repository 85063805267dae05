package di

import (
	"context"
	"time"

	"notemesh/application/ports"
	"notemesh/domain/canvas"
	"notemesh/pkg/observability"
)

// meteredNotifier counts canvas changes before handing them on
type meteredNotifier struct {
	next      ports.ChangeNotifier
	collector *observability.Collector
}

func (n *meteredNotifier) NotifyCanvasChange(ctx context.Context, userID string, change canvas.ChangeEvent) error {
	n.collector.CanvasMutations.WithLabelValues(string(change.Type)).Inc()
	if n.next == nil {
		return nil
	}
	return n.next.NotifyCanvasChange(ctx, userID, change)
}

// timedProvider records the latency of every model call
type timedProvider struct {
	next      ports.LLMProvider
	collector *observability.Collector
}

func (p *timedProvider) Name() string { return p.next.Name() }

func (p *timedProvider) Complete(ctx context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	start := time.Now()
	out, err := p.next.Complete(ctx, prompt, opts)
	p.collector.ObserveLLM(p.next.Name(), operation(opts), time.Since(start))
	return out, err
}

func operation(opts ports.CompletionOptions) string {
	if opts.Operation == "" {
		return "unknown"
	}
	return opts.Operation
}
