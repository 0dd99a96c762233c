package worker

import (
	"context"
	"sync"

	"github.com/souqbot/server/internal/bot/conversation"
	"github.com/souqbot/server/internal/bot/model"
	"github.com/souqbot/server/internal/bot/negotiation"
	"github.com/souqbot/server/internal/bot/queue"
	logx "github.com/souqbot/server/pkg/logger"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 3

// DefaultFallbackReply is sent when processing or delivery fails and no
// tenant-specific fallback is configured.
const DefaultFallbackReply = "Sorry, something went wrong on our side. Give me a minute and I will get back to you."

// SessionHub is the manager-facing surface workers need: the current config
// of a tenant and an outbound send routed through that tenant's live session.
type SessionHub interface {
	TenantConfig(tenantID string) (model.TenantConfig, bool)
	Reply(ctx context.Context, job model.InboundJob, text string) error
}

// PoolConfig wires a Pool. History is optional; when nil no transcript
// mirroring happens.
type PoolConfig struct {
	Dispatch      *queue.Dispatch
	Store         *conversation.Store
	History       *conversation.HistoryRepo
	Processor     model.Processor
	Hub           SessionHub
	Workers       int
	FallbackReply string
}

// Pool drains the dispatch queue with a fixed set of workers. Each job is
// processed exactly once: failures produce a fallback reply, never a retry,
// so a customer can never receive duplicate answers for one message.
type Pool struct {
	dispatch *queue.Dispatch
	store    *conversation.Store
	history  *conversation.HistoryRepo
	proc     model.Processor
	hub      SessionHub
	workers  int
	fallback string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(cfg PoolConfig) *Pool {
	p := &Pool{
		dispatch: cfg.Dispatch,
		store:    cfg.Store,
		history:  cfg.History,
		proc:     cfg.Processor,
		hub:      cfg.Hub,
		workers:  cfg.Workers,
		fallback: cfg.FallbackReply,
	}
	if p.workers <= 0 {
		p.workers = DefaultWorkers
	}
	if p.fallback == "" {
		p.fallback = DefaultFallbackReply
	}
	return p
}

// Start launches the worker loops. It is not safe to call twice.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	logx.Info().Int("workers", p.workers).Msg("worker pool started")
}

// Stop cancels the workers' wait-for-next-job suspension and blocks until
// every in-progress job has run to completion. Jobs still sitting in the
// queue are discarded.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logx.Info().Msg("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	logx.Debug().Int("worker", workerID).Msg("worker started")

	for {
		job, err := p.dispatch.Dequeue(ctx)
		if err != nil {
			logx.Debug().Int("worker", workerID).Msg("worker exiting")
			return
		}
		// Claimed jobs run to completion even while the pool is stopping.
		p.processJob(context.WithoutCancel(ctx), workerID, job)
	}
}

func (p *Pool) processJob(ctx context.Context, workerID int, job model.InboundJob) {
	logx.Debug().
		Int("worker", workerID).
		Str("job_id", job.ID).
		Str("tenant_id", job.TenantID).
		Str("customer_id", job.CustomerID).
		Msg("processing job")

	cfg, ok := p.hub.TenantConfig(job.TenantID)
	if !ok {
		// Session stopped after this job was enqueued. Processing proceeds
		// with zero config; the send will fail and fall back below.
		logx.Warn().Str("tenant_id", job.TenantID).Str("job_id", job.ID).Msg("tenant session gone, processing anyway")
	}

	// The mirror write and the send happen under the same per-key lock as
	// the history mutation: a second queued message from the same customer
	// cannot overtake the first one's reply or its transcript entry.
	_ = p.store.With(job.TenantID, job.CustomerID, func(c *conversation.Conversation) error {
		req := model.ProcessRequest{
			Tenant:           cfg,
			History:          append([]model.ChatMessage(nil), c.History...),
			Message:          job.Message,
			CustomerName:     job.CustomerName,
			Negotiation:      cloneNegotiation(c),
			CurrentProductID: c.CurrentProductID,
		}

		out, err := p.proc.Process(ctx, req)
		if err != nil {
			logx.Error().Err(err).
				Int("worker", workerID).
				Str("job_id", job.ID).
				Msg("processing failed, using fallback reply")
			out = p.fallbackResult(req)
		}

		c.History = append(c.History,
			model.CustomerMessage(job.Message),
			model.AgentMessage(out.ReplyText),
		)
		c.Negotiation = out.Negotiation
		c.CurrentProductID = out.CurrentProductID

		if p.history != nil {
			if err := p.history.Append(ctx, job.TenantID, job.CustomerID,
				model.CustomerMessage(job.Message),
				model.AgentMessage(out.ReplyText),
			); err != nil {
				logx.Warn().Err(err).Str("job_id", job.ID).Msg("transcript mirror write failed")
			}
		}

		if err := p.hub.Reply(ctx, job, out.ReplyText); err != nil {
			logx.Error().Err(err).
				Int("worker", workerID).
				Str("job_id", job.ID).
				Str("tenant_id", job.TenantID).
				Msg("reply send failed")
			if out.ReplyText != p.fallback {
				// Best effort only; a failed fallback send is swallowed.
				if ferr := p.hub.Reply(ctx, job, p.fallback); ferr != nil {
					logx.Debug().Err(ferr).Str("job_id", job.ID).Msg("fallback send failed")
				}
			}
		}
		return nil
	})
}

// fallbackResult keeps the conversation metadata intact so a transient
// processing failure does not reset an ongoing negotiation.
func (p *Pool) fallbackResult(req model.ProcessRequest) model.ProcessResult {
	return model.ProcessResult{
		ReplyText:        p.fallback,
		Confidence:       0.1,
		Flags:            map[string]string{"fallback": "true"},
		Negotiation:      req.Negotiation,
		CurrentProductID: req.CurrentProductID,
	}
}

func cloneNegotiation(c *conversation.Conversation) *negotiation.State {
	if c.Negotiation == nil {
		return nil
	}
	st := *c.Negotiation
	return &st
}
