package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hupe1980/fnstream/core"
)

// RateLimitedModel paces engine calls through a token-bucket limiter. A call
// waiting for capacity gives up as soon as its token fires or its context is
// done.
type RateLimitedModel struct {
	next    Model
	limiter *rate.Limiter
}

// RateLimited wraps m so every StreamCall and Call first waits on l.
func RateLimited(m Model, l *rate.Limiter) *RateLimitedModel {
	return &RateLimitedModel{next: m, limiter: l}
}

// Prepare implements Model. Validation is not rate limited.
func (r *RateLimitedModel) Prepare(req Request) error { return r.next.Prepare(req) }

// StreamCall implements Model.
func (r *RateLimitedModel) StreamCall(tok *core.Token, dest Sink, tag string, req Request) core.Result {
	if err := r.limiter.Wait(tok.Context()); err != nil {
		return core.Failure(r.waitErr(tok.Context(), err))
	}
	return r.next.StreamCall(tok, dest, tag, req)
}

// Call implements Model.
func (r *RateLimitedModel) Call(ctx context.Context, req Request) core.Result {
	if err := r.limiter.Wait(ctx); err != nil {
		return core.Failure(r.waitErr(ctx, err))
	}
	return r.next.Call(ctx, req)
}

// Info implements Model.
func (r *RateLimitedModel) Info() Info { return r.next.Info() }

func (r *RateLimitedModel) waitErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return fmt.Errorf("model: rate limit: %w", err)
}
