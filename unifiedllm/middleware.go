package unifiedllm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryMiddleware retries Complete calls that fail with a retryable error.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}

// RetryStreamMiddleware retries opening a stream. Errors delivered on an
// already open stream are not retried.
func RetryStreamMiddleware(policy RetryPolicy) StreamMiddleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error) {
		return Retry(ctx, policy, func(ctx context.Context) (<-chan StreamEvent, error) {
			return next(ctx, req)
		})
	}
}

// TimeoutMiddleware bounds each downstream call by d. A deadline hit is
// reported as a *RequestTimeoutError.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		if d <= 0 {
			return next(ctx, req)
		}
		cctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		resp, err := next(cctx, req)
		if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &RequestTimeoutError{SDKError: SDKError{Message: "completion timed out after " + d.String(), Cause: err}}
		}
		return resp, err
	}
}

// TimeoutStreamMiddleware bounds a whole stream by d. The derived context is
// released once the downstream channel closes.
func TimeoutStreamMiddleware(d time.Duration) StreamMiddleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error) {
		if d <= 0 {
			return next(ctx, req)
		}
		cctx, cancel := context.WithTimeout(ctx, d)
		in, err := next(cctx, req)
		if err != nil {
			cancel()
			if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, &RequestTimeoutError{SDKError: SDKError{Message: "stream open timed out after " + d.String(), Cause: err}}
			}
			return nil, err
		}

		out := make(chan StreamEvent, cap(in))
		go func() {
			defer cancel()
			defer close(out)
			for ev := range in {
				if ev.Type == StreamError && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
					ev.Error = &RequestTimeoutError{SDKError: SDKError{Message: "stream timed out after " + d.String(), Cause: ev.Error}}
				}
				out <- ev
			}
		}()
		return out, nil
	}
}

// RateLimitMiddleware waits on limiter before every downstream call. The
// limiter is typically shared by every unit of a cohort.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, &AbortError{SDKError: SDKError{Message: "rate limiter wait", Cause: err}}
			}
		}
		return next(ctx, req)
	}
}

// RateLimitStreamMiddleware is the streaming counterpart of RateLimitMiddleware.
func RateLimitStreamMiddleware(limiter *rate.Limiter) StreamMiddleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, &AbortError{SDKError: SDKError{Message: "rate limiter wait", Cause: err}}
			}
		}
		return next(ctx, req)
	}
}

// LoggingMiddleware logs each completion at debug level and failures at warn.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Int("messages", len(req.Messages)),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("completion failed", append(fields, zap.String("kind", ErrorKind(err)), zap.Error(err))...)
			return nil, err
		}
		logger.Debug("completion",
			append(fields,
				zap.String("finish_reason", resp.FinishReason.Reason),
				zap.Int("tool_calls", len(resp.Message.ToolCalls())),
				zap.Int("total_tokens", resp.Usage.TotalTokens))...)
		return resp, nil
	}
}
