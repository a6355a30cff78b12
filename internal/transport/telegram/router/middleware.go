package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"schedbot/internal/schedule"
	kit "schedbot/internal/transport"
	"schedbot/pkg/logx"
)

// Request is one inbound chat message on its way through the handler chain.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	OwnerID string
	Text    string
	ReqID   string
	Logger  logx.Logger

	// Route and Outcome are set by Handle and read back by logOutcome.
	Route   string
	Outcome string
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs outermost.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// withDeadline bounds parsing, storage and the reply of a single message.
func withDeadline(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// recoverPanics turns a panic inside a handler into an error so the lane
// worker keeps serving the owner's next message.
func recoverPanics() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("handler panic",
						logx.String("route", req.Route),
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// logOutcome writes one line per message. Created jobs and slow requests
// are INFO, everything else DEBUG.
func logOutcome(slow time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			fields := []logx.Field{logx.String("route", req.Route), logx.Duration("took", took)}
			if req.Outcome != "" {
				fields = append(fields, logx.String("outcome", req.Outcome))
			}
			switch {
			case err != nil:
				req.Logger.Warn("message failed", append(fields, logx.Err(err))...)
			case req.Outcome == string(schedule.OutcomeCreated) || took >= slow:
				req.Logger.Info("message handled", fields...)
			default:
				req.Logger.Debug("message handled", fields...)
			}
			return err
		}
	}
}
