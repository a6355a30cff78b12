package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ChatNotifier delivers a rendered log line to the operator chat.
type ChatNotifier interface {
	NotifyOperator(ctx context.Context, text string) error
}

const (
	chatQueueSize = 128
	chatMaxLen    = 3500
	chatTimeout   = 10 * time.Second
)

type chatSink struct {
	mu       sync.Mutex
	notifier ChatNotifier
	limiter  *rate.Limiter
	minLevel zerolog.Level

	queue  chan string
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newChatSink(n ChatNotifier) *chatSink {
	return &chatSink{
		notifier: n,
		queue:    make(chan string, chatQueueSize),
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
	}
}

func (c *chatSink) setNotifier(n ChatNotifier) {
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

func (c *chatSink) configure(cfg ChatConfig) {
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	c.mu.Lock()
	c.minLevel = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	c.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.run(ctx)
		}()
	})
}

func (c *chatSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-c.queue:
			c.mu.Lock()
			n := c.notifier
			c.mu.Unlock()
			if n == nil {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, chatTimeout)
			_ = n.NotifyOperator(sendCtx, line)
			cancel()
		}
	}
}

func (c *chatSink) close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

// WriteLevel never blocks; lines over the rate limit or a full queue are dropped.
func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	n, lim, min := c.notifier, c.limiter, c.minLevel
	c.mu.Unlock()
	if n == nil || level < min || !lim.Allow() {
		return len(p), nil
	}
	msg := renderChatLine(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case c.queue <- msg:
	default:
	}
	return len(p), nil
}

// renderChatLine turns a zerolog JSON line into "[LEVEL] message" plus
// sorted key=value lines.
func renderChatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(p), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), chatMaxLen)
	}
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 600))
	}
	return truncate(b.String(), chatMaxLen)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
