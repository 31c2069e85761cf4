package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jllopis/steward/pkg/core"
	"github.com/jllopis/steward/pkg/governance"
)

// ErrPoolClosed is returned when a closed pool is used.
var ErrPoolClosed = errors.New("mcp pool is closed")

// Pool owns the clients of every configured MCP server.
type Pool struct {
	logger *slog.Logger
	dial   func(ctx context.Context, srv StdioServer) (*Client, error)
	policy governance.PolicyEngine

	mu      sync.Mutex
	clients []*Client
	closed  atomic.Bool
}

// NewPool returns an empty pool. Client options apply to every server.
func NewPool(logger *slog.Logger, opts ...ClientOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]ClientOption{WithClientLogger(logger)}, opts...)
	return &Pool{
		logger: logger,
		dial: func(ctx context.Context, srv StdioServer) (*Client, error) {
			return Dial(ctx, srv, opts...)
		},
	}
}

// Connect dials every server concurrently. Servers keep their configured
// order. On any failure the already started servers are closed.
func (p *Pool) Connect(ctx context.Context, servers []StdioServer) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	clients := make([]*Client, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		g.Go(func() error {
			c, err := p.dial(gctx, srv)
			if err != nil {
				return err
			}
			clients[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range clients {
			if c != nil {
				_ = c.Close()
			}
		}
		return err
	}

	p.mu.Lock()
	p.clients = append(p.clients, clients...)
	p.mu.Unlock()
	for _, c := range clients {
		p.logger.InfoContext(ctx, "mcp.server.connected", slog.String("server", c.Name()))
	}
	return nil
}

// UsePolicy hides remote tools the policy denies as mcp actions.
func (p *Pool) UsePolicy(pe governance.PolicyEngine) {
	p.policy = pe
}

// Add registers an already connected client.
func (p *Pool) Add(c *Client) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients = append(p.clients, c)
	return nil
}

// Operations gathers the tools of every server. When two servers offer the
// same tool name the first server wins.
func (p *Pool) Operations(ctx context.Context) ([]core.Operation, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	p.mu.Lock()
	clients := append([]*Client(nil), p.clients...)
	p.mu.Unlock()

	seen := make(map[string]string)
	var ops []core.Operation
	for _, c := range clients {
		serverOps, err := c.Operations(ctx)
		if err != nil {
			return nil, err
		}
		for _, op := range serverOps {
			name := op.Descriptor().Name
			if owner, dup := seen[name]; dup {
				p.logger.WarnContext(ctx, "mcp.tool.shadowed",
					slog.String("tool", name),
					slog.String("server", c.Name()),
					slog.String("kept", owner),
				)
				continue
			}
			seen[name] = c.Name()
			if p.policy != nil {
				d := p.policy.Evaluate(ctx, governance.Action{
					Type:     governance.ActionMCP,
					Name:     name,
					Metadata: map[string]string{"server": c.Name()},
				})
				if d.IsDenied() {
					p.logger.InfoContext(ctx, "mcp.tool.denied",
						slog.String("tool", name),
						slog.String("server", c.Name()),
						slog.String("rule", d.RuleID),
					)
					continue
				}
			}
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// Len returns the number of connected servers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close shuts down every client.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPoolClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, c := range p.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", c.Name(), err))
		}
	}
	p.clients = nil
	return errors.Join(errs...)
}
