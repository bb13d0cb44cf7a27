package ledger

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/compose-network/ledger-harness/x/endpoint"
)

// Client is what the harness consumes from a ledger node.
type Client interface {
	Submit(ctx context.Context, tx *Transaction) (*SubmitAck, error)
	Status(ctx context.Context, hash Hash) (*TxStatus, error)
	ListBlocks(ctx context.Context, fromHeight uint64, limit uint32) (*ListBlocksResponse, error)
	EngineReceipt(ctx context.Context, hash Hash) (*EngineReceipt, error)
	EngineCall(ctx context.Context, req *EngineCallRequest) (*EngineCallResponse, error)
	ListPeers(ctx context.Context) ([]Peer, error)
	AccountAssets(ctx context.Context, accountID string) ([]AccountAsset, error)
}

// GRPCClient talks to a node over gRPC with the JSON codec.
type GRPCClient struct {
	target string
	conn   *grpc.ClientConn
}

// NewGRPCClient creates a lazily connecting client for target (host:port).
func NewGRPCClient(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create grpc client for %s: %w", target, err)
	}
	return &GRPCClient{target: target, conn: conn}, nil
}

func (c *GRPCClient) Target() string { return c.target }

func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) Submit(ctx context.Context, tx *Transaction) (*SubmitAck, error) {
	out := new(SubmitAck)
	if err := c.conn.Invoke(ctx, MethodSubmit, tx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) Status(ctx context.Context, hash Hash) (*TxStatus, error) {
	out := new(TxStatus)
	if err := c.conn.Invoke(ctx, MethodStatus, &TxStatusRequest{TxHash: hash}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) ListBlocks(ctx context.Context, fromHeight uint64, limit uint32) (*ListBlocksResponse, error) {
	out := new(ListBlocksResponse)
	req := &ListBlocksRequest{FromHeight: fromHeight, Limit: limit}
	if err := c.conn.Invoke(ctx, MethodListBlocks, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) EngineReceipt(ctx context.Context, hash Hash) (*EngineReceipt, error) {
	out := new(EngineReceipt)
	if err := c.conn.Invoke(ctx, MethodEngineReceipt, &EngineReceiptRequest{TxHash: hash}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) EngineCall(ctx context.Context, req *EngineCallRequest) (*EngineCallResponse, error) {
	out := new(EngineCallResponse)
	if err := c.conn.Invoke(ctx, MethodEngineCall, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) ListPeers(ctx context.Context) ([]Peer, error) {
	out := new(ListPeersResponse)
	if err := c.conn.Invoke(ctx, MethodListPeers, &ListPeersRequest{}, out); err != nil {
		return nil, err
	}
	return out.Peers, nil
}

func (c *GRPCClient) AccountAssets(ctx context.Context, accountID string) ([]AccountAsset, error) {
	out := new(AccountAssetsResponse)
	if err := c.conn.Invoke(ctx, MethodAccountAssets, &AccountAssetsRequest{AccountID: accountID}, out); err != nil {
		return nil, err
	}
	return out.Assets, nil
}

// Dialer hands out clients per endpoint.
type Dialer interface {
	Dial(ep endpoint.Endpoint) (Client, error)
}

// Pool caches one gRPC client per endpoint address.
type Pool struct {
	opts []grpc.DialOption

	mu      sync.Mutex
	clients map[string]*GRPCClient
}

func NewPool(opts ...grpc.DialOption) *Pool {
	return &Pool{opts: opts, clients: make(map[string]*GRPCClient)}
}

func (p *Pool) Dial(ep endpoint.Endpoint) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[ep.Address()]; ok {
		return c, nil
	}
	c, err := NewGRPCClient(ep.Address(), p.opts...)
	if err != nil {
		return nil, err
	}
	p.clients[ep.Address()] = c
	return c, nil
}

// Close closes every cached connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for addr, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, addr)
	}
	return firstErr
}

var (
	_ Client = (*GRPCClient)(nil)
	_ Dialer = (*Pool)(nil)
)
