package devnode

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/compose-network/ledger-harness/x/ledger"
)

// Server exposes a Ledger over the ledger.v1 gRPC services.
type Server struct {
	name   string
	ledger *Ledger
	log    zerolog.Logger
}

var (
	_ ledger.CommandServer = (*Server)(nil)
	_ ledger.QueryServer   = (*Server)(nil)
)

// NewServer wraps l for node name.
func NewServer(name string, l *Ledger, log zerolog.Logger) *Server {
	return &Server{name: name, ledger: l, log: log.With().Str("node", name).Logger()}
}

func (s *Server) Submit(_ context.Context, t *ledger.Transaction) (*ledger.SubmitAck, error) {
	if t == nil {
		return nil, status.Error(codes.InvalidArgument, "transaction is required")
	}
	ack := s.ledger.Submit(*t)
	s.log.Debug().Str("tx", ack.TxHash.Short()).Stringer("status", ack.Status).Msg("submit")
	return &ack, nil
}

func (s *Server) Status(_ context.Context, req *ledger.TxStatusRequest) (*ledger.TxStatus, error) {
	st := s.ledger.Status(req.TxHash)
	return &st, nil
}

func (s *Server) ListBlocks(_ context.Context, req *ledger.ListBlocksRequest) (*ledger.ListBlocksResponse, error) {
	blocks, height := s.ledger.Blocks(req.FromHeight, req.Limit)
	return &ledger.ListBlocksResponse{Blocks: blocks, Height: height}, nil
}

func (s *Server) EngineReceipt(_ context.Context, req *ledger.EngineReceiptRequest) (*ledger.EngineReceipt, error) {
	r, err := s.ledger.Receipt(req.TxHash)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &r, nil
}

func (s *Server) EngineCall(_ context.Context, req *ledger.EngineCallRequest) (*ledger.EngineCallResponse, error) {
	out, err := s.ledger.EngineCall(req.Caller, req.Callee, req.Input)
	switch {
	case errors.Is(err, ErrContractMissing):
		return nil, status.Error(codes.NotFound, err.Error())
	case err != nil:
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return &ledger.EngineCallResponse{Output: out}, nil
}

func (s *Server) ListPeers(context.Context, *ledger.ListPeersRequest) (*ledger.ListPeersResponse, error) {
	return &ledger.ListPeersResponse{Peers: s.ledger.Peers()}, nil
}

func (s *Server) AccountAssets(_ context.Context, req *ledger.AccountAssetsRequest) (*ledger.AccountAssetsResponse, error) {
	assets, err := s.ledger.AccountAssets(req.AccountID)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &ledger.AccountAssetsResponse{AccountID: req.AccountID, Assets: assets}, nil
}

// Listener is a running gRPC endpoint of the devnet.
type Listener struct {
	Name string
	lis  net.Listener
	grpc *grpc.Server
	done chan struct{}
}

// Addr is the bound address, useful when listening on port 0.
func (l *Listener) Addr() net.Addr { return l.lis.Addr() }

// ServeListener starts a gRPC server for srv on an already bound listener.
func ServeListener(lis net.Listener, srv *Server, m *Metrics, requestTimeout time.Duration) *Listener {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		timeoutInterceptor(requestTimeout),
		m.UnaryServerInterceptor(),
	))
	ledger.RegisterCommandServer(gs, srv)
	ledger.RegisterQueryServer(gs, srv)

	out := &Listener{Name: srv.name, lis: lis, grpc: gs, done: make(chan struct{})}
	go func() {
		defer close(out.done)
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			srv.log.Error().Err(err).Msg("grpc server stopped")
		}
	}()
	srv.log.Info().Str("addr", lis.Addr().String()).Msg("devnode listening")
	return out
}

// Stop drains in-flight calls and stops serving.
func (l *Listener) Stop() {
	l.grpc.GracefulStop()
	<-l.done
}

func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}
