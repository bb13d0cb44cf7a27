package ledger

import (
	"context"

	"google.golang.org/grpc"
)

const (
	CommandServiceName = "ledger.v1.CommandService"
	QueryServiceName   = "ledger.v1.QueryService"
)

// Full method names.
const (
	MethodSubmit        = "/" + CommandServiceName + "/Submit"
	MethodStatus        = "/" + CommandServiceName + "/Status"
	MethodListBlocks    = "/" + QueryServiceName + "/ListBlocks"
	MethodEngineReceipt = "/" + QueryServiceName + "/EngineReceipt"
	MethodEngineCall    = "/" + QueryServiceName + "/EngineCall"
	MethodListPeers     = "/" + QueryServiceName + "/ListPeers"
	MethodAccountAssets = "/" + QueryServiceName + "/AccountAssets"
)

// CommandServer is the transaction intake side of a ledger node.
type CommandServer interface {
	Submit(context.Context, *Transaction) (*SubmitAck, error)
	Status(context.Context, *TxStatusRequest) (*TxStatus, error)
}

// QueryServer is the read side of a ledger node.
type QueryServer interface {
	ListBlocks(context.Context, *ListBlocksRequest) (*ListBlocksResponse, error)
	EngineReceipt(context.Context, *EngineReceiptRequest) (*EngineReceipt, error)
	EngineCall(context.Context, *EngineCallRequest) (*EngineCallResponse, error)
	ListPeers(context.Context, *ListPeersRequest) (*ListPeersResponse, error)
	AccountAssets(context.Context, *AccountAssetsRequest) (*AccountAssetsResponse, error)
}

func RegisterCommandServer(s grpc.ServiceRegistrar, srv CommandServer) {
	s.RegisterService(&commandServiceDesc, srv)
}

func RegisterQueryServer(s grpc.ServiceRegistrar, srv QueryServer) {
	s.RegisterService(&queryServiceDesc, srv)
}

var commandServiceDesc = grpc.ServiceDesc{
	ServiceName: CommandServiceName,
	HandlerType: (*CommandServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSubmit, "Submit", func(srv any, ctx context.Context, in *Transaction) (any, error) {
			return srv.(CommandServer).Submit(ctx, in)
		}),
		unary(MethodStatus, "Status", func(srv any, ctx context.Context, in *TxStatusRequest) (any, error) {
			return srv.(CommandServer).Status(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/command.json",
}

var queryServiceDesc = grpc.ServiceDesc{
	ServiceName: QueryServiceName,
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodListBlocks, "ListBlocks", func(srv any, ctx context.Context, in *ListBlocksRequest) (any, error) {
			return srv.(QueryServer).ListBlocks(ctx, in)
		}),
		unary(MethodEngineReceipt, "EngineReceipt", func(srv any, ctx context.Context, in *EngineReceiptRequest) (any, error) {
			return srv.(QueryServer).EngineReceipt(ctx, in)
		}),
		unary(MethodEngineCall, "EngineCall", func(srv any, ctx context.Context, in *EngineCallRequest) (any, error) {
			return srv.(QueryServer).EngineCall(ctx, in)
		}),
		unary(MethodListPeers, "ListPeers", func(srv any, ctx context.Context, in *ListPeersRequest) (any, error) {
			return srv.(QueryServer).ListPeers(ctx, in)
		}),
		unary(MethodAccountAssets, "AccountAssets", func(srv any, ctx context.Context, in *AccountAssetsRequest) (any, error) {
			return srv.(QueryServer).AccountAssets(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/query.json",
}

// unary builds a MethodDesc the way protoc-gen-go-grpc would for a unary call.
func unary[Req any](fullMethod, name string, call func(srv any, ctx context.Context, in *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
