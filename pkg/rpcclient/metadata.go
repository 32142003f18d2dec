package rpcclient

import (
	"context"

	"github.com/raftchat/raftchatd/pkg/rpcproto"
	"google.golang.org/grpc/metadata"
)

// withCaller attaches the trusted caller-username as outgoing gRPC metadata
// so a forwarded call carries the same identity the original client
// presented (spec.md §4.4: no session tokens, a trusted per-call identity).
func withCaller(ctx context.Context, callerUsername string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, rpcproto.CallerMetadataKey, callerUsername)
}
