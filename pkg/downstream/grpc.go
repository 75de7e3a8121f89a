package downstream

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Metadata keys carrying the identity between services.
var (
	MetadataAuthUser      = strings.ToLower(auth.HeaderAuthUser)
	MetadataAuthRoles     = strings.ToLower(auth.HeaderAuthRoles)
	MetadataCallerService = strings.ToLower(auth.HeaderCallerService)
)

// UnaryServerInterceptor adopts the identity from incoming metadata. Calls
// without identity metadata proceed without an identity.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(identityFromMetadata(ctx), req)
	}
}

// StreamServerInterceptor is the streaming form of UnaryServerInterceptor.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: identityFromMetadata(ss.Context())})
	}
}

// RoleRules maps full gRPC method names ("/pkg.Service/Method") to the
// roles allowed to call them. Methods not listed are open.
type RoleRules map[string][]auth.Role

// UnaryRoleInterceptor enforces rules. It must run after
// UnaryServerInterceptor in the chain.
func UnaryRoleInterceptor(rules RoleRules) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if roles, ok := rules[info.FullMethod]; ok {
			if _, err := auth.RequireRole(ctx, roles...); err != nil {
				return nil, statusFromError(err)
			}
		}
		return handler(ctx, req)
	}
}

// UnaryClientInterceptor forwards the identity on the call context as
// outgoing metadata.
func UnaryClientInterceptor(serviceName string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(identityToMetadata(ctx, serviceName), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming form of UnaryClientInterceptor.
func StreamClientInterceptor(serviceName string) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(identityToMetadata(ctx, serviceName), desc, cc, method, opts...)
	}
}

func identityFromMetadata(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	first := func(key string) string {
		if vals := md.Get(key); len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	if id, ok := auth.IdentityFromHeaders(first); ok {
		ctx = auth.ContextWithIdentity(ctx, id)
	}
	if caller := first(MetadataCallerService); caller != "" {
		ctx = auth.ContextWithCallerService(ctx, caller)
	}
	return ctx
}

// identityToMetadata overwrites rather than appends, so a stale identity
// already on the outgoing context cannot ride along.
func identityToMetadata(ctx context.Context, serviceName string) context.Context {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	md.Delete(MetadataAuthRoles)
	for k, v := range auth.IdentityHeaders(id) {
		md.Set(k, v)
	}
	if serviceName != "" {
		md.Set(MetadataCallerService, serviceName)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func statusFromError(err error) error {
	switch sserr.GetCode(err) {
	case sserr.CodeNoIdentity:
		return status.Error(codes.Unauthenticated, "authentication required")
	case sserr.CodeUnauthorized:
		return status.Error(codes.PermissionDenied, "forbidden")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// wrappedServerStream overrides Context so handlers see the adopted
// identity.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
