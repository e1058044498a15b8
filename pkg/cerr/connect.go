package cerr

import (
	"context"
	"errors"
	"net"

	"connectrpc.com/connect"

	"github.com/kazz187/agentguild/pkg/clog"
)

type convertConnectErrorInterceptor struct{}

// NewConvertConnectErrorInterceptor turns *Error values returned by handlers
// into connect errors and records the underlying cause on the request log.
func NewConvertConnectErrorInterceptor() connect.Interceptor {
	return &convertConnectErrorInterceptor{}
}

func (i *convertConnectErrorInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		resp, err := next(ctx, req)
		if req.Spec().IsClient {
			return resp, FromConnectError(err)
		}
		return resp, ExtractConnectError(ctx, err)
	}
}

func (i *convertConnectErrorInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *convertConnectErrorInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return ExtractConnectError(ctx, next(ctx, conn))
	}
}

func isClosedConnection(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.Err == "operation was canceled"
}

func ExtractConnectError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if isClosedConnection(err) {
		return NewError(Canceled, "connection closed", err).ConnectError()
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		clog.AddError(ctx, err)
		return connectErr
	}

	clog.AddError(ctx, err)
	var cerr *Error
	if errors.As(err, &cerr) {
		if cerr.Stack != "" {
			clog.AddStack(ctx, cerr.Stack)
		}
		return cerr.ConnectError()
	}
	return NewError(Unknown, "unknown error", err).ConnectError()
}

// FromConnectError converts an error received by an RPC client back into an
// *Error so callers can branch on Kind regardless of the transport.
func FromConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return err
	}
	code := NewCodeFromConnectError(err)
	msg := err.Error()
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		msg = connectErr.Message()
	}
	out := &Error{Code: code, Msg: msg, Err: err}
	switch code {
	case InvalidArgument:
		out.Kind = KindValidation
	case Aborted, FailedPrecondition:
		out.Kind = KindConflict
	case Unavailable, DeadlineExceeded:
		out.Kind = KindUnreachable
	case Internal, Unknown:
		out.Kind = KindExecution
	}
	if connectErr == nil {
		// Transport failures surface as plain errors before any status is read.
		out.Code = Unavailable
		out.Kind = KindUnreachable
	}
	return out
}
