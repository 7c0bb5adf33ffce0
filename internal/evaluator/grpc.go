package evaluator

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// CompleteMethod is the full gRPC method name served by a remote evaluator.
// Request and response are google.protobuf.Struct values.
const CompleteMethod = "/diagnosis.v1.Evaluator/Complete"

// #region client-struct
// GRPC reaches an evaluator sidecar over gRPC.
type GRPC struct {
	conn grpc.ClientConnInterface
	// closer is nil when the connection was injected.
	closer interface{ Close() error }
}
// #endregion client-struct

// #region constructor
// NewGRPC connects to the evaluator service at addr.
func NewGRPC(addr string) (*GRPC, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPC{conn: conn, closer: conn}, nil
}

// NewGRPCWithConn uses an existing connection, which the caller keeps owning.
func NewGRPCWithConn(conn grpc.ClientConnInterface) *GRPC {
	return &GRPC{conn: conn}
}
// #endregion constructor

// Close shuts down a connection opened by NewGRPC.
func (c *GRPC) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// #region invoke
// Invoke sends the prompt as a Struct and returns its "text" field.
func (c *GRPC) Invoke(ctx context.Context, p Prompt) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"system":        p.System,
		"user":          p.User,
		"respondent_id": p.RespondentID,
		"stage":         p.Stage,
		"question":      p.Question,
	})
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	ctx = metadata.AppendToOutgoingContext(ctx, "x-call-key", p.Key())
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, CompleteMethod, req, resp); err != nil {
		return "", fmt.Errorf("complete rpc: %w", err)
	}

	v, ok := resp.GetFields()["text"]
	if !ok {
		return "", fmt.Errorf("complete rpc: response has no text field")
	}
	return v.GetStringValue(), nil
}
// #endregion invoke
