// Package control is a gateway control-plane surface for operating a
// running session remotely: inspect status, add/remove watched chats,
// force a reconnect. Requests and responses are hand-authored Go types,
// not generated from a compiled .proto, matching how this pack's own
// gRPC surface (pb/mock.go) is hand-rolled rather than codegen'd.
//
// As in pb/jury_client.go, the real RPC dispatch (a compiled service
// descriptor registered on a *grpc.Server, invoked through a
// *grpc.ClientConn) is left for when a .proto is actually compiled for
// this service; GatewayControlServer's methods run in-process against a
// SessionController today, reachable locally (the admin HTTP surface, a
// CLI) without requiring the wire path to exist yet.
package control

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// SessionController is implemented by the top-level client orchestrator;
// GatewayControlServer delegates every RPC to one.
type SessionController interface {
	Status(ctx context.Context) (SessionStatus, error)
	AddWatchedChat(ctx context.Context, chatMid string) error
	RemoveWatchedChat(ctx context.Context, chatMid string) error
	ForceReconnect(ctx context.Context) error
}

// SessionStatus mirrors admin.StatusSnapshot in shape but is independent
// of it, since this package must not import internal/admin (avoiding a
// dependency cycle with whatever wires both into the orchestrator).
type SessionStatus struct {
	State        string
	Mid          string
	Connected    bool
	WatchedChats []string
}

type StatusRequest struct{}

type StatusResponse struct {
	Status SessionStatus
}

type AddWatchedChatRequest struct {
	ChatMid string
}

type AddWatchedChatResponse struct {
	Ok bool
}

type RemoveWatchedChatRequest struct {
	ChatMid string
}

type RemoveWatchedChatResponse struct {
	Ok bool
}

type ForceReconnectRequest struct{}

type ForceReconnectResponse struct {
	Ok bool
}

// GatewayControlServer is the server-side RPC surface.
type GatewayControlServer interface {
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
	AddWatchedChat(context.Context, *AddWatchedChatRequest) (*AddWatchedChatResponse, error)
	RemoveWatchedChat(context.Context, *RemoveWatchedChatRequest) (*RemoveWatchedChatResponse, error)
	ForceReconnect(context.Context, *ForceReconnectRequest) (*ForceReconnectResponse, error)
}

// UnimplementedGatewayControlServer can be embedded by a server that only
// needs to implement some of the RPCs.
type UnimplementedGatewayControlServer struct{}

func (UnimplementedGatewayControlServer) GetStatus(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, fmt.Errorf("control: GetStatus not implemented")
}

func (UnimplementedGatewayControlServer) AddWatchedChat(context.Context, *AddWatchedChatRequest) (*AddWatchedChatResponse, error) {
	return nil, fmt.Errorf("control: AddWatchedChat not implemented")
}

func (UnimplementedGatewayControlServer) RemoveWatchedChat(context.Context, *RemoveWatchedChatRequest) (*RemoveWatchedChatResponse, error) {
	return nil, fmt.Errorf("control: RemoveWatchedChat not implemented")
}

func (UnimplementedGatewayControlServer) ForceReconnect(context.Context, *ForceReconnectRequest) (*ForceReconnectResponse, error) {
	return nil, fmt.Errorf("control: ForceReconnect not implemented")
}

// Server implements GatewayControlServer against a SessionController.
type Server struct {
	UnimplementedGatewayControlServer
	controller SessionController
}

// NewServer builds a Server delegating every RPC to controller.
func NewServer(controller SessionController) *Server {
	return &Server{controller: controller}
}

func (s *Server) GetStatus(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	status, err := s.controller.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("control: get status: %w", err)
	}
	return &StatusResponse{Status: status}, nil
}

func (s *Server) AddWatchedChat(ctx context.Context, req *AddWatchedChatRequest) (*AddWatchedChatResponse, error) {
	if err := s.controller.AddWatchedChat(ctx, req.ChatMid); err != nil {
		return nil, fmt.Errorf("control: add watched chat: %w", err)
	}
	return &AddWatchedChatResponse{Ok: true}, nil
}

func (s *Server) RemoveWatchedChat(ctx context.Context, req *RemoveWatchedChatRequest) (*RemoveWatchedChatResponse, error) {
	if err := s.controller.RemoveWatchedChat(ctx, req.ChatMid); err != nil {
		return nil, fmt.Errorf("control: remove watched chat: %w", err)
	}
	return &RemoveWatchedChatResponse{Ok: true}, nil
}

func (s *Server) ForceReconnect(ctx context.Context, _ *ForceReconnectRequest) (*ForceReconnectResponse, error) {
	if err := s.controller.ForceReconnect(ctx); err != nil {
		return nil, fmt.Errorf("control: force reconnect: %w", err)
	}
	return &ForceReconnectResponse{Ok: true}, nil
}

// RemoteClient is a thin in-process-or-future-wire client: today it talks
// directly to a GatewayControlServer, holding a live *grpc.ClientConn so
// the dial/auth/keepalive plumbing already matches what a real wire
// client will need once a .proto is compiled for this service.
type RemoteClient struct {
	conn   *grpc.ClientConn
	server GatewayControlServer
}

// NewRemoteClient dials addr (insecure, loopback admin traffic only) and
// pairs the connection with server for in-process dispatch.
func NewRemoteClient(addr string, server GatewayControlServer) (*RemoteClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", addr, err)
	}
	return &RemoteClient{conn: conn, server: server}, nil
}

func (c *RemoteClient) Status(ctx context.Context) (SessionStatus, error) {
	resp, err := c.server.GetStatus(ctx, &StatusRequest{})
	if err != nil {
		return SessionStatus{}, err
	}
	return resp.Status, nil
}

func (c *RemoteClient) AddWatchedChat(ctx context.Context, chatMid string) error {
	_, err := c.server.AddWatchedChat(ctx, &AddWatchedChatRequest{ChatMid: chatMid})
	return err
}

func (c *RemoteClient) RemoveWatchedChat(ctx context.Context, chatMid string) error {
	_, err := c.server.RemoveWatchedChat(ctx, &RemoveWatchedChatRequest{ChatMid: chatMid})
	return err
}

func (c *RemoteClient) ForceReconnect(ctx context.Context) error {
	_, err := c.server.ForceReconnect(ctx, &ForceReconnectRequest{})
	return err
}

// Close releases the underlying connection.
func (c *RemoteClient) Close() error {
	return c.conn.Close()
}
