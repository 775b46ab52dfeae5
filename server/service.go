package server

import (
	"context"

	"google.golang.org/grpc"
)

// DirectoryServer is the server-side handler set for the silodir.Directory
// gRPC service: everything a peer silo can ask this silo to do.
type DirectoryServer interface {
	AcceptSplitPartition(ctx context.Context, req *AcceptSplitPartitionRequest) (*Empty, error)
	AcceptHandoffPartition(ctx context.Context, req *AcceptHandoffPartitionRequest) (*Empty, error)
	RemoveHandoffPartition(ctx context.Context, req *RemoveHandoffPartitionRequest) (*Empty, error)
	DeleteActivations(ctx context.Context, req *DeleteActivationsRequest) (*Empty, error)
	AcceptExistingRegistrations(ctx context.Context, req *AcceptExistingRegistrationsRequest) (*Empty, error)
	Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error)
	Gossip(ctx context.Context, req *GossipRequest) (*GossipResponse, error)
	GetKeyHashes(ctx context.Context, req *GetKeyHashesRequest) (*GetKeyHashesResponse, error)
	SyncKeys(ctx context.Context, req *SyncKeysRequest) (*SyncKeysResponse, error)
}

// unaryHandler adapts one DirectoryServer method into the fixed
// grpc.MethodDesc.Handler shape that protoc-gen-go-grpc would normally
// generate per RPC. Written once as a generic instead of once per
// method by hand.
func unaryHandler[Req, Resp any](call func(DirectoryServer, context.Context, *Req) (*Resp, error), fullMethod string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(DirectoryServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc registers the silodir.Directory service. Hand-written in
// place of a .proto-generated descriptor (see codec.go); each entry
// below is exactly the {method name, wire types} a .proto file would
// declare.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "silodir.Directory",
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AcceptSplitPartition",
			Handler:    unaryHandler(DirectoryServer.AcceptSplitPartition, "/silodir.Directory/AcceptSplitPartition"),
		},
		{
			MethodName: "AcceptHandoffPartition",
			Handler:    unaryHandler(DirectoryServer.AcceptHandoffPartition, "/silodir.Directory/AcceptHandoffPartition"),
		},
		{
			MethodName: "RemoveHandoffPartition",
			Handler:    unaryHandler(DirectoryServer.RemoveHandoffPartition, "/silodir.Directory/RemoveHandoffPartition"),
		},
		{
			MethodName: "DeleteActivations",
			Handler:    unaryHandler(DirectoryServer.DeleteActivations, "/silodir.Directory/DeleteActivations"),
		},
		{
			MethodName: "AcceptExistingRegistrations",
			Handler:    unaryHandler(DirectoryServer.AcceptExistingRegistrations, "/silodir.Directory/AcceptExistingRegistrations"),
		},
		{
			MethodName: "Register",
			Handler:    unaryHandler(DirectoryServer.Register, "/silodir.Directory/Register"),
		},
		{
			MethodName: "Gossip",
			Handler:    unaryHandler(DirectoryServer.Gossip, "/silodir.Directory/Gossip"),
		},
		{
			MethodName: "GetKeyHashes",
			Handler:    unaryHandler(DirectoryServer.GetKeyHashes, "/silodir.Directory/GetKeyHashes"),
		},
		{
			MethodName: "SyncKeys",
			Handler:    unaryHandler(DirectoryServer.SyncKeys, "/silodir.Directory/SyncKeys"),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "silodir.proto",
}

// RegisterDirectoryServer wires srv into a *grpc.Server.
func RegisterDirectoryServer(s *grpc.Server, srv DirectoryServer) {
	s.RegisterService(&ServiceDesc, srv)
}
