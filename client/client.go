package client

import (
	"context"

	"github.com/pixperk/siloring/gossip"
	"github.com/pixperk/siloring/server"
	"github.com/pixperk/siloring/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client dials a peer silo's Directory service one call at a time:
// dial, invoke, close. Kept dependency-free of any particular peer so
// the same Client value can be reused as the handoff manager's
// RemoteDirectory, Catalog and Registrar collaborator all at once.
type Client struct{}

func NewClient() *Client { return &Client{} }

func dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func invoke(ctx context.Context, addr, method string, req, resp interface{}) error {
	conn, err := dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(server.CodecName))
}

// AcceptSplitPartition implements handoff.RemoteDirectory.
func (c *Client) AcceptSplitPartition(ctx context.Context, target types.SiloAddress, list []types.GrainAddress) error {
	req := &server.AcceptSplitPartitionRequest{List: server.ToWireAddresses(list)}
	return invoke(ctx, string(target), "/silodir.Directory/AcceptSplitPartition", req, new(server.Empty))
}

// RemoveHandoffPartition implements handoff.RemoteDirectory.
func (c *Client) RemoveHandoffPartition(ctx context.Context, target types.SiloAddress, source types.SiloAddress) error {
	req := &server.RemoveHandoffPartitionRequest{Source: string(source)}
	return invoke(ctx, string(target), "/silodir.Directory/RemoveHandoffPartition", req, new(server.Empty))
}

// DeleteActivations implements handoff.Catalog.
func (c *Client) DeleteActivations(ctx context.Context, target types.SiloAddress, list []types.GrainAddress, reason types.DeactivationReason, message string) error {
	req := &server.DeleteActivationsRequest{List: server.ToWireAddresses(list), Reason: int(reason), Message: message}
	return invoke(ctx, string(target), "/silodir.Directory/DeleteActivations", req, new(server.Empty))
}

// Register implements handoff.Registrar by delegating to the target
// silo's own single-activation registration entry point.
func (c *Client) Register(ctx context.Context, addr types.GrainAddress) (types.GrainAddress, error) {
	target := addr.Silo
	req := &server.RegisterRequest{Addr: server.ToWireAddress(addr)}
	resp := new(server.RegisterResponse)
	if err := invoke(ctx, string(target), "/silodir.Directory/Register", req, resp); err != nil {
		return types.GrainAddress{}, err
	}
	return server.FromWireAddress(resp.Winner), nil
}

// AcceptExistingRegistrations pushes a batch of activations to target
// for re-registration after a takeover.
func (c *Client) AcceptExistingRegistrations(ctx context.Context, target types.SiloAddress, list []types.GrainAddress) error {
	req := &server.AcceptExistingRegistrationsRequest{List: server.ToWireAddresses(list)}
	return invoke(ctx, string(target), "/silodir.Directory/AcceptExistingRegistrations", req, new(server.Empty))
}

// AcceptHandoffPartition pushes a mirrored copy (full or delta) of a
// partition to target.
func (c *Client) AcceptHandoffPartition(ctx context.Context, target types.SiloAddress, source types.SiloAddress, snapshot map[types.GrainId]types.GrainInfo, isFullCopy bool) error {
	wire := make(map[string]server.WireGrainInfo, len(snapshot))
	for id, info := range snapshot {
		clock := make(map[string]uint64, len(info.Clock))
		for k, v := range info.Clock {
			clock[k] = v
		}
		wire[string(id)] = server.WireGrainInfo{Addresses: server.ToWireAddresses(info.Addresses), Clock: clock}
	}
	req := &server.AcceptHandoffPartitionRequest{Source: string(source), Snapshot: wire, IsFullCopy: isFullCopy}
	return invoke(ctx, string(target), "/silodir.Directory/AcceptHandoffPartition", req, new(server.Empty))
}

// Gossip exchanges membership lists with a peer.
func (c *Client) Gossip(ctx context.Context, addr string, members []gossip.MemberEntry) ([]gossip.MemberEntry, error) {
	wireMembers := make([]server.GossipMember, len(members))
	for i, m := range members {
		wireMembers[i] = server.GossipMember{NodeId: string(m.NodeID), Addr: m.Addr, Heartbeat: m.Heartbeat}
	}
	resp := new(server.GossipResponse)
	if err := invoke(ctx, addr, "/silodir.Directory/Gossip", &server.GossipRequest{Members: wireMembers}, resp); err != nil {
		return nil, err
	}
	out := make([]gossip.MemberEntry, len(resp.Members))
	for i, m := range resp.Members {
		out[i] = gossip.MemberEntry{NodeID: types.SiloAddress(m.NodeId), Addr: m.Addr, Heartbeat: m.Heartbeat}
	}
	return out, nil
}

// GetKeyHashes fetches a peer's merkle leaf hashes for anti-entropy.
func (c *Client) GetKeyHashes(ctx context.Context, addr string) ([]server.KeyHashEntry, error) {
	resp := new(server.GetKeyHashesResponse)
	if err := invoke(ctx, addr, "/silodir.Directory/GetKeyHashes", &server.GetKeyHashesRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// SyncKeys fetches full records for a set of divergent keys.
func (c *Client) SyncKeys(ctx context.Context, addr string, keys []string) (map[types.GrainId]types.GrainInfo, error) {
	resp := new(server.SyncKeysResponse)
	if err := invoke(ctx, addr, "/silodir.Directory/SyncKeys", &server.SyncKeysRequest{Keys: keys}, resp); err != nil {
		return nil, err
	}
	out := make(map[types.GrainId]types.GrainInfo, len(resp.Data))
	for id, w := range resp.Data {
		clock := make(map[string]uint64, len(w.Clock))
		for k, v := range w.Clock {
			clock[k] = v
		}
		out[types.GrainId(id)] = types.GrainInfo{Addresses: server.FromWireAddresses(w.Addresses), Clock: clock}
	}
	return out, nil
}
