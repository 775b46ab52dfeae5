package server

import (
	"context"
	"net"
	"time"

	"github.com/pixperk/siloring/gossip"
	"github.com/pixperk/siloring/handoff"
	"github.com/pixperk/siloring/logging"
	"github.com/pixperk/siloring/merkle"
	"github.com/pixperk/siloring/metrics"
	"github.com/pixperk/siloring/storage"
	"github.com/pixperk/siloring/types"
	"github.com/pixperk/siloring/vclock"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// RemoteCaller is the outbound half of the Directory service the
// background loops below drive on peers: gossip exchange and
// merkle-based anti-entropy. *client.Client satisfies it. Declared
// here rather than imported from the client package, since client
// already imports server for the wire types.
type RemoteCaller interface {
	Gossip(ctx context.Context, addr string, members []gossip.MemberEntry) ([]gossip.MemberEntry, error)
	GetKeyHashes(ctx context.Context, addr string) ([]KeyHashEntry, error)
	SyncKeys(ctx context.Context, addr string, keys []string) (map[types.GrainId]types.GrainInfo, error)
}

// maxAntiEntropyRepair caps how many divergent grain ids a single
// anti-entropy round pulls via SyncKeys. A predecessor takeover or a
// large re-split can leave thousands of keys diverging at once; pulling
// them all in one round trip would starve the gossip loop sharing the
// same RPC budget, so the rest is picked up on the next tick.
const maxAntiEntropyRepair = 500

// ReplicaPeer is a silo this server periodically anti-entropies its
// partition against: one of its mirror predecessors/successors, kept
// separate from gossip membership since anti-entropy only makes sense
// for silos that actually share a key range with us.
type ReplicaPeer struct {
	Silo types.SiloAddress
	Addr string
}

// Config bundles the collaborators Server wraps. Manager, LocalPartition,
// Members and Remote are required.
type Config struct {
	Self           types.SiloAddress
	Manager        *handoff.Manager
	LocalPartition *storage.Partition
	Members        *gossip.MemberList
	Remote         RemoteCaller
	ReplicaPeers   []ReplicaPeer

	GossipInterval      time.Duration
	AntiEntropyInterval time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Handoff
}

// Server is the concrete DirectoryServer for one silo: it answers every
// RPC a peer can send, and drives the gossip and anti-entropy loops
// that keep membership and this silo's own partition in step with its
// peers in the background; the mirrored partitions the handoff manager
// holds are not touched by anti-entropy. The handoff manager already owns its own retrying
// operation queue, so there's no separate hinted-write poll loop here.
type Server struct {
	self           types.SiloAddress
	manager        *handoff.Manager
	localPartition *storage.Partition
	members        *gossip.MemberList
	remote         RemoteCaller
	replicaPeers   []ReplicaPeer

	gossipInterval      time.Duration
	antiEntropyInterval time.Duration

	logger  *zap.Logger
	metrics *metrics.Handoff

	grpcServer *grpc.Server
	stopCh     chan struct{}
}

func New(cfg Config) *Server {
	if cfg.GossipInterval <= 0 {
		cfg.GossipInterval = time.Second
	}
	if cfg.AntiEntropyInterval <= 0 {
		cfg.AntiEntropyInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		self:                cfg.Self,
		manager:             cfg.Manager,
		localPartition:      cfg.LocalPartition,
		members:             cfg.Members,
		remote:              cfg.Remote,
		replicaPeers:        cfg.ReplicaPeers,
		gossipInterval:      cfg.GossipInterval,
		antiEntropyInterval: cfg.AntiEntropyInterval,
		logger:              cfg.Logger.With(zap.String("silo", string(cfg.Self))),
		metrics:             cfg.Metrics,
		stopCh:              make(chan struct{}),
	}
}

// loggingInterceptor attaches this silo's base logger and the RPC's
// method name to the context so any handler can pull a request-scoped
// logger back out via logging.FromContext without threading one
// through every call signature.
func (s *Server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx = logging.WithLogger(ctx, s.logger)
	ctx = logging.WithFields(ctx, zap.String("rpc", info.FullMethod))
	return handler(ctx, req)
}

// Start registers the gRPC handler set, launches the background loops,
// and serves until Stop is called.
func (s *Server) Start(lis net.Listener) error {
	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.loggingInterceptor))
	RegisterDirectoryServer(s.grpcServer, s)

	go s.runGossip()
	go s.runAntiEntropy()

	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the gRPC server and background loops.
func (s *Server) Stop() {
	close(s.stopCh)
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}

// AcceptSplitPartition installs a batch of freshly-owned addresses into
// this silo's own directory: the caller is a predecessor handing off
// the slice of its partition that now hashes to us. Each address is
// seeded with a fresh single-node clock, since from this point on we
// are its sole registrar.
func (s *Server) AcceptSplitPartition(ctx context.Context, req *AcceptSplitPartitionRequest) (*Empty, error) {
	list := FromWireAddresses(req.List)
	m := make(map[types.GrainId]types.GrainInfo, len(list))
	for _, a := range list {
		c := vclock.NewVClock()
		c.Increment(string(a.Silo))
		m[a.GrainId] = types.GrainInfo{Addresses: []types.GrainAddress{a}, Clock: c}
	}
	s.localPartition.Update(m)
	return &Empty{}, nil
}

// AcceptHandoffPartition installs an incoming mirrored copy, delegating
// to the handoff manager which owns the mirror set.
func (s *Server) AcceptHandoffPartition(ctx context.Context, req *AcceptHandoffPartitionRequest) (*Empty, error) {
	snapshot := make(map[types.GrainId]types.GrainInfo, len(req.Snapshot))
	for id, w := range req.Snapshot {
		clock := make(vclock.VClock, len(w.Clock))
		for k, v := range w.Clock {
			clock[k] = v
		}
		snapshot[types.GrainId(id)] = types.GrainInfo{Addresses: FromWireAddresses(w.Addresses), Clock: clock}
	}
	ctx = logging.WithFields(ctx, zap.String("source", req.Source), zap.Bool("fullCopy", req.IsFullCopy))
	logging.FromContext(ctx, s.logger).Debug("accepted handoff partition", zap.Int("entries", len(snapshot)))
	s.manager.AcceptHandoffPartition(types.SiloAddress(req.Source), snapshot, req.IsFullCopy)
	return &Empty{}, nil
}

// RemoveHandoffPartition drops whatever this silo mirrors for source.
func (s *Server) RemoveHandoffPartition(ctx context.Context, req *RemoveHandoffPartitionRequest) (*Empty, error) {
	ctx = logging.WithFields(ctx, zap.String("source", req.Source))
	logging.FromContext(ctx, s.logger).Debug("removed handoff partition")
	s.manager.RemoveHandoffPartition(types.SiloAddress(req.Source))
	return &Empty{}, nil
}

// DeleteActivations is the receiving side of the duplicate reconciler:
// a peer has told us the activations in this list lost a registration
// race. Actually tearing down a live activation is the wider grain
// runtime's job (out of scope here); this silo's own responsibility is
// just to drop the now-stale directory record so a subsequent lookup
// doesn't keep pointing at it.
func (s *Server) DeleteActivations(ctx context.Context, req *DeleteActivationsRequest) (*Empty, error) {
	for _, a := range FromWireAddresses(req.List) {
		info, ok := s.localPartition.Get(a.GrainId)
		if ok && len(info.Addresses) > 0 && info.Addresses[0] == a {
			s.localPartition.Remove(a.GrainId)
		}
	}
	ctx = logging.WithFields(ctx, zap.String("reason", types.DeactivationReason(req.Reason).String()))
	logging.FromContext(ctx, s.logger).Info("destroyed duplicate activations", zap.Int("count", len(req.List)))
	return &Empty{}, nil
}

// AcceptExistingRegistrations hands a re-registration batch to the
// handoff manager's reconciler.
func (s *Server) AcceptExistingRegistrations(ctx context.Context, req *AcceptExistingRegistrationsRequest) (*Empty, error) {
	s.manager.AcceptExistingRegistrations(FromWireAddresses(req.List))
	return &Empty{}, nil
}

// Register is this silo's single-activation registration entry point:
// the collaborator handoff.Registrar calls on a peer. It resolves a
// race the same way a partition merge does — advance the existing
// entry's clock by the registering address's silo counter and let the
// loser be picked
// deterministically — so a caller on the losing side gets back the
// winning address instead of an error.
func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	addr := FromWireAddress(req.Addr)

	existing, ok := s.localPartition.Get(addr.GrainId)
	clock := vclock.NewVClock()
	if ok {
		clock = existing.Clock.Copy()
	}
	clock.Increment(string(addr.Silo))

	incoming := storage.New()
	incoming.Update(map[types.GrainId]types.GrainInfo{
		addr.GrainId: {Addresses: []types.GrainAddress{addr}, Clock: clock},
	})
	s.localPartition.Merge(incoming)

	winner, _ := s.localPartition.Get(addr.GrainId)
	return &RegisterResponse{Winner: ToWireAddress(winner.Address())}, nil
}

// Gossip merges a peer's membership view into ours and replies with our
// own view for the peer to merge back.
func (s *Server) Gossip(ctx context.Context, req *GossipRequest) (*GossipResponse, error) {
	remote := make([]gossip.MemberEntry, len(req.Members))
	for i, m := range req.Members {
		remote[i] = gossip.MemberEntry{NodeID: types.SiloAddress(m.NodeId), Addr: m.Addr, Heartbeat: m.Heartbeat}
	}
	s.members.Merge(remote)

	entries := s.members.Entries()
	out := make([]GossipMember, len(entries))
	for i, e := range entries {
		out[i] = GossipMember{NodeId: string(e.NodeID), Addr: e.Addr, Heartbeat: e.Heartbeat}
	}
	return &GossipResponse{Members: out}, nil
}

// GetKeyHashes returns this silo's merkle leaf hashes so a peer can
// diff them against its own tree.
func (s *Server) GetKeyHashes(ctx context.Context, req *GetKeyHashesRequest) (*GetKeyHashesResponse, error) {
	kh := s.localPartition.KeyHashes()
	entries := make([]KeyHashEntry, len(kh))
	for i, e := range kh {
		entries[i] = KeyHashEntry{Key: string(e.Key), Hash: append([]byte(nil), e.Hash[:]...)}
	}
	return &GetKeyHashesResponse{Entries: entries}, nil
}

// SyncKeys returns the full directory record for each requested grain
// id, called after a merkle diff has identified which keys diverged.
func (s *Server) SyncKeys(ctx context.Context, req *SyncKeysRequest) (*SyncKeysResponse, error) {
	full := s.localPartition.Snapshot()
	data := make(map[string]WireGrainInfo, len(req.Keys))
	for _, key := range req.Keys {
		info, ok := full[types.GrainId(key)]
		if !ok {
			continue
		}
		clock := make(map[string]uint64, len(info.Clock))
		for k, v := range info.Clock {
			clock[k] = v
		}
		data[key] = WireGrainInfo{Addresses: ToWireAddresses(info.Addresses), Clock: clock}
	}
	return &SyncKeysResponse{Data: data}, nil
}

// runGossip periodically ticks the local heartbeat, picks a random
// peer, exchanges membership lists, and merges the response.
func (s *Server) runGossip() {
	ticker := time.NewTicker(s.gossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.members.Tick()

			peer, ok := s.members.RandomPeer()
			if !ok {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.gossipInterval)
			resp, err := s.remote.Gossip(ctx, peer.Addr, s.members.Entries())
			cancel()
			if err != nil {
				continue
			}
			s.members.Merge(resp)
		}
	}
}

// runAntiEntropy periodically round-robins through the replica peers,
// diffs merkle trees, and pulls whatever keys diverged.
func (s *Server) runAntiEntropy() {
	ticker := time.NewTicker(s.antiEntropyInterval)
	defer ticker.Stop()

	peerIdx := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if len(s.replicaPeers) == 0 {
				continue
			}
			peer := s.replicaPeers[peerIdx%len(s.replicaPeers)]
			peerIdx++

			if !s.members.IsAlive(peer.Silo) {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.antiEntropyInterval)
			entries, err := s.remote.GetKeyHashes(ctx, peer.Addr)
			if err != nil {
				cancel()
				continue
			}

			peerHashes := make([]merkle.KeyHash, len(entries))
			for i, e := range entries {
				var h [16]byte
				copy(h[:], e.Hash)
				peerHashes[i] = merkle.KeyHash{Key: types.GrainId(e.Key), Hash: h}
			}

			localTree := merkle.Build(s.localPartition.KeyHashes())
			peerTree := merkle.Build(peerHashes)
			diffKeys := merkle.Diff(localTree, peerTree, maxAntiEntropyRepair)
			if len(diffKeys) == 0 {
				cancel()
				continue
			}

			keys := make([]string, len(diffKeys))
			for i, k := range diffKeys {
				keys[i] = string(k)
			}
			data, err := s.remote.SyncKeys(ctx, peer.Addr, keys)
			cancel()
			if err != nil {
				continue
			}
			s.localPartition.Update(data)
		}
	}
}
