// Package silo assembles one node's ring membership, partition store,
// handoff manager, and gRPC transport into a single runnable unit: a
// ring position bundled with a grain directory partition and everything
// that keeps it correct as the ring reshapes.
package silo

import (
	"net"
	"time"

	"github.com/pixperk/siloring/client"
	"github.com/pixperk/siloring/config"
	"github.com/pixperk/siloring/gossip"
	"github.com/pixperk/siloring/handoff"
	"github.com/pixperk/siloring/metrics"
	"github.com/pixperk/siloring/ring"
	"github.com/pixperk/siloring/server"
	"github.com/pixperk/siloring/storage"
	"github.com/pixperk/siloring/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options configures a Silo. Self must be a dialable address (host:port)
// since it doubles as this silo's gRPC listen address and its
// SiloAddress on the ring — the same simplification the handoff
// manager's Config.Self expects.
type Options struct {
	Self    types.SiloAddress
	Members []types.SiloAddress // full initial ring membership, including Self
	Seeds   []config.Seed

	// ReplicaPeers are the silos this one anti-entropies its partition
	// against: typically whoever mirrors us and whoever we mirror.
	ReplicaPeers []server.ReplicaPeer

	FailTimeout         time.Duration
	RetryDelay          time.Duration
	MaxDequeue          int
	GossipInterval      time.Duration
	AntiEntropyInterval time.Duration

	Logger   *zap.Logger
	Registry prometheus.Registerer
}

// Silo is one node's full stack: ring position, authoritative
// partition, handoff manager, and the gRPC server/client pair that
// carries it to peers.
type Silo struct {
	Self types.SiloAddress

	Ring      *ring.HashRing
	Partition *storage.Partition
	Members   *gossip.MemberList
	Manager   *handoff.Manager
	Client    *client.Client
	Server    *server.Server

	listener net.Listener
	logger   *zap.Logger
}

// New builds a Silo bound to a live listener on opts.Self. It does not
// start serving; call Serve for that.
func New(opts Options) (*Silo, error) {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	if opts.MaxDequeue <= 0 {
		opts.MaxDequeue = 2
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	lis, err := net.Listen("tcp", string(opts.Self))
	if err != nil {
		return nil, err
	}

	r := ring.New(opts.Self, opts.Members)
	partition := storage.New()
	met := metrics.NewHandoff(opts.Registry, string(opts.Self))
	members := gossip.NewMemberList(opts.Self, string(opts.Self), opts.FailTimeout)
	for _, seed := range opts.Seeds {
		members.AddSeed(types.SiloAddress(seed.ID), seed.Addr)
	}
	cl := client.NewClient()

	mgr := handoff.New(handoff.Config{
		Self:         opts.Self,
		Ring:         r,
		StatusOracle: members,
		Remote:       cl,
		Catalog:      cl,
		Registrar:    cl,
		RetryDelay:   opts.RetryDelay,
		MaxDequeue:   opts.MaxDequeue,
		Logger:       opts.Logger,
		Metrics:      met,
	}, partition)

	srv := server.New(server.Config{
		Self:                opts.Self,
		Manager:             mgr,
		LocalPartition:      partition,
		Members:             members,
		Remote:              cl,
		ReplicaPeers:        opts.ReplicaPeers,
		GossipInterval:      opts.GossipInterval,
		AntiEntropyInterval: opts.AntiEntropyInterval,
		Logger:              opts.Logger,
		Metrics:             met,
	})

	return &Silo{
		Self:      opts.Self,
		Ring:      r,
		Partition: partition,
		Members:   members,
		Manager:   mgr,
		Client:    cl,
		Server:    srv,
		listener:  lis,
		logger:    opts.Logger.With(zap.String("silo", string(opts.Self))),
	}, nil
}

// Serve blocks running the gRPC server until Stop is called.
func (s *Silo) Serve() error {
	return s.Server.Start(s.listener)
}

// Stop tears down the gRPC server, the handoff manager's mailbox
// goroutine, and marks the ring no longer serving.
func (s *Silo) Stop() {
	s.logger.Info("stopping silo")
	s.Ring.Stop()
	s.Server.Stop()
	s.Manager.Stop()
}

// Addr returns the address the silo actually bound to, which may
// differ from opts.Self when a :0 port was requested.
func (s *Silo) Addr() string {
	return s.listener.Addr().String()
}

// HandleSiloAdded is the membership-event entry point for a join: the
// ring is updated first so the manager's successor/predecessor queries
// see the new member, then the manager runs its join reaction.
func (s *Silo) HandleSiloAdded(a types.SiloAddress) {
	s.Ring.AddSilo(a)
	s.Manager.ProcessSiloAddEvent(a)
}

// HandleSiloRemoved is the membership-event entry point for a
// departure: the manager's leave reaction is run first, while the ring
// still resolves r's vacated predecessors/successors correctly, then r
// is evicted from the ring.
func (s *Silo) HandleSiloRemoved(r types.SiloAddress) {
	s.Manager.ProcessSiloRemoveEvent(r)
	s.Ring.RemoveSilo(r)
}
