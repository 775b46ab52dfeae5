// Command silo boots a small fleet of directory-partition silos on a
// shared consistent hash ring and drives both membership scenarios
// this system exists for: a silo joining and taking over part of its
// predecessor's partition, and a silo leaving with its partition
// folded back into the ring. It is meant for local, manual poking —
// the real correctness story lives in the package tests.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pixperk/siloring/config"
	"github.com/pixperk/siloring/logging"
	"github.com/pixperk/siloring/ring"
	"github.com/pixperk/siloring/server"
	"github.com/pixperk/siloring/silo"
	"github.com/pixperk/siloring/types"
)

// replicaMirrorDepth mirrors handoff.mirrorDepth: a silo only ever
// mirrors up to its second successor's partition, so anti-entropy only
// needs to run against silos within that range.
const replicaMirrorDepth = 2

// replicaPeersFor returns self's ring neighbors up to replicaMirrorDepth
// away on both sides as anti-entropy partners: predecessors mirror a copy of self's
// partition, and successors are the ones self mirrors a copy of.
func replicaPeersFor(self types.SiloAddress, members []types.SiloAddress) []server.ReplicaPeer {
	r := ring.New(self, members)
	seen := map[types.SiloAddress]bool{self: true}
	var peers []server.ReplicaPeer
	for _, a := range append(r.FindSuccessors(self, replicaMirrorDepth), r.FindPredecessors(self, replicaMirrorDepth)...) {
		if seen[a] {
			continue
		}
		seen[a] = true
		peers = append(peers, server.ReplicaPeer{Silo: a, Addr: string(a)})
	}
	return peers
}

func main() {
	const numSilos = 3

	configPath := flag.String("config", "", "path to a YAML config overriding the built-in defaults")
	flag.Parse()

	defaults := config.Defaults()
	// the demo fleet below only borrows tuning knobs (timeouts, log level)
	// from a supplied file; SelfID/ListenAddr/Seeds are still generated per
	// silo since this command boots several silos in one process. The file
	// still needs selfId/listenAddr set to pass Validate.
	if *configPath != "" {
		fileCfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		defaults.GossipInterval = fileCfg.GossipInterval
		defaults.FailTimeout = fileCfg.FailTimeout
		defaults.AntiEntropyInterval = fileCfg.AntiEntropyInterval
		defaults.RetryDelay = fileCfg.RetryDelay
		defaults.MaxDequeue = fileCfg.MaxDequeue
		defaults.LogLevel = fileCfg.LogLevel
	}

	logger, err := logging.New(defaults.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	addrs := make([]types.SiloAddress, numSilos)
	for i := range numSilos {
		addrs[i] = types.SiloAddress(fmt.Sprintf("127.0.0.1:%d", 20800+i))
	}

	fleet := make([]*silo.Silo, 0, numSilos)
	for _, addr := range addrs {
		s, err := silo.New(silo.Options{
			Self:                addr,
			Members:             addrs,
			ReplicaPeers:        replicaPeersFor(addr, addrs),
			FailTimeout:         defaults.FailTimeout,
			RetryDelay:          defaults.RetryDelay,
			MaxDequeue:          defaults.MaxDequeue,
			GossipInterval:      defaults.GossipInterval,
			AntiEntropyInterval: defaults.AntiEntropyInterval,
			Logger:              logger,
		})
		if err != nil {
			log.Fatalf("boot %s: %v", addr, err)
		}
		go func() {
			if err := s.Serve(); err != nil {
				log.Printf("[%s] serve exited: %v", addr, err)
			}
		}()
		fmt.Printf("[BOOT] %s listening on %s\n", addr, s.Addr())
		fleet = append(fleet, s)
	}
	time.Sleep(200 * time.Millisecond)

	seedGrains(fleet[0])
	printOwnership(fleet)

	joiningAddr := types.SiloAddress("127.0.0.1:20899")
	allMembers := append(append([]types.SiloAddress{}, addrs...), joiningAddr)
	joining, err := silo.New(silo.Options{
		Self:                joiningAddr,
		Members:             allMembers,
		ReplicaPeers:        replicaPeersFor(joiningAddr, allMembers),
		FailTimeout:         defaults.FailTimeout,
		RetryDelay:          defaults.RetryDelay,
		MaxDequeue:          defaults.MaxDequeue,
		GossipInterval:      defaults.GossipInterval,
		AntiEntropyInterval: defaults.AntiEntropyInterval,
		Logger:              logger,
	})
	if err != nil {
		log.Fatalf("boot joining silo: %v", err)
	}
	go joining.Serve()
	fmt.Printf("\n[JOIN] %s joining the ring\n", joiningAddr)

	fleet = append(fleet, joining)
	for _, s := range fleet[:numSilos] {
		s.HandleSiloAdded(joiningAddr)
	}
	time.Sleep(500 * time.Millisecond)
	printOwnership(fleet)

	leaving := fleet[0]
	fmt.Printf("\n[LEAVE] %s leaving the ring\n", leaving.Self)
	remaining := fleet[1:]
	for _, s := range remaining {
		s.HandleSiloRemoved(leaving.Self)
	}
	time.Sleep(500 * time.Millisecond)
	leaving.Stop()
	printOwnership(remaining)

	for _, s := range remaining {
		s.Stop()
	}
}

func seedGrains(owner *silo.Silo) {
	m := make(map[types.GrainId]types.GrainInfo, 20)
	for i := 0; i < 20; i++ {
		id := types.GrainId(fmt.Sprintf("grain-%d", i))
		m[id] = types.GrainInfo{
			Addresses: []types.GrainAddress{{GrainId: id, Silo: owner.Self, ActivationId: types.ActivationId(uuid.New().String())}},
		}
	}
	owner.Partition.Update(m)
	fmt.Printf("[SEED] %d grains registered on %s\n", len(m), owner.Self)
}

func printOwnership(fleet []*silo.Silo) {
	fmt.Println("[DIRECTORY]")
	for _, s := range fleet {
		fmt.Printf("  %s: %d grains, %d mirrored, %d followers\n",
			s.Self, s.Partition.Len(), s.Manager.MirroredCount(), len(s.Manager.Followers()))
	}
}
