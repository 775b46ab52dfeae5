package server

import "github.com/pixperk/siloring/types"

// wireGrainAddress is the wire form of types.GrainAddress: exported
// json-tagged fields, since the domain type's fields are already
// exported but we keep the wire shape decoupled from internal naming.
type wireGrainAddress struct {
	GrainId      string `json:"grainId"`
	Silo         string `json:"silo"`
	ActivationId string `json:"activationId"`
}

func ToWireAddress(a types.GrainAddress) wireGrainAddress {
	return wireGrainAddress{GrainId: string(a.GrainId), Silo: string(a.Silo), ActivationId: string(a.ActivationId)}
}

func FromWireAddress(w wireGrainAddress) types.GrainAddress {
	return types.GrainAddress{GrainId: types.GrainId(w.GrainId), Silo: types.SiloAddress(w.Silo), ActivationId: types.ActivationId(w.ActivationId)}
}

func ToWireAddresses(list []types.GrainAddress) []wireGrainAddress {
	out := make([]wireGrainAddress, len(list))
	for i, a := range list {
		out[i] = ToWireAddress(a)
	}
	return out
}

func FromWireAddresses(list []wireGrainAddress) []types.GrainAddress {
	out := make([]types.GrainAddress, len(list))
	for i, w := range list {
		out[i] = FromWireAddress(w)
	}
	return out
}

// WireGrainInfo carries a full directory record for handoff transfer:
// the address list plus the flattened vector clock.
type WireGrainInfo struct {
	Addresses []wireGrainAddress `json:"addresses"`
	Clock     map[string]uint64  `json:"clock"`
}

type AcceptSplitPartitionRequest struct {
	List []wireGrainAddress `json:"list"`
}

type AcceptHandoffPartitionRequest struct {
	Source     string                   `json:"source"`
	Snapshot   map[string]WireGrainInfo `json:"snapshot"`
	IsFullCopy bool                     `json:"isFullCopy"`
}

type RemoveHandoffPartitionRequest struct {
	Source string `json:"source"`
}

type DeleteActivationsRequest struct {
	List    []wireGrainAddress `json:"list"`
	Reason  int                `json:"reason"`
	Message string             `json:"message"`
}

type AcceptExistingRegistrationsRequest struct {
	List []wireGrainAddress `json:"list"`
}

type RegisterRequest struct {
	Addr wireGrainAddress `json:"addr"`
}

type RegisterResponse struct {
	Winner wireGrainAddress `json:"winner"`
}

// GossipMember mirrors gossip.MemberEntry on the wire.
type GossipMember struct {
	NodeId    string `json:"nodeId"`
	Addr      string `json:"addr"`
	Heartbeat uint64 `json:"heartbeat"`
}

type GossipRequest struct {
	Members []GossipMember `json:"members"`
}

type GossipResponse struct {
	Members []GossipMember `json:"members"`
}

type KeyHashEntry struct {
	Key  string `json:"key"`
	Hash []byte `json:"hash"`
}

type GetKeyHashesRequest struct{}

type GetKeyHashesResponse struct {
	Entries []KeyHashEntry `json:"entries"`
}

type SyncKeysRequest struct {
	Keys []string `json:"keys"`
}

type SyncKeysResponse struct {
	// Data maps a grain id to its full directory record, for the
	// subset of keys the merkle diff found divergent.
	Data map[string]WireGrainInfo `json:"data"`
}

type Empty struct{}
