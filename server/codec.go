// Package server is the gRPC transport between silos: it carries the
// RemoteDirectory and Catalog calls the handoff manager drives on its
// peers, plus the gossip and anti-entropy exchanges the ambient
// background loops use. Rather than a protoc-generated message set,
// every request/response type here is a plain Go struct with json tags,
// carried over a hand-registered JSON codec: google.golang.org/grpc/encoding
// is the real mechanism grpc-go's own generated stubs are built on,
// just used directly here instead of through codegen.
package server

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const CodecName = "json"

// jsonCodec implements encoding.Codec by delegating to encoding/json.
// Registered globally in init so both grpc.NewServer and grpc.NewClient
// pick it up once CallContentSubtype/ForceServerCodec select it.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
