package ledger

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of the ledger RPC messages.
const CodecName = "json"

// JSONCodec marshals ledger messages as JSON inside gRPC frames.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return b, nil
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	return nil
}

func (JSONCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
