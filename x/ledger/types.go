package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Payload is the signed part of a transaction.
type Payload struct {
	Commands         []Command `json:"commands"           yaml:"commands"`
	CreatorAccountID string    `json:"creator_account_id" yaml:"creator_account_id"`
	CreatedTime      uint64    `json:"created_time"       yaml:"created_time"`
	Quorum           uint32    `json:"quorum"             yaml:"quorum"`
}

// Signature over the payload hash.
type Signature struct {
	Scheme    string        `json:"scheme"     yaml:"scheme"`
	PublicKey hexutil.Bytes `json:"public_key" yaml:"public_key"`
	Signature hexutil.Bytes `json:"signature"  yaml:"signature"`
}

// Transaction is a payload plus the signatures collected for it.
type Transaction struct {
	Payload    Payload     `json:"payload"    yaml:"payload"`
	Signatures []Signature `json:"signatures" yaml:"signatures"`
}

// Clone returns a deep copy.
func (t Transaction) Clone() Transaction {
	out := Transaction{Payload: t.Payload}
	out.Payload.Commands = make([]Command, len(t.Payload.Commands))
	for i, c := range t.Payload.Commands {
		out.Payload.Commands[i] = c.Clone()
	}
	if t.Signatures != nil {
		out.Signatures = make([]Signature, len(t.Signatures))
		for i, s := range t.Signatures {
			out.Signatures[i] = Signature{
				Scheme:    s.Scheme,
				PublicKey: clone(s.PublicKey),
				Signature: clone(s.Signature),
			}
		}
	}
	return out
}

// Block is a committed batch of transactions.
type Block struct {
	Height         uint64        `json:"height"                    yaml:"height"`
	PrevHash       Hash          `json:"prev_hash"                 yaml:"prev_hash"`
	Hash           Hash          `json:"hash"                      yaml:"hash"`
	CreatedTime    uint64        `json:"created_time"              yaml:"created_time"`
	Transactions   []Transaction `json:"transactions"              yaml:"transactions"`
	RejectedHashes []Hash        `json:"rejected_hashes,omitempty" yaml:"rejected_hashes,omitempty"`
}

// SubmitAck is the intake answer. A terminal Status means the node refused the
// transaction outright and will not report a different status later.
type SubmitAck struct {
	TxHash    Hash   `json:"tx_hash"`
	Status    Status `json:"status"`
	ErrorCode uint32 `json:"error_code,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type TxStatusRequest struct {
	TxHash Hash `json:"tx_hash"`
}

type TxStatus struct {
	TxHash    Hash   `json:"tx_hash"`
	Status    Status `json:"status"`
	ErrorCode uint32 `json:"error_code,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type ListBlocksRequest struct {
	FromHeight uint64 `json:"from_height"`
	Limit      uint32 `json:"limit"`
}

type ListBlocksResponse struct {
	Blocks []Block `json:"blocks"`
	Height uint64  `json:"height"`
}

type EngineReceiptRequest struct {
	TxHash Hash `json:"tx_hash"`
}

// EngineReceipt describes the effect of a CallEngine command.
type EngineReceipt struct {
	TxHash          Hash            `json:"tx_hash"`
	CommandIndex    uint32          `json:"command_index"`
	Caller          common.Address  `json:"caller"`
	ContractAddress *common.Address `json:"contract_address,omitempty"`
	Output          hexutil.Bytes   `json:"output,omitempty"`
}

type EngineCallRequest struct {
	Caller string         `json:"caller"`
	Callee common.Address `json:"callee"`
	Input  hexutil.Bytes  `json:"input"`
}

type EngineCallResponse struct {
	Output hexutil.Bytes `json:"output"`
}

type ListPeersRequest struct{}

type ListPeersResponse struct {
	Peers []Peer `json:"peers"`
}

type AccountAssetsRequest struct {
	AccountID string `json:"account_id"`
}

type AccountAsset struct {
	AssetID string `json:"asset_id"`
	Balance string `json:"balance"`
}

type AccountAssetsResponse struct {
	AccountID string         `json:"account_id"`
	Assets    []AccountAsset `json:"assets"`
}
