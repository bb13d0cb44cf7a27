package devnode

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"

	"github.com/compose-network/ledger-harness/x/contract"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/tx"
)

const (
	// MaxTxAge is how old a transaction may be at intake.
	MaxTxAge = 24 * time.Hour
	// MaxClockSkew is how far in the future a transaction may be stamped.
	MaxClockSkew = 5 * time.Minute

	defaultPageSize = 100
	maxPageSize     = 500
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrReceiptNotFound = errors.New("engine receipt not found")
	ErrContractMissing = errors.New("contract not found")
)

// Genesis seeds the world state.
type Genesis struct {
	Domain         string
	DefaultRole    string
	AdminAccountID string
	AdminPublicKey []byte
	Peers          []ledger.Peer
}

type pendingTx struct {
	hash ledger.Hash
	tx   ledger.Transaction
}

// Ledger is a single-writer in-memory ledger. Transactions are ordered by
// arrival and committed in blocks by Commit.
type Ledger struct {
	mu       sync.RWMutex
	state    *worldState
	blocks   []ledger.Block
	pending  []pendingTx
	statuses map[ledger.Hash]ledger.TxStatus
	receipts map[ledger.Hash][]ledger.EngineReceipt

	engine  *coinEngine
	now     func() time.Time
	log     zerolog.Logger
	metrics *Metrics
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithLedgerMetrics records intake and block metrics.
func WithLedgerMetrics(m *Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

// NewLedger creates a ledger from genesis. The genesis block is height 1.
func NewLedger(g Genesis, log zerolog.Logger, opts ...LedgerOption) (*Ledger, error) {
	if !keys.ValidAccountID(g.AdminAccountID) {
		return nil, fmt.Errorf("invalid admin account id %q", g.AdminAccountID)
	}
	if len(g.AdminPublicKey) == 0 {
		return nil, errors.New("admin public key is empty")
	}
	if len(g.Peers) == 0 {
		return nil, errors.New("genesis needs at least one peer")
	}

	l := &Ledger{
		state:    newWorldState(),
		statuses: make(map[ledger.Hash]ledger.TxStatus),
		receipts: make(map[ledger.Hash][]ledger.EngineReceipt),
		engine:   newCoinEngine(),
		now:      time.Now,
		log:      log.With().Str("component", "devnode-ledger").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	role := g.DefaultRole
	if role == "" {
		role = "user"
	}
	domain := g.Domain
	if domain == "" {
		_, domain, _ = strings.Cut(g.AdminAccountID, "@")
	}
	l.state.domains[domain] = role
	if _, adminDomain, _ := strings.Cut(g.AdminAccountID, "@"); adminDomain != domain {
		l.state.domains[adminDomain] = role
	}
	l.state.accounts[g.AdminAccountID] = &account{
		id:          g.AdminAccountID,
		signatories: [][]byte{append([]byte(nil), g.AdminPublicKey...)},
		assets:      make(map[string]*big.Int),
	}
	for _, p := range g.Peers {
		if l.state.peerIndex(p.PublicKey) >= 0 {
			return nil, fmt.Errorf("duplicate genesis peer %x", []byte(p.PublicKey))
		}
		l.state.peers = append(l.state.peers, ledger.Peer{Address: p.Address, PublicKey: append([]byte(nil), p.PublicKey...)})
	}

	genesis := ledger.Block{Height: 1, CreatedTime: uint64(l.now().UnixMilli())}
	genesis.Hash = blockHash(genesis)
	l.blocks = append(l.blocks, genesis)
	return l, nil
}

// Submit runs stateless validation and queues the transaction.
func (l *Ledger) Submit(t ledger.Transaction) ledger.SubmitAck {
	hash, err := tx.Hash(t.Payload)
	if err != nil {
		l.metrics.intake("malformed")
		return ledger.SubmitAck{Status: ledger.StatusStatelessValidationFailed, Detail: err.Error()}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.statuses[hash]; seen {
		l.metrics.intake("replayed")
		l.log.Warn().Str("tx", hash.Short()).Msg("replayed transaction refused")
		return ledger.SubmitAck{TxHash: hash, Status: ledger.StatusRejected, Detail: "replayed transaction"}
	}

	if err := l.statelessCheck(t); err != nil {
		st := ledger.TxStatus{TxHash: hash, Status: ledger.StatusStatelessValidationFailed, Detail: err.Error()}
		l.statuses[hash] = st
		l.metrics.intake("stateless_failed")
		l.log.Info().Str("tx", hash.Short()).Err(err).Msg("stateless validation failed")
		return ledger.SubmitAck(st)
	}

	l.pending = append(l.pending, pendingTx{hash: hash, tx: t.Clone()})
	l.statuses[hash] = ledger.TxStatus{TxHash: hash, Status: ledger.StatusStatelessValidationSuccess}
	l.metrics.intake("accepted")
	l.log.Debug().Str("tx", hash.Short()).Int("pending", len(l.pending)).Msg("transaction queued")
	return ledger.SubmitAck{TxHash: hash, Status: ledger.StatusStatelessValidationSuccess}
}

func (l *Ledger) statelessCheck(t ledger.Transaction) error {
	for i, c := range t.Payload.Commands {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("command %d: %w", i, err)
		}
	}
	if len(t.Payload.Commands) == 0 {
		return errors.New("no commands")
	}
	if t.Payload.Quorum < 1 {
		return fmt.Errorf("quorum %d is below 1", t.Payload.Quorum)
	}
	if len(t.Signatures) == 0 {
		return errors.New("no signatures")
	}
	created := time.UnixMilli(int64(t.Payload.CreatedTime))
	now := l.now()
	if created.Before(now.Add(-MaxTxAge)) {
		return fmt.Errorf("transaction is older than %s", MaxTxAge)
	}
	if created.After(now.Add(MaxClockSkew)) {
		return fmt.Errorf("transaction is more than %s in the future", MaxClockSkew)
	}
	if _, err := tx.Verify(t); err != nil {
		return err
	}
	return nil
}

// Commit applies every pending transaction in arrival order and seals a block.
// It returns false when nothing was pending.
func (l *Ledger) Commit() (ledger.Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return ledger.Block{}, false
	}

	prev := l.blocks[len(l.blocks)-1]
	block := ledger.Block{
		Height:      prev.Height + 1,
		PrevHash:    prev.Hash,
		CreatedTime: uint64(l.now().UnixMilli()),
	}

	for _, p := range l.pending {
		next := l.state.clone()
		receipts, err := l.applyTx(next, p.tx, p.hash)
		if err != nil {
			l.statuses[p.hash] = ledger.TxStatus{
				TxHash:    p.hash,
				Status:    ledger.StatusStatefulValidationFailed,
				ErrorCode: err.Code,
				Detail:    err.Error(),
			}
			block.RejectedHashes = append(block.RejectedHashes, p.hash)
			l.metrics.applied("stateful_failed")
			l.log.Info().Str("tx", p.hash.Short()).Uint32("code", err.Code).Err(err).Msg("stateful validation failed")
			continue
		}
		l.state = next
		if len(receipts) > 0 {
			l.receipts[p.hash] = receipts
		}
		l.statuses[p.hash] = ledger.TxStatus{TxHash: p.hash, Status: ledger.StatusCommitted}
		block.Transactions = append(block.Transactions, p.tx)
		l.metrics.applied("committed")
	}
	l.pending = nil

	block.Hash = blockHash(block)
	l.blocks = append(l.blocks, block)
	l.metrics.sealed(block)
	l.log.Info().
		Uint64("height", block.Height).
		Int("txs", len(block.Transactions)).
		Int("rejected", len(block.RejectedHashes)).
		Str("hash", block.Hash.Short()).
		Msg("block committed")
	return block, true
}

// Run commits pending transactions every interval until ctx is done.
func (l *Ledger) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Commit()
		}
	}
}

// Status returns the last known status; unknown hashes are NOT_RECEIVED.
func (l *Ledger) Status(hash ledger.Hash) ledger.TxStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if st, ok := l.statuses[hash]; ok {
		return st
	}
	return ledger.TxStatus{TxHash: hash, Status: ledger.StatusNotReceived}
}

// Blocks pages through the chain starting at fromHeight (1-based).
func (l *Ledger) Blocks(fromHeight uint64, limit uint32) ([]ledger.Block, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	height := uint64(len(l.blocks))
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if fromHeight == 0 {
		fromHeight = 1
	}
	if fromHeight > height {
		return nil, height
	}
	end := min(fromHeight-1+uint64(limit), height)
	out := make([]ledger.Block, 0, end-fromHeight+1)
	for _, b := range l.blocks[fromHeight-1 : end] {
		out = append(out, cloneBlock(b))
	}
	return out, height
}

// Height is the number of sealed blocks, genesis included.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks))
}

// PendingCount is the number of transactions waiting for the next block.
func (l *Ledger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// Peers lists the registered peers.
func (l *Ledger) Peers() []ledger.Peer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ledger.Peer, len(l.state.peers))
	for i, p := range l.state.peers {
		out[i] = ledger.Peer{Address: p.Address, PublicKey: append([]byte(nil), p.PublicKey...)}
	}
	return out
}

// Receipt returns the first engine receipt recorded for a committed transaction.
func (l *Ledger) Receipt(hash ledger.Hash) (ledger.EngineReceipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rs, ok := l.receipts[hash]
	if !ok || len(rs) == 0 {
		return ledger.EngineReceipt{}, ErrReceiptNotFound
	}
	return rs[0], nil
}

// EngineCall runs input against a contract without committing anything.
func (l *Ledger) EngineCall(caller string, callee common.Address, input []byte) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.state.contracts[callee]
	if !ok {
		return nil, fmt.Errorf("%w at %s", ErrContractMissing, callee.Hex())
	}
	return l.engine.call(c.clone(), contract.CallerAddress(caller), input)
}

// AccountAssets lists balances of an account.
func (l *Ledger) AccountAssets(accountID string) ([]ledger.AccountAsset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	assets, ok := l.state.accountAssets(accountID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return assets, nil
}

type blockHeader struct {
	Height      uint64
	PrevHash    []byte
	CreatedTime uint64
	TxHashes    [][]byte
	Rejected    [][]byte
}

func blockHash(b ledger.Block) ledger.Hash {
	h := blockHeader{Height: b.Height, PrevHash: b.PrevHash[:], CreatedTime: b.CreatedTime}
	for _, t := range b.Transactions {
		th := tx.MustHash(t.Payload)
		h.TxHashes = append(h.TxHashes, th[:])
	}
	for _, r := range b.RejectedHashes {
		h.Rejected = append(h.Rejected, r[:])
	}
	enc, err := rlp.EncodeToBytes(&h)
	if err != nil {
		panic(err)
	}
	return ledger.Hash(sha3.Sum256(enc))
}

func cloneBlock(b ledger.Block) ledger.Block {
	out := b
	out.Transactions = make([]ledger.Transaction, len(b.Transactions))
	for i, t := range b.Transactions {
		out.Transactions[i] = t.Clone()
	}
	out.RejectedHashes = append([]ledger.Hash(nil), b.RejectedHashes...)
	return out
}
