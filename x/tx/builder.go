package tx

import (
	"strings"
	"time"

	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/ledger"
)

// Build assembles an unsigned transaction stamped with the current time.
func Build(commands []ledger.Command, creator string, quorum int) (ledger.Transaction, error) {
	return BuildAt(time.Now(), commands, creator, quorum)
}

// BuildAt is Build with an explicit creation time.
// Commands are deep-copied: later changes to the caller's slice do not reach the
// transaction.
func BuildAt(now time.Time, commands []ledger.Command, creator string, quorum int) (ledger.Transaction, error) {
	if len(commands) == 0 {
		return ledger.Transaction{}, errs.New(errs.KindMalformedCommand, "build", "command list is empty")
	}
	if quorum < 1 {
		return ledger.Transaction{}, errs.Newf(errs.KindMalformedCommand, "build", "quorum must be at least 1, got %d", quorum)
	}
	if strings.TrimSpace(creator) == "" {
		return ledger.Transaction{}, errs.New(errs.KindMalformedCommand, "build", "creator account id is empty")
	}

	cmds := make([]ledger.Command, len(commands))
	for i, c := range commands {
		if err := c.Validate(); err != nil {
			return ledger.Transaction{}, errs.Newf(errs.KindMalformedCommand, "build", "command %d", i).WithCause(err)
		}
		cmds[i] = c.Clone()
	}

	return ledger.Transaction{
		Payload: ledger.Payload{
			Commands:         cmds,
			CreatorAccountID: creator,
			CreatedTime:      uint64(now.UnixMilli()),
			Quorum:           uint32(quorum),
		},
	}, nil
}
