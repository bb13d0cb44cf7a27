package scenario

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/submit"
)

// Submitter delivers a signed transaction and waits for its terminal status.
// *submit.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, t ledger.Transaction, ep endpoint.Endpoint) (submit.Result, error)
}

// Env is what scenarios run against.
type Env struct {
	Identity  keys.Identity
	Endpoints *endpoint.Registry
	Submitter Submitter
	Dialer    ledger.Dialer
	Log       zerolog.Logger
}

// Node resolves a 1-based node number.
func (e *Env) Node(n int) (endpoint.Endpoint, error) {
	return e.Endpoints.At(n - 1)
}

// Query returns a client for read-only queries against node n.
func (e *Env) Query(n int) (ledger.Client, error) {
	ep, err := e.Node(n)
	if err != nil {
		return nil, err
	}
	return e.Dialer.Dial(ep)
}

// Expectation is the terminal status a scenario asserts.
type Expectation struct {
	Status ledger.Status
	// AnyFailure accepts every terminal status except COMMITTED.
	AnyFailure bool
}

func ExpectCommitted() Expectation { return Expectation{Status: ledger.StatusCommitted} }

func ExpectRejected() Expectation { return Expectation{AnyFailure: true} }

// Matches reports whether a terminal status satisfies the expectation.
func (e Expectation) Matches(s ledger.Status) bool {
	if e.AnyFailure {
		return s.Terminal() && s != ledger.StatusCommitted
	}
	return s == e.Status
}

func (e Expectation) String() string {
	if e.AnyFailure {
		return "NOT COMMITTED"
	}
	return e.Status.String()
}

// Attempt is what an After hook sees.
type Attempt struct {
	Tx     ledger.Transaction
	Result submit.Result
	Node   endpoint.Endpoint
}

// Scenario is one ordered, assertion-bearing step of a run.
type Scenario struct {
	Name  string
	Group string
	// Node is the 1-based node the transaction is sent to; 0 means node 1.
	Node     int
	Quorum   int
	Requires []Key
	Provides []Key
	Expect   Expectation

	// Before runs ahead of each attempt, e.g. to snapshot state the After hook
	// compares against.
	Before func(ctx context.Context, env *Env, out *Outputs) error
	// Commands builds the command list from earlier outputs. The runner builds
	// and signs the transaction.
	Commands func(in *Outputs) ([]ledger.Command, error)
	// Transaction, when set, supplies an already signed transaction instead.
	Transaction func(in *Outputs) (ledger.Transaction, error)
	// After runs once the expectation held. It extracts outputs and checks
	// state through queries; an error fails the scenario.
	After func(ctx context.Context, env *Env, att Attempt, out *Outputs) error
}

func (s Scenario) node() int {
	if s.Node <= 0 {
		return 1
	}
	return s.Node
}

func (s Scenario) quorum() int {
	if s.Quorum <= 0 {
		return 1
	}
	return s.Quorum
}

func (s Scenario) expectation() Expectation {
	if !s.Expect.AnyFailure && s.Expect.Status == ledger.StatusNotReceived {
		return ExpectCommitted()
	}
	return s.Expect
}

// ValidateOrder checks that every required key is provided by an earlier
// scenario or seeded, that names are unique, and that each scenario can build
// a transaction. nodes bounds Scenario.Node; zero skips that check.
func ValidateOrder(scenarios []Scenario, nodes int, seeded ...Key) error {
	available := make(map[Key]string, len(seeded))
	for _, k := range seeded {
		available[k] = "seed"
	}
	names := make(map[string]struct{}, len(scenarios))

	for i, s := range scenarios {
		if s.Name == "" {
			return errs.Newf(errs.KindInvalidOrder, "validate", "scenario %d has no name", i)
		}
		if _, dup := names[s.Name]; dup {
			return errs.Newf(errs.KindInvalidOrder, "validate", "scenario %s declared twice", s.Name)
		}
		names[s.Name] = struct{}{}

		if s.Commands == nil && s.Transaction == nil {
			return errs.Newf(errs.KindInvalidOrder, "validate", "scenario %s builds no transaction", s.Name)
		}
		if nodes > 0 && s.node() > nodes {
			return errs.Newf(errs.KindInvalidOrder, "validate", "scenario %s targets node %d of %d", s.Name, s.node(), nodes)
		}
		for _, k := range s.Requires {
			if _, ok := available[k]; !ok {
				return errs.Newf(errs.KindInvalidOrder, "validate",
					"scenario %s requires %s, which no earlier scenario provides", s.Name, k).
					WithContext("position", i+1)
			}
		}
		for _, k := range s.Provides {
			if _, ok := available[k]; !ok {
				available[k] = s.Name
			}
		}
	}
	return nil
}

func missing(s Scenario, out *Outputs) []Key {
	var keys []Key
	for _, k := range s.Requires {
		if !out.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (s Scenario) String() string {
	return fmt.Sprintf("%s@node%d", s.Name, s.node())
}
