package ledger

import (
	"fmt"
	"strings"
)

// Status is a position in a transaction's commit pipeline.
type Status int

const (
	StatusNotReceived Status = iota
	StatusStatelessValidationSuccess
	StatusStatelessValidationFailed
	StatusEnoughSignaturesCollected
	StatusStatefulValidationSuccess
	StatusStatefulValidationFailed
	StatusCommitted
	StatusRejected
	StatusMSTPending
	StatusMSTExpired
)

var statusNames = map[Status]string{
	StatusNotReceived:                "NOT_RECEIVED",
	StatusStatelessValidationSuccess: "STATELESS_VALIDATION_SUCCESS",
	StatusStatelessValidationFailed:  "STATELESS_VALIDATION_FAILED",
	StatusEnoughSignaturesCollected:  "ENOUGH_SIGNATURES_COLLECTED",
	StatusStatefulValidationSuccess:  "STATEFUL_VALIDATION_SUCCESS",
	StatusStatefulValidationFailed:   "STATEFUL_VALIDATION_FAILED",
	StatusCommitted:                  "COMMITTED",
	StatusRejected:                   "REJECTED",
	StatusMSTPending:                 "MST_PENDING",
	StatusMSTExpired:                 "MST_EXPIRED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusStatelessValidationFailed,
		StatusStatefulValidationFailed,
		StatusCommitted,
		StatusRejected,
		StatusMSTExpired:
		return true
	default:
		return false
	}
}

// ParseStatus accepts the canonical upper-case names, case-insensitively.
func ParseStatus(s string) (Status, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == want {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
