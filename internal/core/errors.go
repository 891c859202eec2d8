package core

import "fmt"

// Kind classifies every failure the pool can report. The set is closed:
// callers branch on kinds, never on message text.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidAmount
	KindInsufficientLiquidity
	KindInsufficientBalance
	KindInvalidCollateral
	KindStaleOraclePrice
	KindUTXORaceCondition
	KindPositionNotFound
	KindPositionHealthy
	KindDivideByZero
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInsufficientLiquidity:
		return "insufficient_liquidity"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindInvalidCollateral:
		return "invalid_collateral"
	case KindStaleOraclePrice:
		return "stale_oracle_price"
	case KindUTXORaceCondition:
		return "utxo_race_condition"
	case KindPositionNotFound:
		return "position_not_found"
	case KindPositionHealthy:
		return "position_healthy"
	case KindDivideByZero:
		return "divide_by_zero"
	default:
		return "internal"
	}
}

// Error is the pool's error type. Two Errors match under errors.Is when
// their kinds match, so tests and callers compare against the exported
// sentinels below.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Matching sentinels.
var (
	ErrInternal              = &Error{Kind: KindInternal}
	ErrInvalidAmount         = &Error{Kind: KindInvalidAmount}
	ErrInsufficientLiquidity = &Error{Kind: KindInsufficientLiquidity}
	ErrInsufficientBalance   = &Error{Kind: KindInsufficientBalance}
	ErrInvalidCollateral     = &Error{Kind: KindInvalidCollateral}
	ErrStaleOraclePrice      = &Error{Kind: KindStaleOraclePrice}
	ErrUTXORaceCondition     = &Error{Kind: KindUTXORaceCondition}
	ErrPositionNotFound      = &Error{Kind: KindPositionNotFound}
	ErrPositionHealthy       = &Error{Kind: KindPositionHealthy}
	ErrDivideByZero          = &Error{Kind: KindDivideByZero}
)

func errf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
