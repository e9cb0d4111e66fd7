// Package bank models a single bank account as an event-sourced aggregate:
// a scalar balance guarded against overdraft, with deposits and withdrawals
// recorded as events.
package bank

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streamwright/eventfold/core/es"
	"github.com/streamwright/eventfold/core/es/assert"
)

const AggType = "account"

var ErrNotEnoughFunds = errors.New("not enough funds")

// === Events ===

type (
	FundsDeposited struct {
		AccountID   string `json:"account_id"`
		Amount      uint64 `json:"amount"`
		Correlation string `json:"correlation,omitempty"`
	}

	FundsWithdrawn struct {
		AccountID   string `json:"account_id"`
		Amount      uint64 `json:"amount"`
		Correlation string `json:"correlation,omitempty"`
	}
)

func (e FundsDeposited) EventCorrelation() string { return e.Correlation }
func (e FundsWithdrawn) EventCorrelation() string { return e.Correlation }

func (e FundsDeposited) Validate() error {
	if e.Amount == 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func (e FundsWithdrawn) Validate() error {
	if e.Amount == 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

// === Commands ===

type (
	DepositFunds struct {
		es.Correlated
		AccountID string `json:"account_id"`
		Amount    uint64 `json:"amount"`
	}

	WithdrawFunds struct {
		es.Correlated
		AccountID string `json:"account_id"`
		Amount    uint64 `json:"amount"`
	}
)

// === Aggregate ===

// Account holds the projected state of one bank account. Balance is a
// widened signed accumulator so the overdraft guard cannot underflow even
// though amounts on the wire are unsigned.
type Account struct {
	es.BaseAggregate

	Balance int64 `json:"balance"`
}

func New(id string) *Account {
	a := &Account{}
	a.SetID(id)
	return a
}

func (a *Account) GetAggType() string { return AggType }

func (a *Account) Register(r es.Registrar) {
	es.RegisterEvents(r, es.Event[FundsDeposited](), es.Event[FundsWithdrawn]())
}

func (a *Account) Snapshot() (data []byte, err error) { return json.Marshal(a) }
func (a *Account) RestoreSnapshot(data []byte) error  { return json.Unmarshal(data, a) }

func (a *Account) Apply(event any) error {
	switch e := event.(type) {
	case *FundsDeposited:
		a.Balance += int64(e.Amount)
	case *FundsWithdrawn:
		a.Balance -= int64(e.Amount)
	default:
		return a.BaseAggregate.Apply(event)
	}
	return nil
}

func (a *Account) Decide(cmd es.Command) ([]any, error) {
	switch c := cmd.(type) {
	case *DepositFunds:
		return []any{&FundsDeposited{
			AccountID:   c.AccountID,
			Amount:      c.Amount,
			Correlation: c.CommandCorrelation(),
		}}, nil

	case *WithdrawFunds:
		if err := assert.CheckErr(
			assert.True(a.Balance-int64(c.Amount) >= 0, "balance covers withdrawal"),
			fmt.Errorf("%w: account %s balance %d, requested %d", ErrNotEnoughFunds, a.GetID(), a.Balance, c.Amount),
		); err != nil {
			return nil, err
		}
		return []any{&FundsWithdrawn{
			AccountID:   c.AccountID,
			Amount:      c.Amount,
			Correlation: c.CommandCorrelation(),
		}}, nil
	}
	return nil, fmt.Errorf("%w: %T", es.ErrUnknownCommand, cmd)
}

// === Direct operations ===

func (a *Account) Deposit(amount uint64, correlation string) error {
	events, err := a.Decide(&DepositFunds{
		Correlated: es.Correlated{Correlation: correlation},
		AccountID:  a.GetID(),
		Amount:     amount,
	})
	if err != nil {
		return err
	}
	return es.RaiseAndApply(a, events...)
}

func (a *Account) Withdraw(amount uint64, correlation string) error {
	events, err := a.Decide(&WithdrawFunds{
		Correlated: es.Correlated{Correlation: correlation},
		AccountID:  a.GetID(),
		Amount:     amount,
	})
	if err != nil {
		return err
	}
	return es.RaiseAndApply(a, events...)
}

var (
	_ es.DecidingAggregate = (*Account)(nil)
	_ es.Snapshottable     = (*Account)(nil)
)
