package bank

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamwright/eventfold/core/es"
)

func TestAccount_Deposit(t *testing.T) {
	a := New("acc-1")

	require.NoError(t, a.Deposit(3000, "corr-1"))

	require.EqualValues(t, 3000, a.Balance)
	require.EqualValues(t, 1, a.GetGeneration())

	uncommitted := a.Uncommitted()
	require.Len(t, uncommitted, 1)
	dep, ok := uncommitted[0].(*FundsDeposited)
	require.True(t, ok)
	require.EqualValues(t, 3000, dep.Amount)
	require.Equal(t, "corr-1", dep.EventCorrelation())
}

func TestAccount_Withdraw(t *testing.T) {
	a := New("acc-1")
	require.NoError(t, a.Deposit(3000, ""))

	require.NoError(t, a.Withdraw(500, ""))

	require.EqualValues(t, 2500, a.Balance)
	require.EqualValues(t, 2, a.GetGeneration())
}

func TestAccount_Withdraw_insufficientFunds(t *testing.T) {
	a := New("acc-1")
	require.NoError(t, a.Deposit(400, ""))
	raisedBefore := len(a.Uncommitted())

	err := a.Withdraw(500, "")
	require.ErrorIs(t, err, ErrNotEnoughFunds)

	// a rejected command is a true no-op
	require.EqualValues(t, 400, a.Balance)
	require.EqualValues(t, 1, a.GetGeneration())
	require.Len(t, a.Uncommitted(), raisedBefore)
}

func TestAccount_Decide_unknownCommand(t *testing.T) {
	type bogus struct{ es.Correlated }

	a := New("acc-1")
	_, err := a.Decide(&bogus{})
	require.ErrorIs(t, err, es.ErrUnknownCommand)
}

func TestAccount_zeroAmountRejected(t *testing.T) {
	a := New("acc-1")
	require.Error(t, a.Deposit(0, ""))
	require.EqualValues(t, 0, a.Balance)
	require.EqualValues(t, 0, a.GetGeneration())
}

func TestAccount_generationMonotonic(t *testing.T) {
	a := New("acc-1")

	for i := 1; i <= 10; i++ {
		before := a.GetGeneration()
		require.NoError(t, a.Deposit(100, ""))
		require.Equal(t, before+1, a.GetGeneration())
	}
}

func TestAccount_replayDeterminism(t *testing.T) {
	events := []any{
		&FundsDeposited{AccountID: "acc-1", Amount: 3000},
		&FundsWithdrawn{AccountID: "acc-1", Amount: 500},
		&FundsDeposited{AccountID: "acc-1", Amount: 250},
	}

	a := New("acc-1")
	b := New("acc-1")
	require.NoError(t, es.ApplyAll(a, events...))
	require.NoError(t, es.ApplyAll(b, events...))

	require.Equal(t, a.Balance, b.Balance)
	require.Equal(t, a.GetGeneration(), b.GetGeneration())
	require.EqualValues(t, 2750, a.Balance)
}

func TestAccount_processor_batchPolicies(t *testing.T) {
	batch := func() []es.Command {
		return []es.Command{
			&WithdrawFunds{Correlated: es.Correlated{Correlation: "w1"}, AccountID: "acc-1", Amount: 80},
			&WithdrawFunds{Correlated: es.Correlated{Correlation: "w2"}, AccountID: "acc-1", Amount: 80},
		}
	}

	t.Run("snapshot isolation validates against the pre-batch state", func(t *testing.T) {
		a := New("acc-1")
		require.NoError(t, a.Deposit(100, ""))
		a.ClearUncommitted()

		p := es.NewProcessor(slog.Default())
		outcomes := p.Process(a, batch()...)

		require.Len(t, outcomes, 2)
		require.NoError(t, outcomes[0].Err)
		// second withdrawal does not see the first one's effect; the caller
		// accepts that replay can drive the balance below zero
		require.NoError(t, outcomes[1].Err)
		require.EqualValues(t, 100, a.Balance)
		require.Len(t, a.Uncommitted(), 2)
	})

	t.Run("chained validation folds accepted events before the next command", func(t *testing.T) {
		a := New("acc-1")
		require.NoError(t, a.Deposit(100, ""))
		a.ClearUncommitted()

		p := es.NewProcessor(slog.Default(), es.WithBatchPolicy(es.ChainedValidation))
		outcomes := p.Process(a, batch()...)

		require.Len(t, outcomes, 2)
		require.NoError(t, outcomes[0].Err)
		require.ErrorIs(t, outcomes[1].Err, ErrNotEnoughFunds)
		require.EqualValues(t, 20, a.Balance)
		require.Len(t, a.Uncommitted(), 1)
	})
}

func TestAccount_processor_outcomeCorrelation(t *testing.T) {
	a := New("acc-1")

	p := es.NewProcessor(slog.Default(), es.WithBatchPolicy(es.ChainedValidation))
	outcomes := p.Process(a,
		&DepositFunds{Correlated: es.Correlated{Correlation: "d1"}, AccountID: "acc-1", Amount: 3000},
		&WithdrawFunds{Correlated: es.Correlated{Correlation: "w1"}, AccountID: "acc-1", Amount: 9000},
	)

	require.Len(t, outcomes, 2)

	require.Equal(t, "d1", outcomes[0].Correlation)
	require.True(t, outcomes[0].Accepted())
	require.Len(t, outcomes[0].Events, 1)

	// a rejection never aborts the batch
	require.Equal(t, "w1", outcomes[1].Correlation)
	require.ErrorIs(t, outcomes[1].Err, ErrNotEnoughFunds)
	require.Nil(t, outcomes[1].Events)
}

func TestAccount_repositoryRoundtrip(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(Account)))
	repo := es.NewTypedRepositoryFrom[*Account](slog.Default(), te.Repository())
	defer repo.Close()

	a, err := repo.Create(t.Context(), "acc-42")
	require.NoError(t, err)
	require.NoError(t, a.Deposit(3000, "c1"))
	require.NoError(t, a.Withdraw(500, "c2"))
	require.NoError(t, repo.Save(t.Context(), a))

	loaded, err := repo.GetByID(t.Context(), "acc-42")
	require.NoError(t, err)
	require.EqualValues(t, 2500, loaded.Balance)
	require.Equal(t, a.GetVersion(), loaded.GetVersion())
	require.Equal(t, loaded.GetVersion(), loaded.GetGeneration())
}
