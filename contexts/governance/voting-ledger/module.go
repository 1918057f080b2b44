package votingledger

import (
	"context"
	"log/slog"
	"math/big"

	httpadapter "votingledger/contexts/governance/voting-ledger/adapters/http"
	"votingledger/contexts/governance/voting-ledger/adapters/memory"
	"votingledger/contexts/governance/voting-ledger/application/commands"
	"votingledger/contexts/governance/voting-ledger/application/queries"
	"votingledger/contexts/governance/voting-ledger/ports"

	"github.com/ethereum/go-ethereum/common"
)

type Module struct {
	Handler httpadapter.Handler
	Ledger  ports.Ledger
	Store   *memory.Store
}

type Dependencies struct {
	Ledger        ports.Ledger
	Clock         ports.Clock
	IDGen         ports.IDGenerator
	EntryFee      *big.Int
	CommissionBps uint64
	Logger        *slog.Logger
}

func NewModule(deps Dependencies) Module {
	entryFee := deps.EntryFee
	if entryFee == nil || entryFee.Sign() <= 0 {
		entryFee = commands.DefaultEntryFee()
	}
	rounds := commands.RoundUseCase{
		Ledger:        deps.Ledger,
		Clock:         deps.Clock,
		IDGen:         deps.IDGen,
		EntryFee:      entryFee,
		CommissionBps: deps.CommissionBps,
		Logger:        deps.Logger,
	}
	treasury := commands.TreasuryUseCase{
		Ledger: deps.Ledger,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Rounds:        rounds,
			Treasury:      treasury,
			RoundQueries:  queries.RoundQueryUseCase{Ledger: deps.Ledger},
			TreasuryQuery: queries.TreasuryQueryUseCase{Ledger: deps.Ledger},
			Logger:        deps.Logger,
		},
		Ledger: deps.Ledger,
	}
}

// NewInMemoryModule builds a module on a fresh memory store owned by owner,
// with the default entry fee and commission rate.
func NewInMemoryModule(owner common.Address, logger *slog.Logger) (Module, error) {
	store := memory.NewStore()
	if _, err := store.InitRegistry(context.Background(), owner, store.Now()); err != nil {
		return Module{}, err
	}
	module := NewModule(Dependencies{
		Ledger:        store,
		Clock:         store,
		IDGen:         store,
		EntryFee:      commands.DefaultEntryFee(),
		CommissionBps: commands.DefaultCommissionBps,
		Logger:        logger,
	})
	module.Store = store
	return module, nil
}
