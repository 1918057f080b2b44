package httpadapter

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"votingledger/contexts/governance/voting-ledger/adapters/memory"
	"votingledger/contexts/governance/voting-ledger/application/commands"
	"votingledger/contexts/governance/voting-ledger/application/queries"
	domainerrors "votingledger/contexts/governance/voting-ledger/domain/errors"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddress(t *testing.T) {
	want := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	for _, raw := range []string{
		"0x00000000000000000000000000000000000000a1",
		" 0x00000000000000000000000000000000000000A1 ",
		"00000000000000000000000000000000000000a1",
	} {
		got, err := ParseAddress(raw)
		if err != nil {
			t.Fatalf("parse %q failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want.Hex(), got.Hex())
		}
	}
	for _, raw := range []string{"", "0x1234", "0x0000000000000000000000000000000000000000", "not-an-address"} {
		if _, err := ParseAddress(raw); !errors.Is(err, domainerrors.ErrInvalidInput) {
			t.Fatalf("parse %q: expected invalid input, got %v", raw, err)
		}
	}
}

func TestParseRoundIDAndWei(t *testing.T) {
	if id, err := ParseRoundID("12"); err != nil || id != 12 {
		t.Fatalf("expected 12, got %d err=%v", id, err)
	}
	if _, err := ParseRoundID("-1"); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if wei, err := ParseWei("10000000000000000"); err != nil || wei.String() != "10000000000000000" {
		t.Fatalf("unexpected wei parse: %v err=%v", wei, err)
	}
	for _, raw := range []string{"", "-5", "0.01", "1e16"} {
		if _, err := ParseWei(raw); !errors.Is(err, domainerrors.ErrInvalidInput) {
			t.Fatalf("parse wei %q: expected invalid input, got %v", raw, err)
		}
	}
}

func TestTreasuryReportsTheFeeVotesAreCheckedAgainst(t *testing.T) {
	store := memory.NewStore()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	if _, err := store.InitRegistry(context.Background(), owner, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("init registry failed: %v", err)
	}

	for _, fee := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1), big.NewInt(5)} {
		handler := Handler{
			Rounds:        commands.RoundUseCase{Ledger: store, EntryFee: fee, CommissionBps: commands.DefaultCommissionBps},
			TreasuryQuery: queries.TreasuryQueryUseCase{Ledger: store},
		}
		resp, err := handler.TreasuryHandler(context.Background())
		if err != nil {
			t.Fatalf("fee %v: treasury failed: %v", fee, err)
		}
		if want := handler.Rounds.CurrentEntryFee().String(); resp.EntryFeeWei != want {
			t.Fatalf("fee %v: expected entry fee %s, got %s", fee, want, resp.EntryFeeWei)
		}
		if fee == nil || fee.Sign() <= 0 {
			if resp.EntryFeeWei != "10000000000000000" {
				t.Fatalf("fee %v: expected default entry fee, got %s", fee, resp.EntryFeeWei)
			}
		}
		if resp.Owner != owner.Hex() {
			t.Fatalf("unexpected owner %s", resp.Owner)
		}
	}
}
