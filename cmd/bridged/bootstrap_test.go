package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"pricebridge/core"
	"pricebridge/core/state"
	"pricebridge/crypto"
	"pricebridge/native/oracleclient"
	"pricebridge/native/pricefeed"
	"pricebridge/rpc"
	"pricebridge/storage"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func openLedger(t *testing.T, dir string) (*core.Ledger, func()) {
	t.Helper()
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	l, err := core.New(db, crypto.Localnet, core.WithLogger(quiet()))
	if err != nil {
		db.Close()
		t.Fatalf("new ledger: %v", err)
	}
	return l, db.Close
}

func TestBootstrapInstantiatesThenRebinds(t *testing.T) {
	dir := t.TempDir()
	operator := rpc.OperatorAddress(crypto.Localnet)

	l, closeDB := openLedger(t, dir)
	first, err := bootstrap(context.Background(), l, oracleclient.VariantTrackedRecord, nil, operator, quiet())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !first.created || first.publisher.IsZero() {
		t.Fatalf("expected fresh deployment with a local publisher")
	}
	if first.client.Oracle() != first.publisher {
		t.Fatalf("client should read the local publisher")
	}
	if err := l.View(func(st *state.Manager) error {
		held, err := st.VaultBalance(operator.NodeID(), first.client.Resource().NodeID())
		if err != nil {
			return err
		}
		if held.Int64() != 1 {
			t.Fatalf("operator should hold the record, holds %s", held)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	_, err = l.Execute(context.Background(), "publish", func(tx *core.Tx) (any, error) {
		return tx.Call(first.publisher, pricefeed.MethodSetPrice, "42.5", int64(1000))
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	closeDB()

	l, closeDB = openLedger(t, dir)
	defer closeDB()
	second, err := bootstrap(context.Background(), l, oracleclient.VariantTrackedRecord, nil, operator, quiet())
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if second.created {
		t.Fatalf("expected existing deployment to be reused")
	}
	if second.client.Address() != first.client.Address() || second.publisher != first.publisher {
		t.Fatalf("rebind resolved different addresses")
	}

	if _, err := l.Execute(context.Background(), oracleclient.MethodUpdateToken, func(tx *core.Tx) (any, error) {
		return tx.Call(second.client.Address(), oracleclient.MethodUpdateToken)
	}); err != nil {
		t.Fatalf("update token after restart: %v", err)
	}
	var record oracleclient.PriceTokenData
	if err := l.View(func(st *state.Manager) error {
		var err error
		record, err = second.client.Record(st)
		return err
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !record.Price.Equal(decimal.RequireFromString("42.5")) || record.Timestamp != 1000 {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestBootstrapRejectsVariantChange(t *testing.T) {
	dir := t.TempDir()
	operator := rpc.OperatorAddress(crypto.Localnet)

	l, closeDB := openLedger(t, dir)
	if _, err := bootstrap(context.Background(), l, oracleclient.VariantMintOnRead, nil, operator, quiet()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	closeDB()

	l, closeDB = openLedger(t, dir)
	defer closeDB()
	_, err := bootstrap(context.Background(), l, oracleclient.VariantTrackedRecord, nil, operator, quiet())
	if err == nil || !strings.Contains(err.Error(), "config asks for tracked") {
		t.Fatalf("expected variant mismatch, got %v", err)
	}
}

func TestBootstrapWithExternalOracle(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	l, err := core.New(db, crypto.Localnet, core.WithLogger(quiet()))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	oracle := crypto.NewAddress(crypto.Localnet, crypto.DeriveNodeID(crypto.EntityComponent, []byte("external")))
	deployed, err := bootstrap(context.Background(), l, oracleclient.VariantMintOnRead, &oracle, rpc.OperatorAddress(crypto.Localnet), quiet())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !deployed.publisher.IsZero() {
		t.Fatalf("no publisher expected with an external oracle")
	}
	if deployed.client.Oracle() != oracle {
		t.Fatalf("client bound to wrong oracle")
	}
}
