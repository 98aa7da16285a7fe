package main

import (
	"context"
	"fmt"
	"log/slog"

	"pricebridge/core"
	"pricebridge/core/state"
	"pricebridge/crypto"
	"pricebridge/native/oracleclient"
	"pricebridge/native/pricefeed"
)

var deploymentKey = []byte("bridged/deployment")

// deployment records what the daemon instantiated on first start.
type deployment struct {
	Component crypto.NodeID
	Publisher crypto.NodeID
}

type bootstrapResult struct {
	client    *oracleclient.Client
	publisher crypto.Address
	created   bool
}

// bootstrap binds the bridge component, instantiating it (and on localnet the
// stand-in publisher) when the ledger has never seen one. A nil oracle means
// the stand-in publisher serves as the oracle.
func bootstrap(ctx context.Context, l *core.Ledger, variant oracleclient.Variant, oracle *crypto.Address, operator crypto.Address, logger *slog.Logger) (*bootstrapResult, error) {
	var (
		existing deployment
		found    bool
	)
	if err := l.View(func(st *state.Manager) error {
		var err error
		found, err = st.KVGet(deploymentKey, &existing)
		return err
	}); err != nil {
		return nil, fmt.Errorf("read deployment: %w", err)
	}
	if found {
		return rebind(l, existing, variant, oracle, logger)
	}

	result := &bootstrapResult{created: true}
	_, err := l.Execute(ctx, "instantiate_client", func(tx *core.Tx) (any, error) {
		oracleAddr := oracle
		if oracleAddr == nil {
			publisher, err := pricefeed.InstantiatePublisher(tx, logger)
			if err != nil {
				return nil, err
			}
			addr := publisher.Address()
			oracleAddr = &addr
			result.publisher = addr
		}
		switch variant {
		case oracleclient.VariantTrackedRecord:
			client, record, err := oracleclient.InstantiateTracked(tx, *oracleAddr, oracleclient.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			if err := tx.State().Deposit(operator.NodeID(), record); err != nil {
				return nil, err
			}
			result.client = client
		case oracleclient.VariantMintOnRead:
			client, err := oracleclient.InstantiateMinting(tx, *oracleAddr, oracleclient.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			result.client = client
		default:
			return nil, fmt.Errorf("unsupported variant %s", variant)
		}
		return nil, tx.State().KVPut(deploymentKey, &deployment{
			Component: result.client.Address().NodeID(),
			Publisher: result.publisher.NodeID(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("instantiate client: %w", err)
	}
	return result, nil
}

func rebind(l *core.Ledger, existing deployment, variant oracleclient.Variant, oracle *crypto.Address, logger *slog.Logger) (*bootstrapResult, error) {
	network := l.Network()
	result := &bootstrapResult{}
	var publisher *pricefeed.Publisher
	err := l.View(func(st *state.Manager) error {
		if !existing.Publisher.IsZero() {
			var err error
			publisher, err = pricefeed.LoadPublisher(st, crypto.NewAddress(network, existing.Publisher), logger)
			if err != nil {
				return err
			}
		}
		client, err := oracleclient.Load(st, crypto.NewAddress(network, existing.Component), oracleclient.WithLogger(logger))
		if err != nil {
			return err
		}
		result.client = client
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rebind deployment: %w", err)
	}
	if result.client.Variant() != variant {
		return nil, fmt.Errorf("ledger holds a %s component, config asks for %s", result.client.Variant(), variant)
	}
	if oracle != nil && result.client.Oracle() != *oracle {
		return nil, fmt.Errorf("component reads oracle %s, config names %s", result.client.Oracle(), oracle)
	}
	if publisher != nil {
		if err := l.Bind(publisher.Address(), publisher); err != nil {
			return nil, err
		}
		result.publisher = publisher.Address()
	}
	if err := l.Bind(result.client.Address(), result.client); err != nil {
		return nil, err
	}
	return result, nil
}
