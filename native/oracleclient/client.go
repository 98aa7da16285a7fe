package oracleclient

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"pricebridge/core"
	"pricebridge/core/events"
	"pricebridge/core/state"
	"pricebridge/crypto"
	"pricebridge/observability"
)

// Client is the ledger-resident bridge component. It reads the configured
// oracle and reflects the reading into the state it owns: the tracked record
// or the proxy resource, depending on the variant it was instantiated with.
type Client struct {
	address   crypto.Address
	variant   Variant
	gateway   *Gateway
	resource  crypto.NodeID
	authority *Authority
	logger    *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newClient(address crypto.Address, stored componentState, gateway *Gateway, opts []Option) *Client {
	c := &Client{
		address:  address,
		variant:  Variant(stored.Variant),
		gateway:  gateway,
		resource: stored.Resource,
		logger:   slog.Default(),
	}
	if c.variant == VariantTrackedRecord {
		c.authority = newAuthority(address.NodeID(), stored.Badge)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(
		slog.String("component", address.String()),
		slog.String("variant", c.variant.String()))
	return c
}

// InstantiateTracked creates the tracked-record variant: the admin badge, the
// FEED_PRICE record resource holding the single record with the {0, 0}
// sentinel, and the component itself. The record is returned in a bucket; the
// badge stays in the component's vault.
func InstantiateTracked(tx *core.Tx, oracle crypto.Address, opts ...Option) (*Client, state.Bucket, error) {
	gateway, err := NewGateway(oracle)
	if err != nil {
		return nil, state.Bucket{}, err
	}
	st := tx.State()
	componentAddr, err := tx.AllocateAddress(crypto.EntityComponent)
	if err != nil {
		return nil, state.Bucket{}, err
	}
	badgeAddr, err := tx.AllocateAddress(crypto.EntityFungibleResource)
	if err != nil {
		return nil, state.Bucket{}, err
	}
	badge, err := st.CreateFungibleResource(badgeAddr.NodeID(), &state.ResourceDefinition{
		Kind:     state.FungibleResource,
		MintRule: state.DenyAll(),
	}, badgeAmount())
	if err != nil {
		return nil, state.Bucket{}, fmt.Errorf("oracleclient: create admin badge: %w", err)
	}

	recordAddr, err := tx.AllocateAddress(crypto.EntityNonFungibleResource)
	if err != nil {
		return nil, state.Bucket{}, err
	}
	adminOnly := state.Require(badgeAddr.NodeID())
	record, err := st.CreateNonFungibleResource(recordAddr.NodeID(), &state.ResourceDefinition{
		Kind: state.NonFungibleResource,
		Metadata: []state.MetadataEntry{
			{Key: "name", Value: recordName, Locked: true},
			{Key: "description", Value: recordDescription, Locked: true},
		},
		MintRule:           state.DenyAll(),
		DataUpdater:        adminOnly,
		DataUpdaterUpdater: adminOnly,
	}, []state.NonFungibleEntry{{
		ID:     TrackedRecordLocalID(),
		Fields: PriceTokenData{Price: decimal.Zero}.fields(),
	}})
	if err != nil {
		return nil, state.Bucket{}, fmt.Errorf("oracleclient: create price record: %w", err)
	}

	if err := st.Deposit(componentAddr.NodeID(), badge); err != nil {
		return nil, state.Bucket{}, err
	}
	stored := componentState{
		Variant:  uint8(VariantTrackedRecord),
		Oracle:   oracle.NodeID(),
		Resource: recordAddr.NodeID(),
		Badge:    badgeAddr.NodeID(),
	}
	if err := st.KVPut(componentStateKey(componentAddr.NodeID()), &stored); err != nil {
		return nil, state.Bucket{}, err
	}
	client := newClient(componentAddr, stored, gateway, opts)
	if err := tx.Globalize(componentAddr, client); err != nil {
		return nil, state.Bucket{}, err
	}
	client.logger.Info("tracked price record instantiated",
		slog.String("oracle", oracle.String()),
		slog.String("record", recordAddr.String()))
	return client, record, nil
}

// InstantiateMinting creates the mint-on-read variant: a proxy resource with
// an unrestricted mint rule and no initial supply, and the component.
func InstantiateMinting(tx *core.Tx, oracle crypto.Address, opts ...Option) (*Client, error) {
	gateway, err := NewGateway(oracle)
	if err != nil {
		return nil, err
	}
	st := tx.State()
	componentAddr, err := tx.AllocateAddress(crypto.EntityComponent)
	if err != nil {
		return nil, err
	}
	proxyAddr, err := tx.AllocateAddress(crypto.EntityFungibleResource)
	if err != nil {
		return nil, err
	}
	if _, err := st.CreateFungibleResource(proxyAddr.NodeID(), &state.ResourceDefinition{
		Kind:         state.FungibleResource,
		Divisibility: state.DecimalScale,
		Metadata:     []state.MetadataEntry{{Key: "name", Value: proxyName, Locked: true}},
		MintRule:     state.AllowAll(),
	}, nil); err != nil {
		return nil, fmt.Errorf("oracleclient: create proxy resource: %w", err)
	}
	stored := componentState{
		Variant:  uint8(VariantMintOnRead),
		Oracle:   oracle.NodeID(),
		Resource: proxyAddr.NodeID(),
	}
	if err := st.KVPut(componentStateKey(componentAddr.NodeID()), &stored); err != nil {
		return nil, err
	}
	client := newClient(componentAddr, stored, gateway, opts)
	if err := tx.Globalize(componentAddr, client); err != nil {
		return nil, err
	}
	client.logger.Info("proxy minter instantiated",
		slog.String("oracle", oracle.String()),
		slog.String("resource", proxyAddr.String()))
	return client, nil
}

// Load rebuilds a previously instantiated component from state.
func Load(st *state.Manager, addr crypto.Address, opts ...Option) (*Client, error) {
	var stored componentState
	ok, err := st.KVGet(componentStateKey(addr.NodeID()), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInstantiated, addr)
	}
	switch Variant(stored.Variant) {
	case VariantTrackedRecord, VariantMintOnRead:
	default:
		return nil, fmt.Errorf("oracleclient: %s has unknown variant %d", addr, stored.Variant)
	}
	gateway, err := NewGateway(crypto.NewAddress(addr.Network(), stored.Oracle))
	if err != nil {
		return nil, err
	}
	return newClient(addr, stored, gateway, opts), nil
}

func (c *Client) Address() crypto.Address { return c.address }

func (c *Client) Variant() Variant { return c.variant }

func (c *Client) Oracle() crypto.Address { return c.gateway.Address() }

// Resource returns the owned resource: the record resource or the proxy.
func (c *Client) Resource() crypto.Address {
	return crypto.NewAddress(c.address.Network(), c.resource)
}

// Call dispatches ledger method calls.
func (c *Client) Call(tx *core.Tx, method string, args ...any) (any, error) {
	switch method {
	case MethodUpdateToken:
		return nil, c.UpdateToken(tx)
	case MethodCashXRD:
		return c.CashXRD(tx)
	default:
		return nil, core.MethodNotFound(method)
	}
}

// UpdateToken reads the oracle and, when it reports a snapshot, overwrites the
// tracked record's price and timestamp together under the admin badge. No
// snapshot means no effect. It must run as the component (through tx.Call),
// since only the component can draw on its badge vault.
func (c *Client) UpdateToken(tx *core.Tx) error {
	metrics := observability.OracleClient()
	if c.variant != VariantTrackedRecord {
		return fmt.Errorf("%w: %s on %s", ErrWrongVariant, MethodUpdateToken, c.variant)
	}
	snapshot, err := c.gateway.Fetch(tx)
	if err != nil {
		metrics.RecordSync(MethodUpdateToken, "error")
		return err
	}
	if snapshot == nil {
		c.logger.Debug("oracle reported no price")
		tx.OnCommit(func() { metrics.RecordSync(MethodUpdateToken, "no_data") })
		return nil
	}
	data := PriceTokenData{Price: snapshot.Price, Timestamp: snapshot.Timestamp}
	if err := c.authority.ApplyAuthorized(tx.State(), c.resource, TrackedRecordLocalID(), data.updates()); err != nil {
		metrics.RecordSync(MethodUpdateToken, "error")
		return fmt.Errorf("oracleclient: update record: %w", err)
	}
	tx.Emit(events.OracleRecordUpdated{
		Component: c.address.String(),
		Resource:  c.Resource().String(),
		LocalID:   TrackedRecordLocalID().String(),
		Price:     data.Price,
		Timestamp: data.Timestamp,
	})
	tx.OnCommit(func() {
		metrics.RecordSync(MethodUpdateToken, "updated")
		metrics.RecordPrice(data.Price, data.Timestamp)
	})
	c.logger.Debug("price record updated",
		slog.String("price", data.Price.String()),
		slog.Int64("timestamp", data.Timestamp))
	return nil
}

// CashXRD reads the oracle and mints proxy units equal to the reported price.
// Without a snapshot an empty bucket is returned. Negative prices, and prices
// finer than the ledger's decimal precision, are rejected.
func (c *Client) CashXRD(tx *core.Tx) (state.Bucket, error) {
	metrics := observability.OracleClient()
	if c.variant != VariantMintOnRead {
		return state.Bucket{}, fmt.Errorf("%w: %s on %s", ErrWrongVariant, MethodCashXRD, c.variant)
	}
	snapshot, err := c.gateway.Fetch(tx)
	if err != nil {
		metrics.RecordSync(MethodCashXRD, "error")
		return state.Bucket{}, err
	}
	if snapshot == nil {
		tx.OnCommit(func() { metrics.RecordSync(MethodCashXRD, "no_data") })
		return state.EmptyBucket(c.resource), nil
	}
	if snapshot.Price.IsNegative() {
		metrics.RecordSync(MethodCashXRD, "error")
		return state.Bucket{}, fmt.Errorf("%w: %s is negative", ErrInvalidPrice, snapshot.Price)
	}
	amount, err := state.ToAtto(snapshot.Price)
	if err != nil {
		metrics.RecordSync(MethodCashXRD, "error")
		return state.Bucket{}, fmt.Errorf("%w: %w", ErrInvalidPrice, err)
	}
	bucket, total, err := tx.State().Mint(nil, c.resource, amount)
	if err != nil {
		metrics.RecordSync(MethodCashXRD, "error")
		return state.Bucket{}, fmt.Errorf("oracleclient: mint proxy: %w", err)
	}
	tx.Emit(events.TokenSupply{
		Resource: c.Resource().String(),
		Total:    total,
		Delta:    amount,
		Reason:   events.SupplyReasonMint,
	})
	tx.OnCommit(func() {
		metrics.RecordSync(MethodCashXRD, "minted")
		metrics.RecordMint(snapshot.Price)
	})
	return bucket, nil
}

// Record returns the tracked record's current data.
func (c *Client) Record(st *state.Manager) (PriceTokenData, error) {
	if c.variant != VariantTrackedRecord {
		return PriceTokenData{}, fmt.Errorf("%w: record on %s", ErrWrongVariant, c.variant)
	}
	fields, ok, err := st.NonFungibleData(c.resource, TrackedRecordLocalID())
	if err != nil {
		return PriceTokenData{}, err
	}
	if !ok {
		return PriceTokenData{}, fmt.Errorf("%w: %s", state.ErrNonFungibleNotFound, TrackedRecordLocalID())
	}
	return decodePriceTokenData(fields)
}

// Supply returns the total issued proxy quantity.
func (c *Client) Supply(st *state.Manager) (decimal.Decimal, error) {
	if c.variant != VariantMintOnRead {
		return decimal.Zero, fmt.Errorf("%w: supply on %s", ErrWrongVariant, c.variant)
	}
	total, err := st.ResourceSupply(c.resource)
	if err != nil {
		return decimal.Zero, err
	}
	return state.FromAtto(total), nil
}
