package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"pricebridge/crypto"
	"pricebridge/native/oracleclient"
)

// Network resolves the configured network. Unknown names need NetworkHRP.
func (c *Config) Network() (crypto.Network, error) {
	network, err := crypto.NetworkByName(c.NetworkName)
	if err == nil {
		return network, nil
	}
	hrp := strings.TrimSpace(c.NetworkHRP)
	if errors.Is(err, crypto.ErrUnknownNetwork) && hrp != "" {
		return crypto.Network{Name: strings.TrimSpace(c.NetworkName), HRPSuffix: hrp}, nil
	}
	return crypto.Network{}, err
}

// OracleAddress decodes the configured oracle component. The boolean is false
// when no address is configured.
func (c *Config) OracleAddress() (crypto.Address, bool, error) {
	raw := strings.TrimSpace(c.Oracle.Component)
	if raw == "" {
		return crypto.Address{}, false, nil
	}
	network, err := c.Network()
	if err != nil {
		return crypto.Address{}, false, err
	}
	addr, err := crypto.DecodeAddress(raw, network)
	if err != nil {
		return crypto.Address{}, false, fmt.Errorf("oracle: %w", err)
	}
	if addr.EntityType() != crypto.EntityComponent {
		return crypto.Address{}, false, fmt.Errorf("oracle: %s is not a component address", raw)
	}
	return addr, true, nil
}

// Validate checks the configuration before the bridge starts.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	network, err := c.Network()
	if err != nil {
		return err
	}
	if _, err := oracleclient.ParseVariant(c.Variant); err != nil {
		return err
	}
	_, ok, err := c.OracleAddress()
	if err != nil {
		return err
	}
	if !ok && network != crypto.Localnet {
		return fmt.Errorf("oracle: Component is required on %s", network.Name)
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: Burst must not be negative")
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		proxy = strings.TrimSpace(proxy)
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("ratelimit: invalid trusted proxy %q", proxy)
		}
	}
	if c.Telemetry.Ratio < 0 || c.Telemetry.Ratio > 1 {
		return fmt.Errorf("telemetry: Ratio must be within [0, 1]")
	}
	return nil
}
