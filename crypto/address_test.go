package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	id := DeriveNodeID(EntityComponent, []byte("publisher"))
	addr := NewAddress(Stokenet, id)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, "component_tdx_2_1") {
		t.Fatalf("unexpected prefix: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded, Stokenet)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %v != %v", decoded, addr)
	}
}

func TestDecodeAddressRejectsOtherNetwork(t *testing.T) {
	addr := NewAddress(Mainnet, DeriveNodeID(EntityFungibleResource, []byte("proxy")))
	if _, err := DecodeAddress(addr.String(), Localnet); err == nil {
		t.Fatalf("expected network mismatch error")
	}
}

func TestNetworkByName(t *testing.T) {
	n, err := NetworkByName(" Testnet-E ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if n != TestnetE {
		t.Fatalf("unexpected network %+v", n)
	}
	if _, err := NetworkByName("devnet"); err == nil {
		t.Fatalf("expected unknown network error")
	}
}
