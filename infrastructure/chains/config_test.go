package chains_test

import (
	"testing"

	"github.com/R3E-Network/rpcpool/infrastructure/chains"
)

func TestNetworkConfigRejectsMissingRPCUrls(t *testing.T) {
	cfg := &chains.Config{Networks: []chains.NetworkConfig{
		{ID: "ethereum-mainnet", Name: "Ethereum Mainnet"},
	}}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for network with no rpc_urls")
	}
}

func TestNetworkConfigRejectsDuplicateIDs(t *testing.T) {
	cfg := &chains.Config{Networks: []chains.NetworkConfig{
		{ID: "ethereum-mainnet", RPCUrls: []string{"https://rpc1.example.com"}},
		{ID: "ethereum-mainnet", RPCUrls: []string{"https://rpc2.example.com"}},
	}}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for duplicate network id")
	}
}

func TestLoadConfigFromBytes(t *testing.T) {
	raw := []byte(`{"networks":[{"id":"ethereum-mainnet","name":"Ethereum Mainnet","status":"active","chain_id":1,"rpc_urls":["https://rpc1.example.com","https://rpc2.example.com"]}]}`)

	cfg, err := chains.LoadConfigFromBytes(raw)
	if err != nil {
		t.Fatalf("LoadConfigFromBytes() error = %v", err)
	}

	network, ok := cfg.GetNetwork("ethereum-mainnet")
	if !ok {
		t.Fatal("GetNetwork() did not find ethereum-mainnet")
	}
	if len(network.RPCUrls) != 2 {
		t.Errorf("RPCUrls length = %d, want 2", len(network.RPCUrls))
	}

	active := cfg.ActiveNetworks()
	if len(active) != 1 {
		t.Errorf("ActiveNetworks() length = %d, want 1", len(active))
	}
}

func TestLoadConfigFromBytesEmpty(t *testing.T) {
	if _, err := chains.LoadConfigFromBytes(nil); err == nil {
		t.Fatal("expected error for empty config")
	}
}
