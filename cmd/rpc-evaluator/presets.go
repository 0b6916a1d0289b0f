package main

import (
	"strconv"

	"github.com/R3E-Network/rpcpool/infrastructure/chains"
)

// preset is one endpoint to probe: a network name/chain_id plus a url.
type preset struct {
	ChainID uint64
	Chain   string
	Name    string
	URL     string
}

// defaultPresets is the built-in fallback registry used when no
// CHAINS_CONFIG_JSON / CHAINS_CONFIG_PATH override is configured. It covers
// a handful of widely available public endpoints so the evaluator runs out
// of the box.
var defaultPresets = []preset{
	{ChainID: 1, Chain: "ethereum", Name: "cloudflare", URL: "https://cloudflare-eth.com"},
	{ChainID: 1, Chain: "ethereum", Name: "ankr", URL: "https://rpc.ankr.com/eth"},
	{ChainID: 56, Chain: "bsc", Name: "binance", URL: "https://bsc-dataseed.binance.org"},
	{ChainID: 137, Chain: "polygon", Name: "polygon-rpc", URL: "https://polygon-rpc.com"},
}

// loadPresets returns the presets to evaluate for chainID (0 = all chains),
// preferring an external chains.Config registry over the built-in
// defaults when one loads successfully.
func loadPresets(chainID uint64) []preset {
	all := defaultPresets
	if cfg, err := chains.LoadConfig(); err == nil {
		all = presetsFromConfig(cfg)
	}

	if chainID == 0 {
		return all
	}
	filtered := make([]preset, 0, len(all))
	for _, p := range all {
		if p.ChainID == chainID {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func presetsFromConfig(cfg *chains.Config) []preset {
	var out []preset
	for _, network := range cfg.ActiveNetworks() {
		for i, url := range network.RPCUrls {
			name := network.Name
			if len(network.RPCUrls) > 1 {
				name = network.Name + "-" + strconv.Itoa(i)
			}
			out = append(out, preset{
				ChainID: network.ChainID,
				Chain:   network.Name,
				Name:    name,
				URL:     url,
			})
		}
	}
	return out
}
