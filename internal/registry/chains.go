package registry

// DefaultProfiles lists the chains known out of the box.
func DefaultProfiles() []ChainProfile {
	return []ChainProfile{
		{
			Name:      "KiChain",
			Prefix:    "ki",
			ChainID:   "kichain-2",
			Endpoints: []string{"https://api-mainnet.blockchain.ki"},
		},
		{
			Name:      "KiChain Testnet",
			Prefix:    "tki",
			Endpoints: []string{"https://api-challenge.blockchain.ki"},
		},
		{
			Name:    "Osmosis",
			Prefix:  "osmo",
			ChainID: "osmosis-1",
			Endpoints: []string{
				"https://lcd.osmosis.zone",
				"https://osmosis-api.polkachu.com",
			},
		},
		{
			Name:    "Juno",
			Prefix:  "juno",
			ChainID: "juno-1",
			Endpoints: []string{
				"https://api-juno-ia.cosmosia.notional.ventures",
				"https://juno-api.polkachu.com",
			},
		},
		{
			Name:    "Stargaze",
			Prefix:  "stars",
			ChainID: "stargaze-1",
			Endpoints: []string{
				"https://rest.stargaze-apis.com",
				"https://stargaze-api.polkachu.com",
			},
		},
		{
			Name:    "Chihuahua",
			Prefix:  "chihuahua",
			ChainID: "chihuahua-1",
			Endpoints: []string{
				"https://api.chihuahua.wtf",
				"https://chihuahua-api.polkachu.com",
			},
		},
	}
}

// Default returns the registry of DefaultProfiles.
func Default() *Registry {
	r, err := New(DefaultProfiles()...)
	if err != nil {
		panic(err)
	}
	return r
}
