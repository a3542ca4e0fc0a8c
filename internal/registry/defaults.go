package registry

// defaultChains mirrors the public EVM networks and token lists the wallet UI
// has always shown. No spenders are registered by default.
var defaultChains = []Chain{
	{
		Descriptor: ChainDescriptor{
			ChainID:            1,
			DisplayName:        "Ethereum",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "https://etherscan.io/tx/%s",
			ExplorerAddressURL: "https://etherscan.io/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "ETH", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
			{Symbol: "DAI", ContractAddress: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
			{Symbol: "WBTC", ContractAddress: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Decimals: 8},
			{Symbol: "UNI", ContractAddress: "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", Decimals: 18},
			{Symbol: "LINK", ContractAddress: "0x514910771af9ca656af840dff83e8264ecf986ca", Decimals: 18},
			{Symbol: "COMP", ContractAddress: "0xc00e94cb662c3520282e6f5717214004a7f26888", Decimals: 18},
			{Symbol: "YFI", ContractAddress: "0x0bc529c00c6401aef6d220be8c6ea1667f6ad93e", Decimals: 18},
			{Symbol: "CRV", ContractAddress: "0xd533a949740bb3306d119cc777fa900ba034cd52", Decimals: 18},
			{Symbol: "BAT", ContractAddress: "0x0d8775f648430679a709e98d2b0cb6250d2887ef", Decimals: 18},
			{Symbol: "ZRX", ContractAddress: "0xe41d2489571d322189246dafa5ebde1f4699f498", Decimals: 18},
			{Symbol: "LRC", ContractAddress: "0xbbbbca6a901c926f240b89eacb641d8aec7aeafd", Decimals: 18},
			{Symbol: "BNB", ContractAddress: "0xb8c77482e45f1f44de1745f52c74426c631bdd52", Decimals: 18},
			{Symbol: "SHIB", ContractAddress: "0x95ad61b0a150d79219dcf64e1e6cc01f0b64c4ce", Decimals: 18},
			{Symbol: "PEPE", ContractAddress: "0x6982508145454ce325ddbe47a25d4ec3d2311933", Decimals: 18},
			{Symbol: "LEASH", ContractAddress: "0x27c70cd1946795b66be9d954418546998b546634", Decimals: 18},
			{Symbol: "FLOKI", ContractAddress: "0xcf0c122c6b73ff809c693db761e7baebe62b6a2e", Decimals: 18},
			{Symbol: "AAVE", ContractAddress: "0x7fc66500c84a76ad7e9c93437bfc5ac33e2ddae9", Decimals: 18},
			{Symbol: "RNDR", ContractAddress: "0x6de037ef9ad2725eb40118bb1702ebb27e4aeb24", Decimals: 18},
			{Symbol: "MKR", ContractAddress: "0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2", Decimals: 18},
			{Symbol: "SUSHI", ContractAddress: "0x6b3595068778dd592e39a122f4f5a5cf09c90fe2", Decimals: 18},
			{Symbol: "GLM", ContractAddress: "0x7dd9c5cba05e151c895fde1cf355c9a1d5da6429", Decimals: 18},
			{Symbol: "REP", ContractAddress: "0x1985365e9f78359a9b6ad760e32412f4a445e862", Decimals: 18},
			{Symbol: "SNT", ContractAddress: "0x744d70fdbe2ba4cf95131626614a1763df805b9e", Decimals: 18},
			{Symbol: "STORJ", ContractAddress: "0xb64ef51c888972c908cfacf59b47c1afbc0ab8ac", Decimals: 8},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            56,
			DisplayName:        "BNB Smart Chain",
			NativeSymbol:       "BNB",
			ExplorerTxURL:      "https://bscscan.com/tx/%s",
			ExplorerAddressURL: "https://bscscan.com/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "BNB", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0x55d398326f99059ff775485246999027b3197955", Decimals: 18},
			{Symbol: "USDC", ContractAddress: "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", Decimals: 18},
			{Symbol: "SHIB", ContractAddress: "0x2859e4544c4bb039668b1a517b2f6c39240b3a2f", Decimals: 18},
			{Symbol: "PEPE", ContractAddress: "0x25d887ce7a35172c62febfd67a1856f20faebb00", Decimals: 18},
			{Symbol: "FLOKI", ContractAddress: "0xfb5c6815ca3ac72ce9f5006869ae67f18bf77006", Decimals: 18},
			{Symbol: "CAKE", ContractAddress: "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82", Decimals: 18},
			{Symbol: "BAKE", ContractAddress: "0xe02df9e3e622debdd69fb838bb799e3f168902c5", Decimals: 18},
			{Symbol: "XVS", ContractAddress: "0xcf6bb5389c92bdda8a3747f6db454cb7a64626c6", Decimals: 18},
			{Symbol: "ALPACA", ContractAddress: "0x8f0528ce5ef7b51152a59745befdd91d97091d2f", Decimals: 18},
			{Symbol: "AUTO", ContractAddress: "0xa184088a740c695e156f91f5cc086a06bb78b827", Decimals: 18},
			{Symbol: "BURGER", ContractAddress: "0xae9269f27437f0fcbc232d39ec814844a51d6b8f", Decimals: 18},
			{Symbol: "EPS", ContractAddress: "0xa7f552078dcc247c2684336020c03648500c6d9f", Decimals: 18},
			{Symbol: "BELT", ContractAddress: "0xe0e514c71282b6f4e823703a39374cf58dc3ea4f", Decimals: 18},
			{Symbol: "SFP", ContractAddress: "0xd41fdb03ba84762dd66a0af1a6c8540ff1ba5dfb", Decimals: 18},
			{Symbol: "BabyDoge", ContractAddress: "0xc748673057861a797275cd8a068abb95a902e8de", Decimals: 18},
			{Symbol: "EGC", ContractAddress: "0xc001bbe2b87079294c63ece98bdd0a88d761434e", Decimals: 18},
			{Symbol: "QUACK", ContractAddress: "0xd74b782e05aa25c50e7330af541d46e18f36661c", Decimals: 18},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            137,
			DisplayName:        "Polygon",
			NativeSymbol:       "POL",
			ExplorerTxURL:      "https://polygonscan.com/tx/%s",
			ExplorerAddressURL: "https://polygonscan.com/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "POL", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0xc2132d05d31c914c87c6611c10748aeb04b58e8f", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", Decimals: 6},
			{Symbol: "QUICK", ContractAddress: "0x831753dd7087cac61ab5644b308642cc1c33dc13", Decimals: 18},
			{Symbol: "FISH", ContractAddress: "0x3a3df212b7aa91aa0402b9035b098891d276572b", Decimals: 18},
			{Symbol: "DC", ContractAddress: "0x7cc6bcad7c5e0e928caee29ff9619aa0b019e77e", Decimals: 18},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            42161,
			DisplayName:        "Arbitrum One",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "https://arbiscan.io/tx/%s",
			ExplorerAddressURL: "https://arbiscan.io/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "ETH", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0xff970a61a04b1ca14834a43f5de4533ebddb5cc8", Decimals: 6},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            10,
			DisplayName:        "Optimism",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "https://optimistic.etherscan.io/tx/%s",
			ExplorerAddressURL: "https://optimistic.etherscan.io/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "ETH", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0x94b008aa00579c1307b0ef2c499ad98a8ce58e58", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0x7f5c764cbc14f9669b88837ca1490cca17c31607", Decimals: 6},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            8453,
			DisplayName:        "Base",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "https://basescan.org/tx/%s",
			ExplorerAddressURL: "https://basescan.org/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "ETH", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0x50c5725949a6f0c72e6c4a641f24049a917db0cb", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Decimals: 6},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            534352,
			DisplayName:        "Scroll",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "https://scrollscan.com/tx/%s",
			ExplorerAddressURL: "https://scrollscan.com/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "ETH", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0xf8869061c4c2c3c3f7b24d3f707c14b3cc868a0f", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0x06eFdBFf2a14a7c8E15944D1F4A48F9F95F663A4", Decimals: 6},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            43114,
			DisplayName:        "Avalanche C-Chain",
			NativeSymbol:       "AVAX",
			ExplorerTxURL:      "https://snowtrace.io/tx/%s",
			ExplorerAddressURL: "https://snowtrace.io/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "AVAX", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0x9702230a8ea53601f5cd2dc00fdbc13d4df4a8c7", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e", Decimals: 6},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            250,
			DisplayName:        "Fantom",
			NativeSymbol:       "FTM",
			ExplorerTxURL:      "https://ftmscan.com/tx/%s",
			ExplorerAddressURL: "https://ftmscan.com/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "FTM", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0x04068da6c83afcfa0e13ba15a6696662335d5b75", Decimals: 6},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            59144,
			DisplayName:        "Linea",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "https://lineascan.build/tx/%s",
			ExplorerAddressURL: "https://lineascan.build/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "ETH", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0xa219439258ca9da29e9cc4ce5596924745e12b93", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0x176211869ca2b568f2a7d4ee941e073a821ee1ff", Decimals: 6},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            324,
			DisplayName:        "zkSync Era",
			NativeSymbol:       "ETH",
			ExplorerTxURL:      "https://explorer.zksync.io/tx/%s",
			ExplorerAddressURL: "https://explorer.zksync.io/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "ETH", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0x493257fd37edb34451f62edf8d2a0c418852ba4c", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0x3355df6d4c9c3035724fd0e3914de96a5a83aaf4", Decimals: 6},
		},
	},
	{
		Descriptor: ChainDescriptor{
			ChainID:            42220,
			DisplayName:        "Celo",
			NativeSymbol:       "CELO",
			ExplorerTxURL:      "https://celoscan.io/tx/%s",
			ExplorerAddressURL: "https://celoscan.io/address/%s",
		},
		Tokens: []TokenDescriptor{
			{Symbol: "CELO", ContractAddress: NativeToken, Decimals: 18},
			{Symbol: "USDT", ContractAddress: "0x88eeC49252c8cbc039DCdB394c0c2BA2f1637EA0", Decimals: 6},
			{Symbol: "USDC", ContractAddress: "0xcebA9300f2b948710d2653dD7B07f33A8B32118C", Decimals: 6},
		},
	},
}

// DefaultRPCURLs are public endpoints used when a chain has no rpc_urls configured.
var DefaultRPCURLs = map[uint64][]string{
	1:      {"https://ethereum-rpc.publicnode.com", "https://rpc.ankr.com/eth"},
	56:     {"https://1rpc.io/bnb", "https://bsc-dataseed2.binance.org/"},
	137:    {"https://polygon-rpc.com/", "https://polygon.publicnode.com"},
	42161:  {"https://arb1.arbitrum.io/rpc", "https://arbitrum.publicnode.com"},
	10:     {"https://mainnet.optimism.io"},
	8453:   {"https://mainnet.base.org"},
	534352: {"https://rpc.scroll.io"},
	43114:  {"https://api.avax.network/ext/bc/C/rpc"},
	250:    {"https://rpc.ftm.tools"},
	59144:  {"https://rpc.linea.build"},
	324:    {"https://mainnet.era.zksync.io"},
	42220:  {"https://forno.celo.org"},
}

// Default returns a copy of the built-in chain table.
func Default() []Chain {
	out := make([]Chain, len(defaultChains))
	for i, c := range defaultChains {
		out[i] = Chain{
			Descriptor: c.Descriptor,
			Tokens:     append([]TokenDescriptor(nil), c.Tokens...),
		}
	}
	return out
}
