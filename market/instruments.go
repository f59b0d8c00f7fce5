package market

import "sort"

// SymbolMeta describes a tradable symbol.
type SymbolMeta struct {
	Symbol    string
	Name      string
	BasePrice Price
}

var Symbols = map[string]SymbolMeta{
	"BTC":  {Symbol: "BTC", Name: "Bitcoin", BasePrice: 45000},
	"ETH":  {Symbol: "ETH", Name: "Ethereum", BasePrice: 2500},
	"BNB":  {Symbol: "BNB", Name: "BNB", BasePrice: 350},
	"ADA":  {Symbol: "ADA", Name: "Cardano", BasePrice: 0.50},
	"SOL":  {Symbol: "SOL", Name: "Solana", BasePrice: 140},
	"XRP":  {Symbol: "XRP", Name: "XRP", BasePrice: 2.50},
	"DOGE": {Symbol: "DOGE", Name: "Dogecoin", BasePrice: 0.08},
	"USDC": {Symbol: "USDC", Name: "USD Coin", BasePrice: 1.0},
}

// BasePrices returns the starting quote of every known symbol.
func BasePrices() map[string]Price {
	out := make(map[string]Price, len(Symbols))
	for k, m := range Symbols {
		out[k] = m.BasePrice
	}
	return out
}

// SymbolNames returns the known symbols in sorted order.
func SymbolNames() []string {
	out := make([]string, 0, len(Symbols))
	for k := range Symbols {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
