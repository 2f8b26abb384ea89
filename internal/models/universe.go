package models

import (
	"fmt"
	"sort"
	"strings"
)

// ETFInfo names a tracked fund.
type ETFInfo struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// TrackedETFs is the small real-time set that also feeds the top picks snapshot.
var TrackedETFs = []ETFInfo{
	{Symbol: "VOO", Name: "Vanguard S&P 500 ETF"},
	{Symbol: "QQQ", Name: "Invesco QQQ Trust"},
	{Symbol: "SCHD", Name: "Schwab US Dividend Equity ETF"},
	{Symbol: "VTI", Name: "Vanguard Total Stock Market ETF"},
	{Symbol: "VGT", Name: "Vanguard Information Technology ETF"},
	{Symbol: "XLK", Name: "Technology Select Sector SPDR Fund"},
	{Symbol: "XLF", Name: "Financial Select Sector SPDR Fund"},
	{Symbol: "JEPQ", Name: "JPMorgan Nasdaq Equity Premium Income ETF"},
}

// universe lists every fund the service knows, most traded first.
var universe = []string{
	"SPY", "VOO", "IVV", "QQQ", "VTI", "IWM", "VTV", "VUG", "SPLG", "GLD",
	"VGT", "XLK", "SOXX", "SMH", "FTEC", "WDTI", "XLV", "VHT", "IYH", "XLF",
	"VFH", "IYF", "KBE", "KRE", "SCHD", "VYM", "DVY", "SDY", "DGRO", "JPMG",
	"MGK", "SCHG", "IWF", "VONG", "EFA", "VEA", "VWO", "IEMG", "IEFA", "TLT",
	"GOVT", "BND", "AGG", "SHV", "VNQ", "IYR", "XLRE", "XLY", "XLP", "VCR",
	"VDC", "XLU", "VPU", "XLI", "VIS", "XLB", "VAW", "XLE", "VDE", "JEPQ",
	"TSLY", "CONL", "NUSI", "VV", "MGC", "SPXL", "UPRO", "SSO", "SPXU", "SDS",
	"SH", "HACK", "CIBR", "IPAY", "ARKK", "ARKF", "ARKW", "ARKG", "IBB", "XBI",
	"FAZ", "FAS", "DIVB", "SMDV", "PEY", "SPHD", "SGOL", "IAU", "BAR", "GLDM",
	"OGN", "EEM", "VXUS", "VEU", "CWI", "ACWI", "SHY", "TIP", "LQD", "HYG",
	"JNK", "O", "OIF", "USRT", "REM", "MORT", "FXG", "FXD", "IDU", "UTYL",
	"DUSA", "FXR", "MATX", "USO", "UCO", "SCO", "UNG", "GASX", "VIXY", "UVXY",
	"SVXY", "VXX", "UVIX", "TQQQ", "QLD", "UDOW", "DDM", "DOG", "PSQ", "DBA",
	"DBC", "SLV", "PPLT", "PALL", "SIVR", "ICLN", "PBW", "TAN", "CLNE", "IFRA",
	"PAVE", "BUG", "MSOS", "MJ", "THCX", "YOLO", "MCHI", "FXI", "KWEB", "PGJ",
	"YINN", "CHAU", "EWZ", "EWA", "EWC", "EWW", "ECH", "GAF", "EIS", "EPU",
	"QUON", "EWJ", "EWH", "EWS", "EWY", "UUP", "UDN", "FXB", "FXE", "FXY",
	"FXF", "FXA", "FXC", "MBB", "MUB", "PFF", "PGX", "BKY", "SCHP", "SPIP",
	"TFI", "SHM", "VTEB", "ICVT", "CWB", "AOR", "AOM", "AOA", "AOK", "RKY",
	"GAL", "VTTHX", "VTHRX", "VTINX", "VTTIX", "VTWDX", "VWELX", "VWINX", "VWEHX", "VWENX",
	"VWUSX", "IJR", "IJJS", "SCHA", "VBR", "VXF", "SLY", "VO", "IJH", "SCHM",
	"XMID", "IWC", "VIOV", "MGV", "VONE",
}

// Symbol set names accepted by tier configuration.
const (
	SymbolSetTracked = "tracked"
	SymbolSetTop50   = "top50"
	SymbolSetAll     = "all"
)

// TrackedSymbols returns the tracked set in display order.
func TrackedSymbols() []string {
	out := make([]string, len(TrackedETFs))
	for i, e := range TrackedETFs {
		out[i] = e.Symbol
	}
	return out
}

// UniverseSymbols returns a copy of the full universe.
func UniverseSymbols() []string {
	return append([]string(nil), universe...)
}

// Top50Symbols returns the 50 most traded funds.
func Top50Symbols() []string {
	n := 50
	if len(universe) < n {
		n = len(universe)
	}
	return append([]string(nil), universe[:n]...)
}

// SymbolSet resolves a named set.
func SymbolSet(name string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SymbolSetTracked, "":
		return TrackedSymbols(), nil
	case SymbolSetTop50, "top":
		return Top50Symbols(), nil
	case SymbolSetAll:
		return UniverseSymbols(), nil
	default:
		return nil, fmt.Errorf("unknown symbol set %q", name)
	}
}

// ETFName returns the display name for a symbol, or "<SYMBOL> ETF".
func ETFName(symbol string) string {
	symbol = strings.ToUpper(symbol)
	for _, e := range TrackedETFs {
		if e.Symbol == symbol {
			return e.Name
		}
	}
	if m, ok := etfMetadata[symbol]; ok {
		return m.Name
	}
	return symbol + " ETF"
}

// CategoryOther is reported for funds without metadata.
const CategoryOther = "Other"

// ETFMeta classifies a fund for browsing.
type ETFMeta struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Sector   string `json:"sector"`
}

func meta(name, category, sector string) ETFMeta {
	return ETFMeta{Name: name, Category: category, Sector: sector}
}

var etfMetadata = map[string]ETFMeta{
	"SPY":  meta("SPDR S&P 500 ETF Trust", "Large Cap", "Large Cap"),
	"VOO":  meta("Vanguard S&P 500 ETF", "Large Cap", "Large Cap"),
	"IVV":  meta("iShares Core S&P 500 ETF", "Large Cap", "Large Cap"),
	"QQQ":  meta("Invesco QQQ Trust", "Technology", "Technology"),
	"VTI":  meta("Vanguard Total Stock Market ETF", "Large Cap", "Large Cap"),
	"IWM":  meta("iShares Russell 2000 ETF", "Small Cap", "Small Cap"),
	"VTV":  meta("Vanguard Value ETF", "Large Cap", "Large Cap"),
	"VUG":  meta("Vanguard Growth ETF", "Large Cap", "Large Cap"),
	"SPLG": meta("SPDR Portfolio S&P 500 ETF", "Large Cap", "Large Cap"),
	"GLD":  meta("SPDR Gold Shares", "Commodity", "Commodity"),

	"VGT":  meta("Vanguard Information Technology ETF", "Technology", "Technology"),
	"XLK":  meta("Technology Select Sector SPDR Fund", "Technology", "Technology"),
	"SOXX": meta("iShares Semiconductor ETF", "Technology", "Technology"),
	"SMH":  meta("VanEck Semiconductor ETF", "Technology", "Technology"),
	"FTEC": meta("Fidelity MSCI Information Technology Index ETF", "Technology", "Technology"),

	"XLV": meta("Health Care Select Sector SPDR Fund", "Healthcare", "Healthcare"),
	"VHT": meta("Vanguard Health Care ETF", "Healthcare", "Healthcare"),
	"IYH": meta("iShares U.S. Healthcare ETF", "Healthcare", "Healthcare"),

	"XLF": meta("Financial Select Sector SPDR Fund", "Financials", "Financials"),
	"VFH": meta("Vanguard Financials ETF", "Financials", "Financials"),
	"IYF": meta("iShares U.S. Financials ETF", "Financials", "Financials"),
	"KBE": meta("Invesco KBW Bank ETF", "Financials", "Financials"),
	"KRE": meta("Invesco KBW Regional Banking ETF", "Financials", "Financials"),

	"SCHD": meta("Schwab U.S. Dividend Equity ETF", "Dividend", "Dividend"),
	"VYM":  meta("Vanguard High Dividend Yield ETF", "Dividend", "Dividend"),
	"DVY":  meta("iShares Select Dividend ETF", "Dividend", "Dividend"),
	"SDY":  meta("SPDR S&P Dividend ETF", "Dividend", "Dividend"),
	"DGRO": meta("iShares Core Dividend Growth ETF", "Dividend", "Dividend"),

	"JPMG": meta("JPMorgan Growth ETF", "Growth", "Large Cap"),
	"MGK":  meta("Vanguard Mega Cap Growth ETF", "Growth", "Large Cap"),
	"SCHG": meta("Schwab U.S. Large-Cap Growth ETF", "Growth", "Large Cap"),
	"IWF":  meta("iShares Russell 1000 Growth ETF", "Growth", "Large Cap"),
	"VONG": meta("Vanguard Russell 1000 Growth ETF", "Growth", "Large Cap"),

	"EFA":  meta("iShares MSCI EAFE ETF", "International", "International"),
	"VEA":  meta("Vanguard FTSE Developed Markets ETF", "International", "International"),
	"VWO":  meta("Vanguard Emerging Markets Stock Index ETF", "International", "International"),
	"IEMG": meta("iShares Core MSCI Emerging Markets ETF", "International", "International"),
	"IEFA": meta("iShares Core MSCI EAFE ETF", "International", "International"),

	"TLT":  meta("iShares 20+ Year Treasury Bond ETF", "Bonds", "Bonds"),
	"GOVT": meta("iShares U.S. Treasury Bond ETF", "Bonds", "Bonds"),
	"BND":  meta("Vanguard Total Bond Market ETF", "Bonds", "Bonds"),
	"AGG":  meta("iShares Core U.S. Aggregate Bond ETF", "Bonds", "Bonds"),
	"SHV":  meta("iShares Short Treasury Bond ETF", "Bonds", "Bonds"),

	"VNQ":  meta("Vanguard Real Estate ETF", "Real Estate", "Real Estate"),
	"IYR":  meta("iShares U.S. Real Estate ETF", "Real Estate", "Real Estate"),
	"XLRE": meta("Real Estate Select Sector SPDR Fund", "Real Estate", "Real Estate"),

	"XLY": meta("Consumer Discretionary Select Sector SPDR Fund", "Consumer", "Consumer"),
	"XLP": meta("Consumer Staples Select Sector SPDR Fund", "Consumer", "Consumer"),
	"VCR": meta("Vanguard Consumer Discretionary ETF", "Consumer", "Consumer"),
	"VDC": meta("Vanguard Consumer Staples ETF", "Consumer", "Consumer"),

	"XLU": meta("Utilities Select Sector SPDR Fund", "Utilities", "Utilities"),
	"VPU": meta("Vanguard Utilities ETF", "Utilities", "Utilities"),
	"XLI": meta("Industrials Select Sector SPDR Fund", "Industrials", "Industrials"),
	"VIS": meta("Vanguard Industrials ETF", "Industrials", "Industrials"),
	"XLB": meta("Materials Select Sector SPDR Fund", "Materials", "Materials"),
	"VAW": meta("Vanguard Materials ETF", "Materials", "Materials"),
	"XLE": meta("Energy Select Sector SPDR Fund", "Energy", "Energy"),
	"VDE": meta("Vanguard Energy ETF", "Energy", "Energy"),

	"JEPQ": meta("JPMorgan Nasdaq Equity Premium Income ETF", "Income", "Technology"),
	"TSLY": meta("Tidal Trust II - YieldMax ETF", "Income", "Technology"),
	"CONL": meta("YieldMax Universe Fund Option Income ETF", "Income", "Multi"),
	"NUSI": meta("Nationwide Risk-Managed Income ETF", "Income", "Multi"),
}

// LookupETF returns the metadata for symbol. Unknown funds get a generic
// name and the Other category; ok reports whether metadata exists.
func LookupETF(symbol string) (m ETFMeta, ok bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if m, ok = etfMetadata[symbol]; ok {
		return m, true
	}
	return ETFMeta{Name: ETFName(symbol), Category: CategoryOther, Sector: CategoryOther}, false
}

// Sectors returns the distinct known sectors of symbols, sorted.
func Sectors(symbols []string) []string {
	seen := make(map[string]bool)
	for _, s := range symbols {
		if m, ok := etfMetadata[strings.ToUpper(s)]; ok {
			seen[m.Sector] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
