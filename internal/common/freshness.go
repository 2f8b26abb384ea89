package common

import "time"

// Default cache lifetimes. Intraday data is refreshed every 30 minutes and
// carries a 5 minute grace band; daily data survives until the next morning run.
const (
	TTLIntraday     = 35 * time.Minute
	TTLDaily        = 25 * time.Hour
	DefaultLeaseTTL = 15 * time.Minute
)
