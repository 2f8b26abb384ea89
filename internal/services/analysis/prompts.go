package analysis

import (
	"fmt"
	"math"
	"strings"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/bdtoconnect-creator/etf-compass/internal/signals"
)

const scoreSystemPrompt = `You are an ETF analyst. For the fund described, produce:
1. a score from 0 to 100, higher is better
2. a signal: buy, hold or sell
3. a confidence: low, medium or high
4. a risk level: low, medium or high
5. the key factors behind the call

Weigh price momentum and trend, volatility, volume, RSI and moving averages, and the wider market.

Reply with only this JSON object:
{
  "score": number,
  "signal": "buy" | "hold" | "sell",
  "confidence": "low" | "medium" | "high",
  "riskLevel": "low" | "medium" | "high",
  "factors": ["..."]
}`

const explanationSystemPrompt = `You explain ETF recommendations to retail investors.
Use plain language and keep it to two or three sentences.
Say what is driving the signal. Skip jargon and skip disclaimers.`

const sentimentSystemPrompt = `You are a market sentiment analyst. Assess current sentiment for the ETF named.

Reply with only this JSON object:
{
  "sentiment": "bullish" | "bearish" | "neutral",
  "confidence": number between 0 and 1,
  "reasons": ["..."],
  "timeframe": "short" | "medium" | "long"
}`

func signedMoney(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+$%.2f", v)
	}
	return fmt.Sprintf("-$%.2f", math.Abs(v))
}

func optional(v *float64, format string) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf(format, *v)
}

func buildScorePrompt(symbol string, d models.MarketData) string {
	trend := "neutral"
	switch {
	case d.ChangePercent > 0:
		trend = "positive"
	case d.ChangePercent < 0:
		trend = "negative"
	}
	momentum := "modest"
	if math.Abs(d.ChangePercent) > 1 {
		momentum = "strong"
	}
	rsiNote := ""
	if d.RSI != nil {
		rsiNote = " (" + signals.ClassifyRSI(*d.RSI) + ")"
	}

	name := d.Name
	if name == "" {
		name = models.ETFName(symbol)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze %s (%s).\n\n", strings.ToUpper(symbol), name)
	b.WriteString("Current data:\n")
	fmt.Fprintf(&b, "- Price: $%.2f\n", d.CurrentPrice)
	fmt.Fprintf(&b, "- Change: %s (%+.2f%%)\n", signedMoney(d.Change), d.ChangePercent)
	fmt.Fprintf(&b, "- Day range: $%.2f - $%.2f\n", d.Low, d.High)
	fmt.Fprintf(&b, "- Volume: %.0f\n", d.Volume)
	if len(d.HourlyPrices) > 0 {
		closes := make([]string, len(d.HourlyPrices))
		for i, p := range d.HourlyPrices {
			closes[i] = fmt.Sprintf("%.2f", p)
		}
		fmt.Fprintf(&b, "- Recent closes: %s\n", strings.Join(closes, ", "))
	}
	b.WriteString("\nTechnical indicators:\n")
	fmt.Fprintf(&b, "- RSI: %s%s\n", optional(d.RSI, "%.1f"), rsiNote)
	fmt.Fprintf(&b, "- SMA20: %s\n", optional(d.SMA20, "$%.2f"))
	fmt.Fprintf(&b, "- SMA50: %s\n", optional(d.SMA50, "$%.2f"))
	fmt.Fprintf(&b, "- Volatility: %s\n", optional(d.Volatility, "%.2f"))
	b.WriteString("\nMarket context:\n")
	fmt.Fprintf(&b, "- Trend: %s\n", trend)
	fmt.Fprintf(&b, "- Momentum: %s\n\n", momentum)
	b.WriteString("Provide your analysis as JSON.")
	return b.String()
}

func buildExplanationPrompt(symbol string, a models.AnalysisResult) string {
	verb := map[models.Signal]string{
		models.SignalBuy:  "recommends buying",
		models.SignalHold: "suggests holding",
		models.SignalSell: "recommends selling",
	}[a.Signal]
	if verb == "" {
		verb = "suggests holding"
	}
	factors := "none provided"
	if len(a.Factors) > 0 {
		factors = strings.Join(a.Factors, ", ")
	}

	return fmt.Sprintf(`Our model %s %s with a score of %d/100 and %s confidence.

Key factors: %s

In two or three sentences, explain why this call fits current market conditions and what is driving it.`,
		verb, strings.ToUpper(symbol), a.Score, a.Confidence, factors)
}

func buildSentimentPrompt(symbol, marketContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assess the market sentiment for %s.", strings.ToUpper(symbol))
	if strings.TrimSpace(marketContext) != "" {
		fmt.Fprintf(&b, "\n\nMarket context: %s", strings.TrimSpace(marketContext))
	}
	b.WriteString("\n\nConsider broad market conditions, sector performance and anything likely to move this ETF in the near term.\n\nProvide your analysis as JSON.")
	return b.String()
}
