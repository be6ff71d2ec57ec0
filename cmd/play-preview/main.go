// Command play-preview checks a prospective short play against the risk
// limits without creating anything.
//
// Usage:
//
//	play-preview -symbol AAPL -strike 150 -contracts 2 [-side SHORT]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"playtrader/pkg/playtrader"
)

func main() {
	_ = godotenv.Load()

	var (
		server    = flag.String("server", "http://127.0.0.1:8090", "playtrader server base URL")
		symbol    = flag.String("symbol", "", "underlying symbol (required)")
		strike    = flag.Float64("strike", 0, "strike price (required)")
		contracts = flag.Int("contracts", 1, "number of contracts")
		side      = flag.String("side", "SHORT", "position side: LONG or SHORT")
		tradeType = flag.String("type", "PUT", "trade type: CALL or PUT")
	)
	flag.Parse()

	if *symbol == "" || *strike <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := playtrader.NewClient(*server)
	decision, err := client.PreviewRisk(ctx, playtrader.RiskPreviewRequest{
		Symbol:       *symbol,
		StrikePrice:  *strike,
		Contracts:    *contracts,
		PositionSide: *side,
		TradeType:    *tradeType,
	})
	if err != nil {
		log.Fatalf("risk preview: %v", err)
	}

	if decision.Approved {
		fmt.Printf("APPROVED  required_bp=%.2f equity=%.2f exposure_bp=%.2f\n",
			decision.RequiredBP, decision.Equity, decision.ExposureBP)
		return
	}
	fmt.Printf("REJECTED  reason=%s required_bp=%.2f limit=%.2f\n",
		decision.Reason, decision.RequiredBP, decision.Limit)
	os.Exit(1)
}
