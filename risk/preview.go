package risk

import (
	"fmt"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

type Warning struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Limits are soft thresholds. Crossing one adds a warning to the Preview.
type Limits struct {
	MaxRiskPct   float64 // 0.01
	MaxMarginPct float64 // 0.5
	MinRR        float64 // 1.5
}

func DefaultLimits() Limits {
	return Limits{MaxRiskPct: 0.01, MaxMarginPct: 0.5, MinRR: 1.5}
}

// Preview describes an order request against a balance.
type Preview struct {
	Margin     market.Money `json:"margin"`
	MarginPct  float64      `json:"margin_pct"`
	Affordable bool         `json:"affordable"`

	// Risk and RiskPct are zero without a stop loss; RR also needs a take profit.
	Risk    market.Money `json:"risk"`
	RiskPct float64      `json:"risk_pct"`
	Reward  market.Money `json:"reward"`
	RR      float64      `json:"rr"`

	Warnings []Warning `json:"warnings"`
}

func (p *Preview) warn(code, msg string) {
	p.Warnings = append(p.Warnings, Warning{Code: code, Msg: msg})
}

// PreviewOrder computes margin, risk and reward for req and flags anything
// outside lim.
func PreviewOrder(req broker.OrderRequest, balance market.Money, lim Limits) (Preview, error) {
	if err := req.Validate(); err != nil {
		return Preview{}, err
	}

	p := Preview{Margin: req.Margin(), Warnings: []Warning{}}
	p.Affordable = p.Margin <= balance
	if balance > 0 {
		p.MarginPct = p.Margin / balance
	}
	if !p.Affordable {
		p.warn("INSUFFICIENT_FUNDS", fmt.Sprintf("margin %s exceeds balance %s",
			market.FormatMoney(p.Margin), market.FormatMoney(balance)))
	} else if lim.MaxMarginPct > 0 && p.MarginPct > lim.MaxMarginPct {
		p.warn("MARGIN_TOO_HIGH", fmt.Sprintf("margin is %.1f%% of balance (max %.1f%%)",
			p.MarginPct*100, lim.MaxMarginPct*100))
	}

	if stopOnWrongSide(req.Side, req.Price, req.StopLoss) {
		p.warn("STOP_WRONG_SIDE", "stop loss would close the position immediately")
	}
	if targetOnWrongSide(req.Side, req.Price, req.TakeProfit) {
		p.warn("TARGET_WRONG_SIDE", "take profit would close the position immediately")
	}

	if req.StopLoss <= 0 {
		p.warn("NO_STOP", "no stop loss: the whole margin is at risk")
		return p, nil
	}

	p.Risk = PlannedRisk(req.Quantity, req.Price, req.StopLoss)
	if p.Risk > p.Margin {
		// a close never returns less than zero
		p.Risk = p.Margin
	}
	p.RiskPct = RiskPct(p.Risk, balance)
	if lim.MaxRiskPct > 0 && p.RiskPct > lim.MaxRiskPct {
		p.warn("RISK_TOO_HIGH", fmt.Sprintf("risk is %.2f%% of balance (max %.2f%%)",
			p.RiskPct*100, lim.MaxRiskPct*100))
	}

	if req.TakeProfit > 0 {
		p.Reward = PlannedRisk(req.Quantity, req.Price, req.TakeProfit)
		p.RR = RR(req.Price, req.StopLoss, req.TakeProfit)
		if lim.MinRR > 0 && p.RR < lim.MinRR {
			p.warn("RR_TOO_LOW", fmt.Sprintf("reward/risk %.2f below %.2f", p.RR, lim.MinRR))
		}
	}
	return p, nil
}
