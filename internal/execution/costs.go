package execution

// tradeCost is the commission plus slippage and spread charge for a fill.
// Costs hit cash directly and never enter the cost basis, so a round trip at
// an unchanged price loses exactly the costs.
func (e *Executor) tradeCost(qty int, price float64) float64 {
	notional := float64(qty) * price
	return e.params.Costs.CommissionPerShare*float64(qty) +
		notional*(e.params.Costs.SlippageBps+e.params.Costs.SpreadBps)/10000
}
