package policy

const (
	MerchantFeeRate     = 0.03
	LossGivenDefault    = 0.8
	NominalInterestRate = 0.15
	// Half the nominal interest stands in for partial-term repayment.
	TermAmortization = 0.5
)

// ExpectedProfit is the single-period expected value of extending amount to
// a borrower with default probability p. It goes negative for risky loans.
func ExpectedProfit(p, amount float64) float64 {
	fee := amount * MerchantFeeRate
	interest := amount * NominalInterestRate * TermAmortization * (1 - p)
	loss := amount * p * LossGivenDefault
	return fee + interest - loss
}
