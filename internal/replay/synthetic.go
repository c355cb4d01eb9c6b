package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
)

// SyntheticHeader is the column set Synthesize writes, a subset of the
// Lending Club export.
var SyntheticHeader = []string{
	"id", "loan_amnt", "term", "int_rate", "installment", "grade", "home_ownership",
	"annual_inc", "verification_status", "loan_status", "purpose", "dti",
	"fico_range_low", "revol_util", "total_acc", "open_acc", "pub_rec",
}

var (
	homeOwnership = []string{"RENT", "MORTGAGE", "MORTGAGE", "OWN"}
	verification  = []string{"Verified", "Source Verified", "Not Verified"}
	purposes      = []string{
		"debt_consolidation", "debt_consolidation", "debt_consolidation", "credit_card",
		"credit_card", "home_improvement", "other", "major_purchase", "medical", "car",
	}
)

// Synthesize writes n labelled loans in ledger CSV form. Default odds rise
// with interest rate and DTI and fall with FICO, so a replay over the output
// has signal for the model to find. The same seed gives the same file.
func Synthesize(w io.Writer, n int, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	cw := csv.NewWriter(w)
	if err := cw.Write(SyntheticHeader); err != nil {
		return err
	}

	for i := 1; i <= n; i++ {
		fico := clamp(math.Round(700+rng.NormFloat64()*45), 540, 845)
		dti := clamp(math.Round((18+rng.NormFloat64()*9)*100)/100, 0, 60)
		// Rate tracks credit quality with noise.
		rate := clamp(math.Round((26-(fico-540)*0.05+rng.NormFloat64()*2.5)*100)/100, 5.31, 30.99)
		term := 36
		if rng.Float64() < 0.25 {
			term = 60
		}
		amount := math.Round(clamp(math.Exp(9.3+rng.NormFloat64()*0.6), 1000, 40000)/25) * 25
		income := math.Round(clamp(math.Exp(11+rng.NormFloat64()*0.5), 12000, 500000))

		z := -2.2 + 0.2*(rate-12) + 0.03*(dti-18) - 0.015*(fico-700)
		status := "Fully Paid"
		if rng.Float64() < 1/(1+math.Exp(-z)) {
			status = "Charged Off"
		}

		record := []string{
			strconv.Itoa(i),
			formatMoney(amount),
			fmt.Sprintf(" %d months", term),
			fmt.Sprintf("%.2f%%", rate),
			strconv.FormatFloat(math.Round(installment(amount, rate, term)*100)/100, 'f', 2, 64),
			gradeFor(rate),
			homeOwnership[rng.Intn(len(homeOwnership))],
			strconv.FormatFloat(income, 'f', 0, 64),
			verification[rng.Intn(len(verification))],
			status,
			purposes[rng.Intn(len(purposes))],
			strconv.FormatFloat(dti, 'f', 2, 64),
			strconv.FormatFloat(fico, 'f', 0, 64),
			fmt.Sprintf("%.1f%%", clamp(50+rng.NormFloat64()*24, 0, 120)),
			strconv.Itoa(5 + rng.Intn(40)),
			strconv.Itoa(2 + rng.Intn(20)),
			strconv.Itoa(pubRecords(rng)),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func gradeFor(rate float64) string {
	switch {
	case rate < 8:
		return "A"
	case rate < 12:
		return "B"
	case rate < 16:
		return "C"
	case rate < 20:
		return "D"
	case rate < 24:
		return "E"
	case rate < 28:
		return "F"
	default:
		return "G"
	}
}

// installment is the level monthly payment of an amortising loan.
func installment(amount, annualRate float64, months int) float64 {
	r := annualRate / 100 / 12
	return amount * r / (1 - math.Pow(1+r, -float64(months)))
}

func pubRecords(rng *rand.Rand) int {
	if rng.Float64() < 0.85 {
		return 0
	}
	return 1 + rng.Intn(2)
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
