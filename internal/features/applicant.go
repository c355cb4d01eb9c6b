package features

// Applicant is one raw credit application. Nil numeric fields are missing.
type Applicant struct {
	LoanAmount         *float64 `json:"loan_amnt"`
	InterestRate       *float64 `json:"int_rate"`
	Installment        *float64 `json:"installment"`
	AnnualIncome       *float64 `json:"annual_inc"`
	DTI                *float64 `json:"dti"`
	FICO               *float64 `json:"fico_range_low"`
	RevolvingUtil      *float64 `json:"revol_util"`
	TotalAccounts      *float64 `json:"total_acc"`
	OpenAccounts       *float64 `json:"open_acc"`
	PublicRecords      *float64 `json:"pub_rec"`
	TermMonths         *float64 `json:"term_months"`
	Grade              string   `json:"grade"`
	HomeOwnership      string   `json:"home_ownership"`
	VerificationStatus string   `json:"verification_status"`
	Purpose            string   `json:"purpose"`
}

var numericAccessors = map[string]func(Applicant) *float64{
	LoanAmount:    func(a Applicant) *float64 { return a.LoanAmount },
	InterestRate:  func(a Applicant) *float64 { return a.InterestRate },
	Installment:   func(a Applicant) *float64 { return a.Installment },
	AnnualIncome:  func(a Applicant) *float64 { return a.AnnualIncome },
	DTI:           func(a Applicant) *float64 { return a.DTI },
	FICO:          func(a Applicant) *float64 { return a.FICO },
	RevolvingUtil: func(a Applicant) *float64 { return a.RevolvingUtil },
	TotalAccounts: func(a Applicant) *float64 { return a.TotalAccounts },
	OpenAccounts:  func(a Applicant) *float64 { return a.OpenAccounts },
	PublicRecords: func(a Applicant) *float64 { return a.PublicRecords },
	TermMonths:    func(a Applicant) *float64 { return a.TermMonths },
}

var categoricalAccessors = map[string]func(Applicant) string{
	Grade:              func(a Applicant) string { return a.Grade },
	HomeOwnership:      func(a Applicant) string { return a.HomeOwnership },
	VerificationStatus: func(a Applicant) string { return a.VerificationStatus },
	Purpose:            func(a Applicant) string { return a.Purpose },
}

// Numeric returns the supplied value of a numeric attribute.
func (a Applicant) Numeric(name string) (float64, bool) {
	get, ok := numericAccessors[name]
	if !ok {
		return 0, false
	}
	v := get(a)
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Category returns the supplied value of a categorical attribute.
func (a Applicant) Category(name string) (string, bool) {
	get, ok := categoricalAccessors[name]
	if !ok {
		return "", false
	}
	v := get(a)
	return v, v != ""
}

// Float is a convenience for building applicants in code.
func Float(v float64) *float64 {
	return &v
}
