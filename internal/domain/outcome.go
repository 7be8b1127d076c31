package domain

import "github.com/shopspring/decimal"

// Outcome is the result of one resolution. It is closed: the only
// implementations are Resolved, NotFound and ResolutionError.
type Outcome interface {
	outcome()
	// Kind names the outcome for logs and metrics.
	Kind() string
}

// Resolved carries the canonical listing chosen for a product.
type Resolved struct {
	Name   string
	URL    string
	Price  decimal.Decimal
	Seller string
}

// NotFound means the site answered and had no matching listing.
type NotFound struct {
	Reason string
}

// ResolutionError means the site could not be read: navigation failure,
// timeout, challenge not cleared or an unexpected page layout.
type ResolutionError struct {
	Reason string
}

func (Resolved) outcome()        {}
func (NotFound) outcome()        {}
func (ResolutionError) outcome() {}

func (Resolved) Kind() string        { return "found" }
func (NotFound) Kind() string        { return "not_found" }
func (ResolutionError) Kind() string { return "error" }

func (e ResolutionError) Error() string {
	return "resolution failed: " + e.Reason
}
