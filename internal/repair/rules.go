// Package repair restores shipping rows whose fields were misaligned by the source export.
package repair

import (
	"regexp"
	"strings"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/table"
)

// Rule is one detection predicate paired with the correction applied to matching rows.
type Rule struct {
	Name  string
	Match func(model.ShippingRecord) bool
	Fix   func(model.ShippingRecord) model.ShippingRecord
}

// Rule names, in application order.
const (
	RuleCustomerIDCity        = "customer-id-city"
	RuleSuiteInEffectiveEnd   = "suite-in-effective-end"
	RuleDatesBeforeAddress    = "dates-before-address"
	RuleAddressInEffectiveEnd = "address-in-effective-end"
	RuleDateInPostalCode      = "date-in-postal-address-in-start"
	RuleResidualDate          = "residual-date-in-postal"
	RuleResidualAddress       = "residual-address-in-postal"
)

var (
	// customerCityPattern finds a city name glued onto the end of a customer ID ("CA-2090Seattle").
	customerCityPattern = regexp.MustCompile(`[A-Z]{2}-[0-9]+[A-Z]`)
	customerCitySplit   = regexp.MustCompile(`^(.*[A-Z]{2}-[0-9]+)([A-Z].*)$`)
	letterPattern       = regexp.MustCompile(`[A-Za-z]`)
	upperPattern        = regexp.MustCompile(`[A-Z]`)
)

// Rules returns the repair rules in the order they must run. Later rules detect
// misalignments that earlier rules can introduce, so the order is fixed.
func Rules() []Rule {
	return []Rule{
		{Name: RuleCustomerIDCity, Match: matchCustomerIDCity, Fix: fixCustomerIDCity},
		{Name: RuleSuiteInEffectiveEnd, Match: matchSuiteInEffectiveEnd, Fix: fixSuiteInEffectiveEnd},
		{Name: RuleDatesBeforeAddress, Match: matchDatesBeforeAddress, Fix: fixDatesBeforeAddress},
		{Name: RuleAddressInEffectiveEnd, Match: matchAddressInEffectiveEnd, Fix: fixAddressInEffectiveEnd},
		{Name: RuleDateInPostalCode, Match: matchDateInPostalCode, Fix: fixDateInPostalCode},
		{Name: RuleResidualDate, Match: matchResidualDate, Fix: fixResidualDate},
		{Name: RuleResidualAddress, Match: matchResidualAddress, Fix: fixResidualAddress},
	}
}

func hasDate(v table.Value) bool {
	return v.Valid && strings.Contains(v.Str, "/")
}

func hasLetter(v table.Value) bool {
	return v.Valid && letterPattern.MatchString(v.Str)
}

func hasUpper(v table.Value) bool {
	return v.Valid && upperPattern.MatchString(v.Str)
}

// hasBareDigit reports whether v holds a digit that is not immediately followed by '/'.
func hasBareDigit(v table.Value) bool {
	if !v.Valid {
		return false
	}
	s := v.Str
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			continue
		}
		if i+1 == len(s) || s[i+1] != '/' {
			return true
		}
	}
	return false
}

func matchCustomerIDCity(r model.ShippingRecord) bool {
	return r.CustomerID.Valid && customerCityPattern.MatchString(r.CustomerID.Str)
}

// fixCustomerIDCity splits the city off the customer ID and realigns the location
// fields that were pushed one column left by the glued value.
func fixCustomerIDCity(r model.ShippingRecord) model.ShippingRecord {
	m := customerCitySplit.FindStringSubmatch(r.CustomerID.Str)
	if m == nil {
		return r
	}

	if hasLetter(r.PostalCode) {
		r.StreetAddress = r.PostalCode
		r.PostalCode = table.Null
	}

	table.Shift(&r.City, &r.State, &r.Country, &r.PostalCode, &r.EffectiveStart)

	if hasDate(r.PostalCode) {
		table.Shift(&r.PostalCode, &r.EffectiveStart, &r.EffectiveEnd)
	}

	r.CustomerID = table.S(m[1])
	r.City = table.S(m[2])
	return r
}

func matchSuiteInEffectiveEnd(r model.ShippingRecord) bool {
	return r.EffectiveEnd.Valid && strings.HasPrefix(r.EffectiveEnd.Str, "Suite")
}

// fixSuiteInEffectiveEnd joins an address that was split across both date columns.
func fixSuiteInEffectiveEnd(r model.ShippingRecord) model.ShippingRecord {
	r.StreetAddress = table.S(strings.TrimSpace(r.EffectiveStart.String() + " " + r.EffectiveEnd.Str))
	r.EffectiveEnd = table.Null
	return r
}

func matchDatesBeforeAddress(r model.ShippingRecord) bool {
	return hasDate(r.PostalCode) && hasDate(r.EffectiveStart) && hasUpper(r.EffectiveEnd)
}

func fixDatesBeforeAddress(r model.ShippingRecord) model.ShippingRecord {
	table.Shift(&r.PostalCode, &r.EffectiveStart, &r.EffectiveEnd, &r.StreetAddress)
	return r
}

func matchAddressInEffectiveEnd(r model.ShippingRecord) bool {
	return hasBareDigit(r.PostalCode) && hasDate(r.EffectiveStart) && hasUpper(r.EffectiveEnd)
}

func fixAddressInEffectiveEnd(r model.ShippingRecord) model.ShippingRecord {
	r.StreetAddress = r.EffectiveEnd
	r.EffectiveEnd = table.Null
	return r
}

func matchDateInPostalCode(r model.ShippingRecord) bool {
	return hasDate(r.PostalCode) && hasUpper(r.EffectiveStart)
}

func fixDateInPostalCode(r model.ShippingRecord) model.ShippingRecord {
	r.StreetAddress = r.EffectiveStart
	r.EffectiveStart = r.PostalCode
	r.PostalCode = table.Null
	return r
}

func matchResidualDate(r model.ShippingRecord) bool {
	return hasDate(r.PostalCode)
}

func fixResidualDate(r model.ShippingRecord) model.ShippingRecord {
	table.Shift(&r.PostalCode, &r.EffectiveStart, &r.EffectiveEnd)
	return r
}

func matchResidualAddress(r model.ShippingRecord) bool {
	return hasLetter(r.PostalCode)
}

func fixResidualAddress(r model.ShippingRecord) model.ShippingRecord {
	r.StreetAddress = r.PostalCode
	r.PostalCode = table.Null
	return r
}
