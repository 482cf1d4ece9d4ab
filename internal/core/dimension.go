package core

import "strings"

// DimensionGlobal is the catch-all dimension covering all traffic.
const DimensionGlobal = "global"

// Dimension is a normalized "kind:value" slice of traffic, e.g.
// "issuer:HDFC" or "method:upi". The bare kinds "global" and "system"
// have no value part.
type Dimension struct {
	Kind  string
	Value string
}

// ParseDimension normalizes a dimension string. Both ":" and "=" are
// accepted as delimiters; only the first delimiter splits, so values
// may themselves contain either character.
func ParseDimension(s string) Dimension {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, ":=")
	if idx < 0 {
		return Dimension{Kind: s}
	}
	return Dimension{
		Kind:  strings.TrimSpace(s[:idx]),
		Value: strings.TrimSpace(s[idx+1:]),
	}
}

// IssuerDimension formats the canonical dimension for an issuer.
func IssuerDimension(issuer string) string {
	return "issuer:" + issuer
}

// MethodDimension formats the canonical dimension for a payment method.
func MethodDimension(m PaymentMethod) string {
	return "method:" + string(m)
}

// String renders the canonical "kind:value" form.
func (d Dimension) String() string {
	if d.Value == "" {
		return d.Kind
	}
	return d.Kind + ":" + d.Value
}

// IsIssuer reports whether the dimension targets a single issuer.
func (d Dimension) IsIssuer() bool { return d.Kind == "issuer" }

// IsMethod reports whether the dimension targets a payment method.
func (d Dimension) IsMethod() bool { return d.Kind == "method" }

// Matches reports whether the transaction falls inside the dimension.
// Unknown kinds match nothing; "global" and "system" match everything.
func (d Dimension) Matches(t *Transaction) bool {
	switch d.Kind {
	case DimensionGlobal, "system", "":
		return true
	case "issuer":
		return t.Issuer == d.Value
	case "method":
		return string(t.Method) == d.Value
	case "merchant":
		return t.MerchantID == d.Value
	case "geography":
		return t.Geography == d.Value
	}
	return false
}
