package conversation

import (
	"fmt"
	"strings"
)

// RouteTag is the closed set of domains a turn can be routed to.
type RouteTag int

const (
	RouteUnset RouteTag = iota
	RouteTax
	RoutePayroll
	RouteFinancial
	RouteCombined
)

// Routes lists every selectable route in canonical order.
var Routes = []RouteTag{RouteTax, RoutePayroll, RouteFinancial, RouteCombined}

var routeNames = map[RouteTag]string{
	RouteUnset:     "unset",
	RouteTax:       "tax",
	RoutePayroll:   "payroll",
	RouteFinancial: "financial",
	RouteCombined:  "combined",
}

// routeAliases are the extra wire labels accepted when decoding.
var routeAliases = map[string]RouteTag{
	"paye": RoutePayroll,
	"both": RouteCombined,
}

func (r RouteTag) String() string {
	if name, ok := routeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("route(%d)", int(r))
}

// Valid reports whether r is one of the selectable routes (Unset excluded).
func (r RouteTag) Valid() bool {
	return r >= RouteTax && r <= RouteCombined
}

// ParseRouteTag maps a label (case-insensitive, aliases included) to a
// selectable route. It never returns RouteUnset with ok=true.
func ParseRouteTag(label string) (RouteTag, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	for tag, name := range routeNames {
		if tag.Valid() && name == label {
			return tag, true
		}
	}
	if tag, ok := routeAliases[label]; ok {
		return tag, true
	}
	return RouteUnset, false
}

// MarshalText encodes the route as its label.
func (r RouteTag) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a label; "unset" and "" decode to RouteUnset.
func (r *RouteTag) UnmarshalText(text []byte) error {
	label := strings.ToLower(strings.TrimSpace(string(text)))
	if label == "" || label == routeNames[RouteUnset] {
		*r = RouteUnset
		return nil
	}
	tag, ok := ParseRouteTag(label)
	if !ok {
		return fmt.Errorf("conversation: unknown route %q", string(text))
	}
	*r = tag
	return nil
}
