// Package transform implements the compiled matcher/action pipeline that
// redacts, masks, replaces, or drops fields in a span before export (spec
// §4.3).
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/replaytrace/core/tracer"
)

// Direction mirrors a matcher's direction field, mapped onto span kind
// (spec §4.3: "maps to span kind SERVER/CLIENT").
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// targetKind is the exactly-one-of target a matcher selects.
type targetKind int

const (
	targetJSONPath targetKind = iota
	targetQueryParam
	targetHeaderName
	targetURLPath
	targetFullBody
)

// Matcher selects a span by direction, method, path/host patterns, and
// exactly one target field (spec §4.3).
type Matcher struct {
	Direction   Direction
	Methods     []string // empty = wildcard
	PathPattern *regexp.Regexp
	Host        *regexp.Regexp

	target     targetKind
	jsonPath   string
	queryParam string
	headerName string
}

// CompileMatcher validates and compiles a raw matcher configuration
// (decoded from YAML as a generic map by internal/driftconfig). Exactly
// one target field must be set and any regex must be valid, both enforced
// at compile time per spec §4.3.
func CompileMatcher(raw map[string]any) (*Matcher, error) {
	m := &Matcher{}

	switch dir, _ := raw["direction"].(string); Direction(strings.ToLower(dir)) {
	case DirectionInbound:
		m.Direction = DirectionInbound
	case DirectionOutbound:
		m.Direction = DirectionOutbound
	default:
		return nil, fmt.Errorf("transform matcher: direction must be %q or %q", DirectionInbound, DirectionOutbound)
	}

	if methods, ok := raw["method"]; ok {
		switch v := methods.(type) {
		case []string:
			m.Methods = v
		case []any:
			for _, e := range v {
				if s, ok := e.(string); ok {
					m.Methods = append(m.Methods, strings.ToUpper(s))
				}
			}
		}
	}

	if p, ok := raw["pathPattern"].(string); ok && p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("transform matcher: invalid pathPattern %q: %w", p, err)
		}
		m.PathPattern = re
	}
	if h, ok := raw["host"].(string); ok && h != "" {
		re, err := regexp.Compile(h)
		if err != nil {
			return nil, fmt.Errorf("transform matcher: invalid host %q: %w", h, err)
		}
		m.Host = re
	}

	targets := 0
	if jp, ok := raw["jsonPath"].(string); ok && jp != "" {
		m.target = targetJSONPath
		m.jsonPath = jp
		targets++
	}
	if qp, ok := raw["queryParam"].(string); ok && qp != "" {
		m.target = targetQueryParam
		m.queryParam = qp
		targets++
	}
	if hn, ok := raw["headerName"].(string); ok && hn != "" {
		m.target = targetHeaderName
		m.headerName = hn
		targets++
	}
	if up, ok := raw["urlPath"].(bool); ok && up {
		m.target = targetURLPath
		targets++
	}
	if fb, ok := raw["fullBody"].(bool); ok && fb {
		m.target = targetFullBody
		targets++
	}
	if targets != 1 {
		return nil, fmt.Errorf("transform matcher: exactly one target field required (jsonPath, queryParam, headerName, urlPath, fullBody), got %d", targets)
	}

	return m, nil
}

// matches reports whether m selects the given span view.
func (m *Matcher) matches(v *spanView) bool {
	wantKind := tracer.KindClient
	if m.Direction == DirectionInbound {
		wantKind = tracer.KindServer
	}
	if v.kind != wantKind {
		return false
	}
	if len(m.Methods) > 0 {
		found := false
		for _, meth := range m.Methods {
			if strings.EqualFold(meth, v.method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.PathPattern != nil && !m.PathPattern.MatchString(v.path) {
		return false
	}
	if m.Host != nil && !m.Host.MatchString(v.host) {
		return false
	}
	return true
}
