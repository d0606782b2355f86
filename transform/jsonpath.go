package transform

import "strings"

// toGjsonPath translates a JSONPath expression of the limited dialect the
// spec's worked examples use ($.a.b[0], $.password) into the dotted path
// dialect gjson/sjson read and write (a.b.0), per SPEC_FULL.md §11.
func toGjsonPath(jsonPath string) string {
	p := strings.TrimPrefix(jsonPath, "$.")
	p = strings.TrimPrefix(p, "$")
	p = strings.ReplaceAll(p, "[", ".")
	p = strings.ReplaceAll(p, "]", "")
	return strings.Trim(p, ".")
}
