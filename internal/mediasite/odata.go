package mediasite

import (
	"fmt"
	"net/url"
	"strings"
)

// EncodeODataString prepares s for use inside a quoted OData string literal:
// single quotes are doubled, then the result is query-escaped.
func EncodeODataString(s string) string {
	return url.QueryEscape(strings.ReplaceAll(s, "'", "''"))
}

// filterQuery renders a raw $filter query. Literal values must already have
// gone through EncodeODataString; the remaining spaces of the expression are
// percent-encoded.
func filterQuery(format string, args ...any) string {
	expr := fmt.Sprintf(format, args...)
	return "$filter=" + strings.ReplaceAll(expr, " ", "%20")
}
