package rbac

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label renders a permission name for display, e.g. "viewAllInquiries" becomes
// "View All Inquiries".
func (p Permission) Label() string {
	var b strings.Builder
	for i, r := range string(p) {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return title(b.String())
}

// Label renders a role for display, e.g. "SERVICE_PROVIDER" becomes
// "Service Provider".
func (r Role) Label() string {
	return title(strings.ToLower(strings.ReplaceAll(string(r), "_", " ")))
}

// title upper-cases the first letter of each word.
func title(s string) string {
	return cases.Title(language.English).String(s)
}
