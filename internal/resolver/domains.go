package resolver

import "github.com/xkilldash9x/deskmind/api/schemas"

// preferredDomains maps each intent category to the capability id prefixes
// it is expected to draw from. Categories without an entry search the whole
// registry directly.
var preferredDomains = map[schemas.IntentCategory][]string{
	schemas.CategoryAppLifecycle:     {"app."},
	schemas.CategoryWindowManagement: {"window."},
	schemas.CategorySystemQuery:      {"system.query."},
	schemas.CategorySystemControl:    {"system.control."},
	schemas.CategoryScreenCapture:    {"screen.capture"},
	schemas.CategoryScreenPerception: {"screen.read", "screen.ocr"},
	schemas.CategoryInputInjection:   {"input."},
	schemas.CategoryFileOperation:    {"file."},
	schemas.CategoryBrowserControl:   {"browser."},
	schemas.CategoryOfficeDocument:   {"office."},
	schemas.CategoryClipboard:        {"clipboard."},
	schemas.CategoryMemoryRecall:     {"memory."},
}

// PreferredDomains returns the capability prefixes for category, or nil.
func PreferredDomains(category schemas.IntentCategory) []string {
	return append([]string(nil), preferredDomains[category]...)
}

// HasPreferredDomain reports whether category has a direct resolution domain.
func HasPreferredDomain(category schemas.IntentCategory) bool {
	return len(preferredDomains[category]) > 0
}
