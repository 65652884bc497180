package intake

import "strings"

// DeriveFieldKey turns a prompt into a stable answer key: lower-cased, every
// run of characters outside [a-z0-9] collapsed to a single underscore, and
// leading/trailing underscores removed. Applying it to its own output is a
// no-op.
func DeriveFieldKey(prompt string) string {
	lower := strings.ToLower(prompt)
	var b strings.Builder
	b.Grow(len(lower))
	pendingSep := false
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteByte(c)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
