package parser

// Interner deduplicates repeated strings. Household exports repeat a handful of
// account names, categories and payment methods on every row, so sharing one
// instance per distinct value keeps large record sets small.
type Interner struct {
	pool map[string]string
}

// NewInterner creates an interner with the given initial capacity.
func NewInterner(capacity int) *Interner {
	return &Interner{
		pool: make(map[string]string, capacity),
	}
}

// Intern returns the canonical instance of s.
func (i *Interner) Intern(s string) string {
	if s == "" {
		return ""
	}
	if interned, ok := i.pool[s]; ok {
		return interned
	}
	i.pool[s] = s
	return s
}

// Size returns the number of distinct strings seen.
func (i *Interner) Size() int {
	return len(i.pool)
}
