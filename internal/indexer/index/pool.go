package index

import "strings"

// TermPool interns terms so every document frequency map shares one copy of
// each distinct term. Entries are never evicted.
type TermPool struct {
	terms map[string]string
	bytes int64
}

func NewTermPool() *TermPool {
	return &TermPool{terms: make(map[string]string)}
}

// Intern returns the pooled copy of term, adding it on first sight. The
// pooled copy is cloned so it does not pin the document text it came from.
func (p *TermPool) Intern(term string) string {
	if pooled, ok := p.terms[term]; ok {
		return pooled
	}
	owned := strings.Clone(term)
	p.terms[owned] = owned
	p.bytes += int64(len(owned))
	return owned
}

func (p *TermPool) Len() int {
	return len(p.terms)
}

// Size returns the number of bytes held by pooled terms.
func (p *TermPool) Size() int64 {
	return p.bytes
}
