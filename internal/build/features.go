package build

import (
	"sync"

	"github.com/goplus/archbuild/internal/license"
)

// FeatureSet collects the consumer switches contributed by dependency
// steps. It is shared by all architecture pipelines, so a library built
// for four architectures still contributes its token once.
type FeatureSet struct {
	order []string // library declaration order

	mu          sync.Mutex
	tokens      map[string]string
	obligations license.Obligation
}

// NewFeatureSet returns an empty set that reports tokens in the order of
// libraries.
func NewFeatureSet(libraries []string) *FeatureSet {
	return &FeatureSet{
		order:  libraries,
		tokens: make(map[string]string, len(libraries)),
	}
}

// Add records token for library. Only the first contribution of a library
// counts; it reports whether this call was the first.
func (f *FeatureSet) Add(library, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[library]; ok {
		return false
	}
	f.tokens[library] = token
	return true
}

// Require adds license obligations.
func (f *FeatureSet) Require(o license.Obligation) {
	f.mu.Lock()
	f.obligations |= o
	f.mu.Unlock()
}

// Tokens returns the recorded non-empty tokens in declaration order.
func (f *FeatureSet) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, lib := range f.order {
		if tok := f.tokens[lib]; tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func (f *FeatureSet) Obligations() license.Obligation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.obligations
}
