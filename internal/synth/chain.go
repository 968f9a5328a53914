package synth

import "fmt"

// ChainSet maps each failure category to its ordered provider fallback chain.
// The set is built once at startup and only read afterwards, so lookups need
// no locking.
type ChainSet struct {
	chains map[Category][]string
}

// NewChainSet validates and freezes the per-category chains. Every chain
// entry must name a provider in known, and every category must have a chain
// (an explicit empty chain is allowed and means "no fallbacks, go straight to
// canned audio").
func NewChainSet(chains map[Category][]string, known map[string]bool) (*ChainSet, error) {
	frozen := make(map[Category][]string, len(Categories))
	for _, cat := range Categories {
		chain, ok := chains[cat]
		if !ok {
			return nil, fmt.Errorf("synth: no fallback chain for category %q", cat)
		}
		for _, name := range chain {
			if !known[name] {
				return nil, fmt.Errorf("synth: chain for %q names unknown provider %q", cat, name)
			}
		}
		frozen[cat] = append([]string(nil), chain...)
	}
	return &ChainSet{chains: frozen}, nil
}

// DefaultChains builds a uniform chain set that tries every provider in the
// given order for every category. Used when the deployment does not configure
// per-category chains.
func DefaultChains(order []string) map[Category][]string {
	chains := make(map[Category][]string, len(Categories))
	for _, cat := range Categories {
		chains[cat] = append([]string(nil), order...)
	}
	return chains
}

// Chain returns the ordered provider list for cat. The returned slice must
// not be mutated.
func (cs *ChainSet) Chain(cat Category) []string {
	return cs.chains[cat]
}
