package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/souqbot/server/internal/bot/model"
)

// DefaultMaxResults caps search output when the caller does not.
const DefaultMaxResults = 10

// InMemory is a process-local product catalog implementing the read-only
// lookup contract. Products are loaded per tenant at session start and
// replaced wholesale on reload.
type InMemory struct {
	mu       sync.RWMutex
	products map[string]model.Product
	order    []string // insertion order for stable search results
}

func NewInMemory() *InMemory {
	return &InMemory{products: make(map[string]model.Product)}
}

// Load replaces the catalog contents.
func (c *InMemory) Load(products []model.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = make(map[string]model.Product, len(products))
	c.order = c.order[:0]
	for _, p := range products {
		if _, dup := c.products[p.ID]; !dup {
			c.order = append(c.order, p.ID)
		}
		c.products[p.ID] = p
	}
}

// Get implements model.Catalog.
func (c *InMemory) Get(ctx context.Context, productID string) (model.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	return p, ok
}

// minTermLen drops stop-words and stray particles from conversational
// queries; "is" or "a" must never match a product.
const minTermLen = 3

// Search implements model.Catalog with case-insensitive whole-word matching
// over name, category and description. Query terms are matched individually
// so "brass lamp" finds a "Brass floor lamp"; punctuation is treated as a
// separator and a term also matches inflected forms of a word ("lamps"
// finds "lamp"). Haggling chatter with no product name returns no hits.
func (c *InMemory) Search(ctx context.Context, query string, maxResults int) []model.Product {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	var terms []string
	for _, t := range tokenize(query) {
		if len(t) >= minTermLen {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []model.Product
	for _, id := range c.order {
		p := c.products[id]
		tokens := tokenize(p.Name + " " + p.Category + " " + p.Description)
		if matchesAny(terms, tokens) {
			matched = append(matched, p)
		}
		if len(matched) == maxResults {
			break
		}
	}
	return matched
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func matchesAny(terms, tokens []string) bool {
	for _, term := range terms {
		for _, token := range tokens {
			if termMatches(term, token) {
				return true
			}
		}
	}
	return false
}

// termMatches compares whole words. A longer query term still matches when
// the catalog token is its stem ("lamps" finds "lamp"); tokens shorter than
// four runes are excluded from stem matching so a word like "army" can never
// match a token like "arm".
func termMatches(term, token string) bool {
	if term == token {
		return true
	}
	return len(token) >= 4 && strings.HasPrefix(term, token)
}

// All returns every product sorted by id, for prompt summaries.
func (c *InMemory) All() []model.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ model.Catalog = (*InMemory)(nil)
