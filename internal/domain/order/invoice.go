package order

import (
	"encoding/hex"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

const (
	// DefaultInvoicePrefix is prepended to every invoice code.
	DefaultInvoicePrefix = "INV-"

	invoiceFilterCapacity = 1_000_000
	invoiceFilterFPR      = 0.0001
	invoiceMaxDraws       = 8
)

// InvoiceGenerator issues invoice codes of the form prefix + uppercase hex of a
// UUIDv7. The time-ordered prefix keeps codes sortable and the random tail
// makes same-millisecond collisions negligible. Codes this process has already
// issued are filtered out; the storage unique index remains authoritative.
type InvoiceGenerator struct {
	prefix string
	newID  func() (uuid.UUID, error)

	mu     sync.Mutex
	issued *bloom.BloomFilter
	count  uint
}

// NewInvoiceGenerator returns a generator using prefix (DefaultInvoicePrefix
// when empty).
func NewInvoiceGenerator(prefix string) *InvoiceGenerator {
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	return &InvoiceGenerator{
		prefix: prefix,
		newID:  uuid.NewV7,
		issued: bloom.NewWithEstimates(invoiceFilterCapacity, invoiceFilterFPR),
	}
}

// Next returns a code that this generator has not issued before.
func (g *InvoiceGenerator) Next() (string, error) {
	for range invoiceMaxDraws {
		id, err := g.newID()
		if err != nil {
			return "", errors.Wrap(err, "generate invoice id")
		}
		code := g.prefix + strings.ToUpper(hex.EncodeToString(id[:]))
		if g.remember(code) {
			return code, nil
		}
	}
	return "", errors.Errorf("no fresh invoice code after %d draws", invoiceMaxDraws)
}

// remember records code and reports whether it was new to the filter.
func (g *InvoiceGenerator) remember(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	// A saturated filter reports almost everything as seen.
	if g.count >= invoiceFilterCapacity {
		g.issued.ClearAll()
		g.count = 0
	}
	if g.issued.TestAndAddString(code) {
		return false
	}
	g.count++
	return true
}
