package order

import "github.com/google/uuid"

// NewInvoiceGeneratorFunc returns a generator drawing ids from newID.
func NewInvoiceGeneratorFunc(prefix string, newID func() (uuid.UUID, error)) *InvoiceGenerator {
	g := NewInvoiceGenerator(prefix)
	g.newID = newID
	return g
}
