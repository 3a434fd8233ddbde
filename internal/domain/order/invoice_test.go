package order

import (
	"regexp"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceGenerator_Format(t *testing.T) {
	code, err := NewInvoiceGenerator("").Next()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^INV-[0-9A-F]{32}$`), code)

	code, err = NewInvoiceGenerator("ORD-").Next()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ORD-[0-9A-F]{32}$`), code)
}

func TestInvoiceGenerator_Unique(t *testing.T) {
	g := NewInvoiceGenerator(DefaultInvoicePrefix)
	seen := make(map[string]struct{}, 10_000)
	for range 10_000 {
		code, err := g.Next()
		require.NoError(t, err)
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

func TestInvoiceGenerator_SkipsIssued(t *testing.T) {
	ids := []uuid.UUID{
		uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057"),
		uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057"),
		uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8058"),
	}
	var i int
	g := NewInvoiceGeneratorFunc("INV-", func() (uuid.UUID, error) {
		id := ids[i]
		i++
		return id, nil
	})

	first, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "INV-01890A5DAC96774BBCCEB302099A8057", first)

	second, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "INV-01890A5DAC96774BBCCEB302099A8058", second)
	assert.Equal(t, 3, i)
}

func TestInvoiceGenerator_GivesUp(t *testing.T) {
	id := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	g := NewInvoiceGeneratorFunc("INV-", func() (uuid.UUID, error) { return id, nil })

	_, err := g.Next()
	require.NoError(t, err)
	_, err = g.Next()
	require.Error(t, err)
}

func TestInvoiceGenerator_SourceError(t *testing.T) {
	boom := errors.New("entropy exhausted")
	g := NewInvoiceGeneratorFunc("INV-", func() (uuid.UUID, error) { return uuid.Nil, boom })

	_, err := g.Next()
	require.ErrorIs(t, err, boom)
}
