package cart

import (
	"testing"

	"github.com/okoshkin/go_market/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLines() []domain.CartLine {
	return []domain.CartLine{
		{ID: "l1", ProductID: 1, VendorID: "vendor-a", UnitPrice: 120, Quantity: 2, Available: true},
		{ID: "l2", ProductID: 2, VendorID: "vendor-b", UnitPrice: 90, Quantity: 1, Available: true},
	}
}

func TestAddItem_NewLine(t *testing.T) {
	agg := NewAggregator(nil)

	err := agg.AddItem(domain.CartLine{ID: "l1", ProductID: 1, VendorID: "vendor-a", UnitPrice: 50, Quantity: 2, Available: true})

	require.NoError(t, err)
	require.Len(t, agg.Lines(), 1)
	assert.Equal(t, 2, agg.Lines()[0].Quantity)
}

func TestAddItem_MergesSameProduct(t *testing.T) {
	agg := NewAggregator(sampleLines())

	err := agg.AddItem(domain.CartLine{ID: "l3", ProductID: 1, VendorID: "vendor-a", UnitPrice: 120, Quantity: 3, Available: true})

	require.NoError(t, err)
	require.Len(t, agg.Lines(), 2)
	assert.Equal(t, 5, agg.Lines()[0].Quantity)
}

func TestAddItem_RejectsNonPositiveQuantity(t *testing.T) {
	agg := NewAggregator(nil)

	assert.ErrorIs(t, agg.AddItem(domain.CartLine{ID: "l1", Quantity: 0}), ErrInvalidQuantity)
}

func TestUpdateQuantity_ZeroEqualsRemove(t *testing.T) {
	agg := NewAggregator(sampleLines())

	require.NoError(t, agg.UpdateQuantity("l1", 0))

	lines := agg.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "l2", lines[0].ID)
}

func TestUpdateQuantity_NegativeEqualsRemove(t *testing.T) {
	agg := NewAggregator(sampleLines())

	require.NoError(t, agg.UpdateQuantity("l2", -3))
	assert.Len(t, agg.Lines(), 1)
}

func TestUpdateQuantity_UnknownLine(t *testing.T) {
	agg := NewAggregator(sampleLines())

	assert.ErrorIs(t, agg.UpdateQuantity("missing", 2), ErrLineNotFound)
}

func TestUpdateQuantity_UnavailableBlocksIncrease(t *testing.T) {
	lines := sampleLines()
	lines[0].Available = false
	agg := NewAggregator(lines)

	assert.ErrorIs(t, agg.UpdateQuantity("l1", 3), ErrItemUnavailable)

	// decreasing and removing stay permitted
	require.NoError(t, agg.UpdateQuantity("l1", 1))
	require.NoError(t, agg.RemoveItem("l1"))
}

func TestUnavailableLine_VisibleButNotPriced(t *testing.T) {
	lines := sampleLines()
	lines[0].Available = false
	agg := NewAggregator(lines)

	assert.Len(t, agg.Lines(), 2)

	b := agg.Breakdown(nil, domain.DeliveryRule{FreeThreshold: 500, Fee: 100})
	assert.Equal(t, 90.0, b.Subtotal)
}

func TestGroupByVendor_EmptiedGroupDisappears(t *testing.T) {
	agg := NewAggregator(sampleLines())
	require.Len(t, agg.GroupByVendor(), 2)

	require.NoError(t, agg.RemoveItem("l2"))

	groups := agg.GroupByVendor()
	require.Len(t, groups, 1)
	assert.Equal(t, "vendor-a", groups[0].VendorID)
}

func TestClear_EmptiesEverything(t *testing.T) {
	agg := NewAggregator(sampleLines())

	agg.Clear()

	assert.Empty(t, agg.Lines())
	assert.Empty(t, agg.GroupByVendor())
}

func TestRollbackLast_RestoresExactPriorLine(t *testing.T) {
	original := sampleLines()
	agg := NewAggregator(original)

	require.NoError(t, agg.UpdateQuantity("l1", 7))
	require.NoError(t, agg.RollbackLast())

	assert.Equal(t, original, agg.Lines())
}

func TestRollbackLast_AfterRemove(t *testing.T) {
	original := sampleLines()
	agg := NewAggregator(original)

	require.NoError(t, agg.RemoveItem("l1"))
	require.NoError(t, agg.RollbackLast())

	assert.Equal(t, original, agg.Lines())
}

func TestRollbackLast_Empty(t *testing.T) {
	agg := NewAggregator(nil)
	assert.ErrorIs(t, agg.RollbackLast(), ErrNothingToUndo)
}
