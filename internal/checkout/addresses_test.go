package checkout

import (
	"context"
	"testing"

	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBook(t *testing.T) *AddressBook {
	t.Helper()
	return NewAddressBook(repository.NewMemoryAddressRepository())
}

func addr(name string) domain.DeliveryAddress {
	return domain.DeliveryAddress{
		RecipientName: name,
		Phone:         "+15550001",
		Line1:         "1 Main St",
		City:          "Springfield",
	}
}

func defaultCount(t *testing.T, book *AddressBook, userID string) int {
	t.Helper()
	all, err := book.List(context.Background(), userID)
	require.NoError(t, err)
	n := 0
	for _, a := range all {
		if a.IsDefault {
			n++
		}
	}
	return n
}

func TestAdd_FirstAddressBecomesDefault(t *testing.T) {
	book := newBook(t)

	first, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := book.Add(context.Background(), "u1", addr("Alice Work"))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
	assert.Equal(t, 1, defaultCount(t, book, "u1"))
}

func TestAdd_ExplicitDefaultDemotesPrevious(t *testing.T) {
	book := newBook(t)

	first, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)

	newDefault := addr("Alice Work")
	newDefault.IsDefault = true
	second, err := book.Add(context.Background(), "u1", newDefault)
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	got, err := book.Get(context.Background(), "u1", first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)
	assert.Equal(t, 1, defaultCount(t, book, "u1"))
}

func TestAdd_RejectsIncomplete(t *testing.T) {
	book := newBook(t)

	_, err := book.Add(context.Background(), "u1", domain.DeliveryAddress{Line1: "1 Main St"})

	assert.ErrorIs(t, err, ErrEmptyAddress)
}

func TestDelete_PromotesNewDefault(t *testing.T) {
	book := newBook(t)
	first, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)
	second, err := book.Add(context.Background(), "u1", addr("Alice Work"))
	require.NoError(t, err)

	require.NoError(t, book.Delete(context.Background(), "u1", first.ID))

	got, err := book.Get(context.Background(), "u1", second.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
	assert.Equal(t, 1, defaultCount(t, book, "u1"))
}

func TestDelete_UnknownAddress(t *testing.T) {
	book := newBook(t)

	err := book.Delete(context.Background(), "u1", "missing")

	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestSetDefault_MovesTheFlag(t *testing.T) {
	book := newBook(t)
	first, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)
	second, err := book.Add(context.Background(), "u1", addr("Alice Work"))
	require.NoError(t, err)

	require.NoError(t, book.SetDefault(context.Background(), "u1", second.ID))

	demoted, err := book.Get(context.Background(), "u1", first.ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsDefault)
	assert.Equal(t, 1, defaultCount(t, book, "u1"))
}

func TestUpdate_KeepsDefaultFlag(t *testing.T) {
	book := newBook(t)
	first, err := book.Add(context.Background(), "u1", addr("Alice"))
	require.NoError(t, err)

	updated := addr("Alice Renamed")
	updated.ID = first.ID
	got, err := book.Update(context.Background(), "u1", updated)

	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", got.RecipientName)
	assert.True(t, got.IsDefault, "updating the default does not drop the flag")
}
