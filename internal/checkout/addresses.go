package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/okoshkin/go_market/internal/repository"
)

var (
	ErrAddressNotFound = errors.New("delivery address not found")
	ErrEmptyAddress    = errors.New("address requires recipient, phone and line1")
)

// AddressBook manages a user's saved delivery addresses. It is the single
// writer of the book, which is how the one-default-per-user invariant is
// kept: every mutation rewrites the whole book with exactly one default.
type AddressBook struct {
	repo repository.AddressRepository
}

func NewAddressBook(repo repository.AddressRepository) *AddressBook {
	return &AddressBook{repo: repo}
}

func (b *AddressBook) List(ctx context.Context, userID string) ([]domain.DeliveryAddress, error) {
	return b.repo.ListAddresses(ctx, userID)
}

func (b *AddressBook) Get(ctx context.Context, userID, addressID string) (*domain.DeliveryAddress, error) {
	book, err := b.repo.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range book {
		if book[i].ID == addressID {
			return &book[i], nil
		}
	}
	return nil, ErrAddressNotFound
}

// Add appends an address. The first address in the book always becomes
// the default; an explicit IsDefault on a later one demotes the previous
// default.
func (b *AddressBook) Add(ctx context.Context, userID string, addr domain.DeliveryAddress) (*domain.DeliveryAddress, error) {
	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	book, err := b.repo.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}

	addr.ID = uuid.NewString()
	if len(book) == 0 {
		addr.IsDefault = true
	}
	book = append(book, addr)
	if addr.IsDefault {
		demoteOthers(book, addr.ID)
	}

	if err := b.repo.SaveAddresses(ctx, userID, book); err != nil {
		return nil, fmt.Errorf("save address book: %w", err)
	}
	return &addr, nil
}

func (b *AddressBook) Update(ctx context.Context, userID string, addr domain.DeliveryAddress) (*domain.DeliveryAddress, error) {
	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	book, err := b.repo.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range book {
		if book[i].ID == addr.ID {
			// updating never silently drops the default flag off the book
			addr.IsDefault = addr.IsDefault || book[i].IsDefault
			book[i] = addr
			found = true
			break
		}
	}
	if !found {
		return nil, ErrAddressNotFound
	}
	if addr.IsDefault {
		demoteOthers(book, addr.ID)
	}

	if err := b.repo.SaveAddresses(ctx, userID, book); err != nil {
		return nil, fmt.Errorf("save address book: %w", err)
	}
	return &addr, nil
}

// Delete removes an address. When the default is removed the first
// remaining address is promoted, so a non-empty book always has a default.
func (b *AddressBook) Delete(ctx context.Context, userID, addressID string) error {
	book, err := b.repo.ListAddresses(ctx, userID)
	if err != nil {
		return err
	}

	wasDefault := false
	kept := book[:0]
	found := false
	for _, a := range book {
		if a.ID == addressID {
			found = true
			wasDefault = a.IsDefault
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return ErrAddressNotFound
	}
	if wasDefault && len(kept) > 0 {
		kept[0].IsDefault = true
	}

	return b.repo.SaveAddresses(ctx, userID, kept)
}

func (b *AddressBook) SetDefault(ctx context.Context, userID, addressID string) error {
	book, err := b.repo.ListAddresses(ctx, userID)
	if err != nil {
		return err
	}

	found := false
	for i := range book {
		book[i].IsDefault = book[i].ID == addressID
		found = found || book[i].IsDefault
	}
	if !found {
		return ErrAddressNotFound
	}

	return b.repo.SaveAddresses(ctx, userID, book)
}

func demoteOthers(book []domain.DeliveryAddress, keepID string) {
	for i := range book {
		if book[i].ID != keepID {
			book[i].IsDefault = false
		}
	}
}

func validateAddress(addr domain.DeliveryAddress) error {
	if addr.RecipientName == "" || addr.Phone == "" || addr.Line1 == "" {
		return ErrEmptyAddress
	}
	return nil
}
