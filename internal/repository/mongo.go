package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okoshkin/go_market/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(database), nil
}

type mongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{collection: db.Collection("carts")}
}

func (m *mongoCartRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

func (m *mongoCartRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	filter := bson.M{"user_id": cart.UserID}
	update := bson.M{"$set": cart}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *mongoCartRepository) DeleteCart(ctx context.Context, userID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

type mongoAddressRepository struct {
	collection *mongo.Collection
}

func NewMongoAddressRepository(db *mongo.Database) AddressRepository {
	return &mongoAddressRepository{collection: db.Collection("addresses")}
}

type addressBookDoc struct {
	UserID    string                   `bson:"user_id"`
	Addresses []domain.DeliveryAddress `bson:"addresses"`
	UpdatedAt time.Time                `bson:"updated_at"`
}

func (m *mongoAddressRepository) ListAddresses(ctx context.Context, userID string) ([]domain.DeliveryAddress, error) {
	var doc addressBookDoc
	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get address book: %w", err)
	}
	return doc.Addresses, nil
}

func (m *mongoAddressRepository) SaveAddresses(ctx context.Context, userID string, book []domain.DeliveryAddress) error {
	doc := addressBookDoc{UserID: userID, Addresses: book, UpdatedAt: time.Now()}
	filter := bson.M{"user_id": userID}
	opts := options.Update().SetUpsert(true)
	if _, err := m.collection.UpdateOne(ctx, filter, bson.M{"$set": doc}, opts); err != nil {
		return fmt.Errorf("failed to save address book: %w", err)
	}
	return nil
}
