package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Store is a generic key-value accessor over one browser session. The cart
// core only ever uses the two well-known keys below.
type Store interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Remove(ctx context.Context, sessionID, key string) error
}

var ErrKeyNotFound = errors.New("session key not found")

const (
	// KeyCart holds the compact {productID: quantity} map.
	KeyCart = "cart"
	// KeyCartOrderID holds the id of the linked pending order.
	KeyCartOrderID = "cart_order_id"
)

// LoadCartData reads the session quantity map. A missing key is an empty cart.
func LoadCartData(ctx context.Context, s Store, sessionID string) (map[int64]int32, error) {
	data, err := s.Get(ctx, sessionID, KeyCart)
	if errors.Is(err, ErrKeyNotFound) {
		return map[int64]int32{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session cart: %w", err)
	}

	var cart map[int64]int32
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal session cart: %w", err)
	}
	if cart == nil {
		cart = map[int64]int32{}
	}
	return cart, nil
}

func SaveCartData(ctx context.Context, s Store, sessionID string, cart map[int64]int32) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal session cart: %w", err)
	}
	if err := s.Set(ctx, sessionID, KeyCart, data); err != nil {
		return fmt.Errorf("save session cart: %w", err)
	}
	return nil
}

// LoadOrderID reads the linked pending order id, nil when none is stored.
func LoadOrderID(ctx context.Context, s Store, sessionID string) (*uuid.UUID, error) {
	data, err := s.Get(ctx, sessionID, KeyCartOrderID)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load linked order id: %w", err)
	}

	id, err := uuid.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse linked order id: %w", err)
	}
	return &id, nil
}

func SaveOrderID(ctx context.Context, s Store, sessionID string, orderID *uuid.UUID) error {
	if orderID == nil {
		if err := s.Remove(ctx, sessionID, KeyCartOrderID); err != nil {
			return fmt.Errorf("remove linked order id: %w", err)
		}
		return nil
	}
	if err := s.Set(ctx, sessionID, KeyCartOrderID, []byte(orderID.String())); err != nil {
		return fmt.Errorf("save linked order id: %w", err)
	}
	return nil
}
