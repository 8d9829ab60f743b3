package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound - общий признак отсутствующей сущности, handler отвечает 404
	ErrNotFound      = errors.New("not found")
	ErrItemNotFound  = fmt.Errorf("item %w", ErrNotFound)
	ErrStoreNotFound = fmt.Errorf("store %w", ErrNotFound)
	ErrPriceNotFound = fmt.Errorf("price record %w", ErrNotFound)

	ErrInvalidPrice = errors.New("invalid price")
	ErrInvalidQuery = errors.New("invalid query")
	ErrInvalidStore = errors.New("invalid store")
	ErrInvalidItem  = errors.New("invalid item")

	ErrStoreAlreadyExists = errors.New("store with this name already exists")
	// ErrConcurrentModification - товар несколько раз подряд изменялся другим процессом
	ErrConcurrentModification = errors.New("item was modified concurrently")
)
