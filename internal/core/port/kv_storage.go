package port

import (
	"context"
	"errors"
)

// ErrQuotaExceeded - значение не помещается в лимит локального хранилища
var ErrQuotaExceeded = errors.New("local storage quota exceeded")

// KeyValueStoragePort - долговременное локальное хранилище "ключ -> строка"
type KeyValueStoragePort interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}
