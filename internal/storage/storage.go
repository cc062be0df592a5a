// Package storage содержит ошибки, общие для всех реализаций хранилища
// пользователей и подписок.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTransaction возвращается, если покупка с таким идентификатором
	// транзакции платёжной системы уже записана. Вместе с ошибкой возвращается
	// существующая запись.
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
)

// StorageError оборачивает сбой хранилища (недоступность, ошибка ввода-вывода).
// Атомарные операции при такой ошибке не применяются частично.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap оборачивает err в StorageError для операции op. Возвращает nil для nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError сообщает, является ли err сбоем хранилища.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
