// Package models содержит доменные структуры сервиса премиум-доступа:
// пользователя бота, запись о купленной подписке, статус доступа
// и типы, которыми обмениваются этапы оплаты.
package models

import "time"

// User представляет пользователя бота. Создаётся при первом обращении
// и обновляется (handle, имя, фамилия) при каждом последующем.
type User struct {
	ID        int64     `json:"id"`         // Идентификатор пользователя в мессенджере
	Username  string    `json:"username"`   // Имя пользователя (handle), может быть пустым
	FirstName string    `json:"first_name"` // Имя
	LastName  string    `json:"last_name"`  // Фамилия
	CreatedAt time.Time `json:"created_at"` // Дата первого обращения
	IsActive  bool      `json:"is_active"`
}

// DummyUser используется для приёма события "новый контакт" из JSON-запроса.
type DummyUser struct {
	ID        int64  `json:"user_id" validate:"required,gt=0"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Stats содержит простые счётчики для администратора.
type Stats struct {
	Users      int     `json:"users"`
	Active     int     `json:"active"`
	Free       int     `json:"free"`
	Conversion float64 `json:"conversion"` // Доля платящих пользователей в процентах
}
