// Package models содержит доменную модель пользователя системы.
// Пользователь привязан к uid платёжной сети Pi; поля премиум-статуса
// образуют локальную запись о праве доступа.
package models

import "time"

// User представляет пользователя платёжной сети с локальной записью
// о премиум-доступе.
//
// Поле IsPremium — кэшированное производное значение: источником истины
// является PremiumExpiry относительно текущего времени. Флаг может
// устареть, поэтому статус всегда пересчитывается при чтении.
type User struct {
	UID           string     // Стабильный идентификатор пользователя в сети Pi
	Username      string     // Отображаемое имя, обновляется при каждой верификации
	IsPremium     bool       // Кэшированный признак премиум-доступа
	PremiumExpiry *time.Time // Дата окончания премиум-доступа, nil — доступ не выдавался
	CreatedAt     time.Time  // Дата создания записи
	UpdatedAt     time.Time  // Дата последнего обновления записи
}
