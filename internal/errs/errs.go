// Package errs определяет виды ошибок уровня приложения.
// Сервисы оборачивают низкоуровневые ошибки в эти sentinel-значения,
// а HTTP-обработчики сопоставляют их со статус-кодами через errors.Is.
package errs

import "errors"

var (
	// ErrValidation — отсутствует обязательное входное поле;
	// внешние вызовы не выполнялись, состояние не менялось.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized — токен доступа отклонён провайдером либо
	// идентификатор пользователя не удалось установить.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrProvider — вызов approve/complete/detail к платёжной сети
	// завершился ошибкой или неуспешным статусом.
	ErrProvider = errors.New("payment provider error")

	// ErrUserNotFound — запрос статуса неизвестного пользователя.
	ErrUserNotFound = errors.New("user not found")

	// ErrStorage — хранилище недоступно или запись не удалась.
	ErrStorage = errors.New("storage error")

	// ErrAlreadyProcessed — платёж с таким payment_id уже есть в журнале;
	// повторное завершение не начисляет дни.
	ErrAlreadyProcessed = errors.New("payment already processed")

	// ErrCreditNotRecorded — провайдер подтвердил платёж, но локальное
	// начисление не записалось. Выделен отдельно, чтобы оператор мог
	// воспроизвести начисление по журналу событий.
	ErrCreditNotRecorded = errors.New("payment confirmed but not credited")
)
