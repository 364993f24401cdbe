package models

import (
	"encoding/json"
	"time"
)

// Transaction представляет запись журнала о завершённом платеже.
// Записи только добавляются и никогда не изменяются.
type Transaction struct {
	ID          int64           `json:"id"`           // Внутренний идентификатор записи
	UserUID     string          `json:"user_uid"`     // Ссылка на пользователя
	PaymentID   string          `json:"payment_id"`   // Идентификатор платежа в сети Pi
	Amount      float64         `json:"amount"`       // Сумма платежа в Pi
	Status      string          `json:"status"`       // Статус платежа, например "completed"
	TxID        string          `json:"txid"`         // Идентификатор транзакции в блокчейне
	RawDetails  json.RawMessage `json:"raw_details"`  // Полный ответ провайдера для аудита
	ProcessedAt time.Time       `json:"processed_at"` // Время обработки платежа
}
