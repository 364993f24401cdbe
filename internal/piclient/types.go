package piclient

import "encoding/json"

// Profile — ответ идентификационного эндпоинта /me.
type Profile struct {
	UID      string `json:"uid"`      // Авторитетный идентификатор пользователя
	Username string `json:"username"` // Имя пользователя в сети Pi
}

// PaymentStatus — блок статусов платежа в ответе провайдера.
type PaymentStatus struct {
	DeveloperApproved      bool `json:"developer_approved"`
	TransactionVerified    bool `json:"transaction_verified"`
	DeveloperCompleted     bool `json:"developer_completed"`
	Cancelled              bool `json:"cancelled"`
	UserCancelledOnNetwork bool `json:"user_cancelled"`
}

// PaymentTransaction — сведения о блокчейн-транзакции платежа.
type PaymentTransaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

// Payment — детали платежа, возвращаемые провайдером.
// Схема ответа меняется в зависимости от типа платежа, поэтому поле
// плательщика может находиться в разных местах (см. PayerUID).
type Payment struct {
	Identifier  string              `json:"identifier"`
	UserUID     string              `json:"user_uid"`
	Amount      float64             `json:"amount"`
	Memo        string              `json:"memo"`
	Metadata    map[string]any      `json:"metadata"`
	Status      PaymentStatus       `json:"status"`
	Transaction *PaymentTransaction `json:"transaction"`
	FromAddress string              `json:"from_address"`
	ToAddress   string              `json:"to_address"`
	CreatedAt   string              `json:"created_at"`

	// Raw — неразобранное тело ответа, сохраняется в журнал транзакций.
	Raw json.RawMessage `json:"-"`
}

// PayerUID возвращает идентификатор плательщика.
//
// Порядок разрешения зафиксирован и проверяется тестами:
//  1. поле user_uid;
//  2. metadata.user_uid;
//  3. metadata.uid;
//  4. from_address.
//
// Если ни одна стратегия не дала непустого значения, второй результат — false.
func (p *Payment) PayerUID() (string, bool) {
	if p.UserUID != "" {
		return p.UserUID, true
	}
	if v, ok := p.Metadata["user_uid"].(string); ok && v != "" {
		return v, true
	}
	if v, ok := p.Metadata["uid"].(string); ok && v != "" {
		return v, true
	}
	if p.FromAddress != "" {
		return p.FromAddress, true
	}
	return "", false
}
