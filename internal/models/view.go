package models

import "time"

// UserView — составное представление пользователя для ответов API.
// Признак IsPremium здесь всегда пересчитан из PremiumExpiry на момент
// запроса, а не взят из хранилища.
type UserView struct {
	UID                string         `json:"uid"`
	Username           string         `json:"username"`
	IsPremium          bool           `json:"is_premium"`
	PremiumExpiry      *time.Time     `json:"premium_expiry,omitempty"`
	RemainingDays      int            `json:"remaining_days"`
	RecentTransactions []*Transaction `json:"recent_transactions"`
}
