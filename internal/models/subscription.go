package models

import "time"

// Subscription представляет одну покупку: окно действия премиум-доступа.
// После создания меняется только флаг IsActive (при замене новой покупкой),
// записи никогда не удаляются.
type Subscription struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Plan          string    `json:"plan"`           // weekly или monthly
	AmountPaid    int64     `json:"amount_paid"`    // Фактически списанная сумма в минимальных единицах
	StartDate     time.Time `json:"start_date"`     // Момент покупки
	EndDate       time.Time `json:"end_date"`       // StartDate + длительность тарифа
	IsActive      bool      `json:"is_active"`
	ExternalTxnID string    `json:"external_txn_id"` // Идентификатор транзакции платёжной системы
}

// Entitles сообщает, даёт ли запись доступ в момент now.
// Флаг активности без проверки даты окончания ничего не значит.
func (s *Subscription) Entitles(now time.Time) bool {
	return s != nil && s.IsActive && s.EndDate.After(now)
}

// Purchase описывает подтверждённую покупку, которую нужно записать в хранилище.
type Purchase struct {
	UserID        int64
	Plan          string
	AmountPaid    int64
	DurationDays  int
	ExternalTxnID string
}

// Status ответ на запрос "проверить статус".
// Отсутствие подписки не является ошибкой: Active=false, остальные поля пустые.
type Status struct {
	Active        bool       `json:"active"`
	Plan          *string    `json:"plan"`
	EndTimestamp  *time.Time `json:"endTimestamp"`
	DaysRemaining int        `json:"daysRemaining"`
}

// LegacyStatus повторяет формат ответа, который ожидает мини-приложение.
type LegacyStatus struct {
	HasSubscription bool    `json:"has_subscription"`
	Plan            *string `json:"plan"`
	EndDate         *string `json:"end_date"`
	DaysLeft        int     `json:"days_left"`
}

// Legacy конвертирует статус в формат мини-приложения.
func (s Status) Legacy() LegacyStatus {
	res := LegacyStatus{
		HasSubscription: s.Active,
		Plan:            s.Plan,
		DaysLeft:        s.DaysRemaining,
	}
	if s.EndTimestamp != nil {
		end := s.EndTimestamp.UTC().Format(time.RFC3339)
		res.EndDate = &end
	}
	return res
}

// EntitlementEvent публикуется в очередь уведомлений при выдаче
// и при скором окончании доступа.
type EntitlementEvent struct {
	UserID        int64     `json:"user_id"`
	Plan          string    `json:"plan"`
	AmountPaid    int64     `json:"amount_paid"`
	EndDate       time.Time `json:"end_date"`
	ExternalTxnID string    `json:"external_txn_id,omitempty"`
}
