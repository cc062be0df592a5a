package models

// Offer выставляемый счёт, который внешняя платёжная система показывает пользователю.
type Offer struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Payload        string `json:"payload"`
	Currency       string `json:"currency"`
	Amount         int64  `json:"amount"`
	StartParameter string `json:"start_parameter"`
	State          string `json:"state"`
}

// DummyOffer используется для приёма запроса на выбор тарифа.
type DummyOffer struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Plan   string `json:"plan" validate:"required"`
}

// PreAuthRequest запрос платёжной системы "можно ли провести списание".
type PreAuthRequest struct {
	QueryID string `json:"query_id,omitempty"`
	Payload string `json:"payload"` // пустой или битый payload отклоняется решением, а не ошибкой запроса
}

// PreAuthDecision синхронный ответ на предварительную авторизацию.
type PreAuthDecision struct {
	QueryID      string `json:"query_id,omitempty"`
	OK           bool   `json:"ok"`
	ErrorMessage string `json:"error_message,omitempty"`
	State        string `json:"state"`
}

// Confirmation событие об успешном списании от платёжной системы.
type Confirmation struct {
	UserID        int64  `json:"user_id" validate:"required,gt=0"`
	Payload       string `json:"payload" validate:"required"`
	AmountCharged int64  `json:"amount_charged" validate:"required,gt=0"`
	Currency      string `json:"currency,omitempty"`
	ExternalTxnID string `json:"external_txn_id" validate:"required"`
}

// Receipt результат обработки подтверждения.
type Receipt struct {
	State        string        `json:"state"`
	Duplicate    bool          `json:"duplicate"`
	Subscription *Subscription `json:"subscription,omitempty"`
}
