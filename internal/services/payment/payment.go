// Package payment реализует трёхфазный протокол оплаты подписки:
// выставление счёта, предварительная авторизация и подтверждение списания.
//
// До подтверждения ничего не сохраняется. Предварительная авторизация
// работает только с каталогом тарифов в памяти и не обращается к хранилищу.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/metrics"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	"github.com/magabrotheeeer/premium-entitlements/internal/plans"
	"github.com/magabrotheeeer/premium-entitlements/internal/services/entitlement"
	"github.com/magabrotheeeer/premium-entitlements/internal/storage"
)

var (
	// ErrPayloadCorruption payload подтверждённого платежа не разбирается.
	// Подписка не выдаётся, событие логируется как инцидент.
	ErrPayloadCorruption = errors.New("payload corruption")
	// ErrPreauthRejected предварительная авторизация отклонена.
	ErrPreauthRejected = errors.New("preauthorization rejected")
)

// Сообщение пользователю при отклонении предварительной авторизации.
const rejectMessage = "Unknown subscription plan"

const confirmationTimeout = 10 * time.Second

// Granter выдаёт подписку по подтверждённой оплате.
type Granter interface {
	GrantEntitlement(ctx context.Context, userID int64, plan string, amountPaid int64, txnID string) (*models.Subscription, error)
}

// Flow обработчик фаз оплаты.
type Flow struct {
	catalog  *plans.Catalog
	granter  Granter
	validate *validator.Validate
	log      *slog.Logger
}

func New(catalog *plans.Catalog, granter Granter, log *slog.Logger) *Flow {
	return &Flow{
		catalog:  catalog,
		granter:  granter,
		validate: validator.New(),
		log:      log,
	}
}

// Quote формирует счёт на тариф planTag для пользователя userID.
func (f *Flow) Quote(userID int64, planTag string) (models.Offer, error) {
	const op = "payment.Quote"

	plan, err := f.catalog.Lookup(planTag)
	if err != nil {
		return models.Offer{}, fmt.Errorf("%s: %w", op, err)
	}

	offer := models.Offer{
		Title:          plan.Title,
		Description:    plan.Description,
		Payload:        plans.EncodePayload(plan),
		Currency:       f.catalog.Currency(),
		Amount:         plan.Price,
		StartParameter: "subscribe_" + plan.Tag,
		State:          string(StateQuoted),
	}
	f.log.Debug("offer quoted",
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.String("payload", offer.Payload),
		slog.Int64("amount", offer.Amount),
	)
	return offer, nil
}

// PreAuthorize отвечает платёжной системе, можно ли проводить списание.
// Одобряется любой payload, который разбирается в известный тариф.
func (f *Flow) PreAuthorize(req models.PreAuthRequest) (models.PreAuthDecision, error) {
	const op = "payment.PreAuthorize"
	log := f.log.With(slog.String("op", op), slog.String("query_id", req.QueryID))
	state := advance(log, StateQuoted, StatePreauthPending)

	plan, err := f.catalog.DecodePayload(req.Payload)
	metrics.RecordPreAuthorization(err == nil)
	if err != nil {
		log.Warn("preauthorization rejected", slog.String("payload", req.Payload), sl.Err(err))
		return models.PreAuthDecision{
			QueryID:      req.QueryID,
			OK:           false,
			ErrorMessage: rejectMessage,
			State:        string(advance(log, state, StateRejected)),
		}, fmt.Errorf("%s: %w: %w", op, ErrPreauthRejected, err)
	}

	log.Debug("preauthorization approved", slog.String("plan", plan.Tag))
	return models.PreAuthDecision{
		QueryID: req.QueryID,
		OK:      true,
		State:   string(advance(log, state, StatePreauthApproved)),
	}, nil
}

// Confirm обрабатывает сообщение о проведённом списании и выдаёт подписку.
// Повторное подтверждение той же транзакции возвращает успешную квитанцию
// с Duplicate = true и ничего не меняет.
func (f *Flow) Confirm(ctx context.Context, c models.Confirmation) (models.Receipt, error) {
	const op = "payment.Confirm"
	log := f.log.With(
		slog.String("op", op),
		slog.Int64("user_id", c.UserID),
		slog.String("txn_id", c.ExternalTxnID),
	)

	// списание проводится только после одобренной предварительной авторизации
	state := StatePreauthApproved

	plan, err := f.catalog.DecodePayload(c.Payload)
	if err != nil {
		metrics.RecordConfirmation("payload_corruption")
		log.Error("payment confirmed with corrupted payload, entitlement not granted",
			slog.String("payload", c.Payload),
			slog.Int64("amount_charged", c.AmountCharged),
			sl.Err(err),
		)
		return models.Receipt{State: string(advance(log, state, StateRejected))}, fmt.Errorf("%s: %w: %w", op, ErrPayloadCorruption, err)
	}

	if c.Currency != "" && c.Currency != f.catalog.Currency() {
		log.Warn("unexpected currency", slog.String("currency", c.Currency))
	}
	if c.AmountCharged != plan.Price {
		metrics.RecordAmountMismatch()
		log.Warn("charged amount differs from plan price",
			slog.Int64("amount_charged", c.AmountCharged),
			slog.Int64("price", plan.Price),
		)
	}

	sub, err := f.granter.GrantEntitlement(ctx, c.UserID, plan.Tag, c.AmountCharged, c.ExternalTxnID)
	switch {
	case errors.Is(err, entitlement.ErrDuplicateConfirmation):
		metrics.RecordConfirmation("duplicate")
		log.Info("duplicate confirmation ignored")
		return models.Receipt{State: string(advance(log, state, StateConfirmed)), Duplicate: true, Subscription: sub}, nil
	case err != nil:
		metrics.RecordConfirmation("failed")
		log.Error("failed to grant entitlement", sl.Err(err))
		return models.Receipt{State: string(state)}, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordConfirmation("confirmed")
	log.Info("payment confirmed", slog.String("plan", plan.Tag), slog.Time("end_date", sub.EndDate))
	return models.Receipt{State: string(advance(log, state, StateConfirmed)), Subscription: sub}, nil
}

// HandleConfirmationMessage обрабатывает подтверждение из очереди.
// Ошибка возвращается только при сбое хранилища, чтобы сообщение вернулось
// в очередь. Остальные сообщения повторно не обрабатываются.
// Принятое подтверждение доводится до конца и при остановке потребителя:
// от ctx берутся только значения, срок ограничен confirmationTimeout.
func (f *Flow) HandleConfirmationMessage(ctx context.Context, body []byte) error {
	const op = "payment.HandleConfirmationMessage"
	log := f.log.With(slog.String("op", op))

	var c models.Confirmation
	if err := json.Unmarshal(body, &c); err != nil {
		log.Error("failed to decode confirmation message", sl.Err(err))
		return nil
	}
	if err := f.validate.Struct(c); err != nil {
		log.Error("invalid confirmation message", slog.Int64("user_id", c.UserID), sl.Err(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmationTimeout)
	defer cancel()

	_, err := f.Confirm(ctx, c)
	if err != nil && storage.IsStorageError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
