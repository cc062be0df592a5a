// Package plans описывает тарифы премиум-доступа и кодирование
// непрозрачного payload, который проходит через платёжную систему
// от выставления счёта до подтверждения оплаты.
//
// Каталог неизменяем после создания и внедряется в сервисы при сборке приложения.
package plans

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Известные тарифы.
const (
	Weekly  = "weekly"
	Monthly = "monthly"
)

// DefaultCurrency код валюты Telegram Stars.
const DefaultCurrency = "XTR"

const payloadPrefix = "subscription"

var (
	// ErrInvalidPlan возвращается для неизвестного тарифа.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrMalformedPayload возвращается, если payload не удаётся разобрать.
	ErrMalformedPayload = errors.New("malformed payload")
)

// durations фиксирует длительность тарифа в днях. Не настраивается.
var durations = map[string]int{
	Weekly:  7,
	Monthly: 30,
}

var defaultPrices = map[string]int64{
	Weekly:  50,
	Monthly: 150,
}

// Plan тариф с ценой и длительностью.
type Plan struct {
	Tag          string `json:"tag"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Price        int64  `json:"price"`
	DurationDays int    `json:"duration_days"`
}

// Options задаёт настраиваемые части каталога.
type Options struct {
	Product  string           // Название продукта для заголовка счёта
	Currency string           // Код валюты, по умолчанию XTR
	Prices   map[string]int64 // Цена по тегу тарифа; отсутствующие берутся по умолчанию
}

// Catalog неизменяемый набор тарифов.
type Catalog struct {
	currency string
	plans    map[string]Plan
}

// NewCatalog собирает каталог из настроек и проверяет цены.
func NewCatalog(opts Options) (*Catalog, error) {
	const op = "plans.NewCatalog"

	for tag := range opts.Prices {
		if _, ok := durations[tag]; !ok {
			return nil, fmt.Errorf("%s: %w: %q", op, ErrInvalidPlan, tag)
		}
	}

	currency := opts.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	product := opts.Product
	if product == "" {
		product = "Premium"
	}

	c := &Catalog{
		currency: currency,
		plans:    make(map[string]Plan, len(durations)),
	}
	for tag, days := range durations {
		price, ok := opts.Prices[tag]
		if !ok {
			price = defaultPrices[tag]
		}
		if price <= 0 {
			return nil, fmt.Errorf("%s: price for %q must be positive", op, tag)
		}
		c.plans[tag] = Plan{
			Tag:          tag,
			Title:        fmt.Sprintf("%s - %s", product, strings.ToUpper(tag[:1])+tag[1:]),
			Description:  fmt.Sprintf("%d-day premium subscription", days),
			Price:        price,
			DurationDays: days,
		}
	}
	return c, nil
}

// Default возвращает каталог с ценами по умолчанию.
func Default() *Catalog {
	c, err := NewCatalog(Options{})
	if err != nil {
		panic(err)
	}
	return c
}

// Currency возвращает код валюты каталога.
func (c *Catalog) Currency() string {
	return c.currency
}

// Lookup возвращает тариф по тегу.
func (c *Catalog) Lookup(tag string) (Plan, error) {
	p, ok := c.plans[tag]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrInvalidPlan, tag)
	}
	return p, nil
}

// Plans возвращает тарифы, упорядоченные по длительности.
func (c *Catalog) Plans() []Plan {
	res := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DurationDays < res[j].DurationDays })
	return res
}

// EncodePayload кодирует тариф в payload вида subscription_<plan>_<days>.
func EncodePayload(p Plan) string {
	return fmt.Sprintf("%s_%s_%d", payloadPrefix, p.Tag, p.DurationDays)
}

// DecodePayload разбирает payload и сверяет его с каталогом.
// Длительность в payload обязана совпадать с длительностью тарифа.
func (c *Catalog) DecodePayload(payload string) (Plan, error) {
	parts := strings.Split(payload, "_")
	if len(parts) != 3 || parts[0] != payloadPrefix {
		return Plan{}, fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	days, err := strconv.Atoi(parts[2])
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	p, err := c.Lookup(parts[1])
	if err != nil {
		return Plan{}, err
	}
	if p.DurationDays != days {
		return Plan{}, fmt.Errorf("%w: duration %d does not match plan %q", ErrMalformedPayload, days, p.Tag)
	}
	return p, nil
}
