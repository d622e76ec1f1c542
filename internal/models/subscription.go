package models

import "time"

// Планы подписки.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Статусы подписки.
const (
	StatusInactive  = "inactive"
	StatusTrialing  = "trialing"
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Subscription состояние подписки пользователя. На пользователя приходится
// одна строка, она создаётся вместе с учётной записью как {free, inactive}.
// Флаг Cancelled независим от Status: подписка может быть
// {status=active, cancelled=true} — доступ сохраняется до конца
// оплаченного периода.
type Subscription struct {
	UserUID                string
	PlanType               string // free | pro
	Status                 string // inactive | trialing | active | cancelled
	ExternalCustomerID     string // Идентификатор клиента у платёжного провайдера
	ExternalSubscriptionID string // Идентификатор подписки у платёжного провайдера
	StartedAt              *time.Time
	CurrentPeriodEnd       *time.Time // Конец оплаченного периода по данным провайдера
	Cancelled              bool
	AutoRenew              bool
	PaymentFailures        int // Подряд идущие неуспешные списания
	UpdatedAt              time.Time
}
