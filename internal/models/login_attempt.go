package models

import "time"

// LoginAttempt запись журнала попыток входа. Журнал только дополняется:
// строки не обновляются и не удаляются, кроме как при плановой очистке.
type LoginAttempt struct {
	Username    string
	IPAddress   string
	Success     bool
	AttemptTime time.Time
}
