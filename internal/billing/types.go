package billing

// Customer клиент на стороне платёжного провайдера.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type customerList struct {
	Data []Customer `json:"data"`
}

// CheckoutSession сессия оформления подписки.
type CheckoutSession struct {
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

// PortalSession сессия личного кабинета управления подпиской.
type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProviderSubscription подписка на стороне провайдера.
type ProviderSubscription struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
