package models

import "time"

// Profile агрегированное представление пользователя для клиентского API:
// состояние пользователя плюс действующая подписка, если она есть.
type Profile struct {
	UID          string        `json:"uid"`
	Email        string        `json:"email"`
	Username     string        `json:"username"`
	CurrentTier  string        `json:"current_tier"`
	IsStudent    bool          `json:"is_student"`
	TrialUsed    bool          `json:"trial_used"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// InvoiceInfo краткое описание счёта Stripe для выдачи пользователю.
type InvoiceInfo struct {
	ID               string    `json:"id"`
	Number           string    `json:"number"`
	Status           string    `json:"status"`
	AmountDue        int64     `json:"amount_due"`
	AmountPaid       int64     `json:"amount_paid"`
	Currency         string    `json:"currency"`
	CreatedAt        time.Time `json:"created_at"`
	HostedInvoiceURL string    `json:"hosted_invoice_url"`
	InvoicePDF       string    `json:"invoice_pdf"`
}
