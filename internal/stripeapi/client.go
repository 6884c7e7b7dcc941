// Package stripeapi инкапсулирует вызовы к API Stripe.
// Все методы принимают context и пробрасывают его в параметры запроса,
// сетевые ошибки возвращаются вызывающему без преобразования семантики.
package stripeapi

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Client обёртка над клиентом Stripe с настройками чекаута и портала.
type Client struct {
	api             *client.API
	successURL      string
	cancelURL       string
	portalReturnURL string
}

// New создаёт клиента Stripe по секретному ключу.
func New(secretKey, successURL, cancelURL, portalReturnURL string) *Client {
	return &Client{
		api:             client.New(secretKey, nil),
		successURL:      successURL,
		cancelURL:       cancelURL,
		portalReturnURL: portalReturnURL,
	}
}

// GetSubscription запрашивает актуальное состояние подписки у Stripe.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	const op = "stripeapi.GetSubscription"
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}
	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetCheckoutSession запрашивает checkout-сессию с раскрытыми позициями
// и подпиской. Событие checkout.session.completed не содержит line items,
// поэтому повторный запрос обязателен.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	const op = "stripeapi.GetCheckoutSession"
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	}
	params.AddExpand("line_items")
	params.AddExpand("subscription")
	sess, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// CreateCustomer заводит клиента Stripe для пользователя.
func (c *Client) CreateCustomer(ctx context.Context, email, name, userUID string) (*stripe.Customer, error) {
	const op = "stripeapi.CreateCustomer"
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
		Name:   stripe.String(name),
	}
	params.AddMetadata("user_uid", userUID)
	cust, err := c.api.Customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cust, nil
}

// CreateCheckoutSession создаёт checkout-сессию подписки для клиента.
// UID пользователя кладётся в client_reference_id, чтобы обработчик вебхука
// мог найти владельца даже до записи stripe_customer_id.
// При trialDays > 0 к подписке добавляется пробный период.
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, userUID, priceID string, trialDays int64) (*stripe.CheckoutSession, error) {
	const op = "stripeapi.CreateCheckoutSession"
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userUID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if trialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(trialDays),
		}
	}
	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// CreatePortalSession создаёт сессию клиентского портала Stripe.
func (c *Client) CreatePortalSession(ctx context.Context, customerID string) (*stripe.BillingPortalSession, error) {
	const op = "stripeapi.CreatePortalSession"
	params := &stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.portalReturnURL),
	}
	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// UpdateSubscriptionPrice заменяет цену единственной позиции подписки.
// Используется при апгрейде тарифа, пропорциональный перерасчёт включён.
func (c *Client) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) (*stripe.Subscription, error) {
	const op = "stripeapi.UpdateSubscriptionPrice"
	sub, err := c.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("%s: subscription %s has no items", op, subscriptionID)
	}
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
		ProrationBehavior: stripe.String("always_invoice"),
	}
	updated, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// ScheduleCancellation помечает подписку к отмене в конце оплаченного периода.
// Немедленного удаления не происходит, доступ сохраняется до конца периода.
func (c *Client) ScheduleCancellation(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	const op = "stripeapi.ScheduleCancellation"
	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ListInvoices возвращает счета клиента, не более limit штук.
func (c *Client) ListInvoices(ctx context.Context, customerID string, limit int64) ([]*stripe.Invoice, error) {
	const op = "stripeapi.ListInvoices"
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)
	iter := c.api.Invoices.List(params)
	var invoices []*stripe.Invoice
	for iter.Next() {
		invoices = append(invoices, iter.Invoice())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return invoices, nil
}
