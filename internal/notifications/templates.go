package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox/payloads"
)

// Email is one rendered customer message.
type Email struct {
	To      string
	Subject string
	Text    string
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
	decode  func(json.RawMessage) (view, error)
}

// view is the data every template renders against.
type view struct {
	OrderNumber    string
	CustomerEmail  string
	Amount         string
	Currency       string
	Stage          int
	MadeToOrder    bool
	PaymentURL     string
	TrackingNumber string
	TrackingURL    string
	BonusEarned    int64
	OrderURL       string
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

var templates = map[enums.OutboxEventType]emailTemplate{
	enums.EventOrderCreated: {
		subject: mustTemplate("created.subject", `Order {{.OrderNumber}} received`),
		body: mustTemplate("created.body", `Thank you for your order {{.OrderNumber}}.

Total: {{.Amount}} {{upper .Currency}}
{{- if .MadeToOrder}}
This order is made to order. You pay a deposit now and the balance once we start crafting it.
{{- end}}

Track your order: {{.OrderURL}}
`),
		decode: func(raw json.RawMessage) (view, error) {
			var p payloads.OrderCreatedEvent
			if err := json.Unmarshal(raw, &p); err != nil {
				return view{}, err
			}
			return view{
				OrderNumber:   p.OrderNumber,
				CustomerEmail: p.CustomerEmail,
				Amount:        money(p.Total),
				Currency:      p.Currency,
				MadeToOrder:   p.IsMadeToOrder,
			}, nil
		},
	},
	enums.EventOrderPartiallyPaid: {
		subject: mustTemplate("deposit.subject", `Deposit received for order {{.OrderNumber}}`),
		body: mustTemplate("deposit.body", `We received your deposit of {{.Amount}} {{upper .Currency}} for order {{.OrderNumber}}.

We will email you a link for the balance when work on your piece begins.

{{.OrderURL}}
`),
		decode: decodeSettled,
	},
	enums.EventOrderPaid: {
		subject: mustTemplate("paid.subject", `Payment confirmed for order {{.OrderNumber}}`),
		body: mustTemplate("paid.body", `Your payment of {{.Amount}} {{upper .Currency}} for order {{.OrderNumber}} is confirmed.
{{- if gt .BonusEarned 0}}
You earned {{.BonusEarned}} bonus points.
{{- end}}

{{.OrderURL}}
`),
		decode: decodeSettled,
	},
	enums.EventOrderPaymentFailed: {
		subject: mustTemplate("failed.subject", `Payment for order {{.OrderNumber}} did not go through`),
		body: mustTemplate("failed.body", `The payment for order {{.OrderNumber}} failed. Your order is kept and you can retry from the order page:

{{.OrderURL}}
`),
		decode: func(raw json.RawMessage) (view, error) {
			var p payloads.PaymentFailedEvent
			if err := json.Unmarshal(raw, &p); err != nil {
				return view{}, err
			}
			return view{OrderNumber: p.OrderNumber, CustomerEmail: p.CustomerEmail, Stage: p.Stage}, nil
		},
	},
	enums.EventOrderBalanceRequested: {
		subject: mustTemplate("balance.subject", `Balance due for order {{.OrderNumber}}`),
		body: mustTemplate("balance.body", `Work on order {{.OrderNumber}} has started. The remaining balance is {{.Amount}} {{upper .Currency}}.

{{if .PaymentURL}}Pay here: {{.PaymentURL}}{{else}}Pay from the order page: {{.OrderURL}}{{end}}
`),
		decode: func(raw json.RawMessage) (view, error) {
			var p payloads.BalanceRequestedEvent
			if err := json.Unmarshal(raw, &p); err != nil {
				return view{}, err
			}
			return view{
				OrderNumber:   p.OrderNumber,
				CustomerEmail: p.CustomerEmail,
				Amount:        money(p.Amount),
				Currency:      p.Currency,
				Stage:         2,
				PaymentURL:    p.PaymentURL,
			}, nil
		},
	},
	enums.EventOrderShipped: {
		subject: mustTemplate("shipped.subject", `Order {{.OrderNumber}} is on its way`),
		body: mustTemplate("shipped.body", `Order {{.OrderNumber}} has shipped.
{{- if .TrackingNumber}}
Tracking number: {{.TrackingNumber}}
{{- end}}
{{- if .TrackingURL}}
Track the parcel: {{.TrackingURL}}
{{- end}}
`),
		decode: decodeStatusChange,
	},
	enums.EventOrderDelivered: {
		subject: mustTemplate("delivered.subject", `Order {{.OrderNumber}} was delivered`),
		body: mustTemplate("delivered.body", `Order {{.OrderNumber}} has been delivered. We hope you enjoy it.

{{.OrderURL}}
`),
		decode: decodeStatusChange,
	},
	enums.EventOrderCancelled: {
		subject: mustTemplate("cancelled.subject", `Order {{.OrderNumber}} was cancelled`),
		body: mustTemplate("cancelled.body", `Order {{.OrderNumber}} has been cancelled. Reply to this email if you have questions.
`),
		decode: decodeStatusChange,
	},
}

func decodeSettled(raw json.RawMessage) (view, error) {
	var p payloads.PaymentSettledEvent
	if err := json.Unmarshal(raw, &p); err != nil {
		return view{}, err
	}
	return view{
		OrderNumber:   p.OrderNumber,
		CustomerEmail: p.CustomerEmail,
		Amount:        money(p.Amount),
		Currency:      p.Currency,
		Stage:         p.Stage,
		BonusEarned:   p.BonusPointsEarned,
	}, nil
}

func decodeStatusChange(raw json.RawMessage) (view, error) {
	var p payloads.OrderStatusChangedEvent
	if err := json.Unmarshal(raw, &p); err != nil {
		return view{}, err
	}
	v := view{OrderNumber: p.OrderNumber, CustomerEmail: p.CustomerEmail}
	if p.TrackingNumber != nil {
		v.TrackingNumber = *p.TrackingNumber
	}
	if p.TrackingURL != nil {
		v.TrackingURL = *p.TrackingURL
	}
	return v, nil
}

// Renders reports whether the event type produces a customer email.
func Renders(eventType enums.OutboxEventType) bool {
	_, ok := templates[eventType]
	return ok
}

// Render builds the email for an event payload. shopURL prefixes order links.
func Render(eventType enums.OutboxEventType, data json.RawMessage, shopURL string) (Email, error) {
	tmpl, ok := templates[eventType]
	if !ok {
		return Email{}, fmt.Errorf("no template for %s", eventType)
	}
	v, err := tmpl.decode(data)
	if err != nil {
		return Email{}, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	if strings.TrimSpace(v.CustomerEmail) == "" {
		return Email{}, fmt.Errorf("%s payload has no customer email", eventType)
	}
	v.OrderURL = strings.TrimRight(shopURL, "/") + "/orders/" + v.OrderNumber + "?email=" + v.CustomerEmail

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, v); err != nil {
		return Email{}, err
	}
	if err := tmpl.body.Execute(&body, v); err != nil {
		return Email{}, err
	}
	return Email{To: v.CustomerEmail, Subject: subject.String(), Text: body.String()}, nil
}
