package mailer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-checkout-reconciler/internal/notify"
)

// minor unit exponent per currency; anything unlisted has two decimals
var currencyExponent = map[string]int32{
	"VND": 0,
	"JPY": 0,
	"KRW": 0,
}

// FormatAmount renders minor units with thousands separators, e.g.
// 150000 VND -> "150,000 VND", 123456 USD -> "1,234.56 USD".
func FormatAmount(minor int64, currency string) string {
	currency = strings.ToUpper(currency)
	exp, ok := currencyExponent[currency]
	if !ok {
		exp = 2
	}
	s := decimal.New(minor, -exp).StringFixed(exp)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String()
	if frac != "" {
		out += "." + frac
	}
	if currency != "" {
		out += " " + currency
	}
	return out
}

type content struct {
	subject string
	body    *template.Template
}

var templates = map[notify.Kind]content{
	notify.KindOrderConfirmation: {
		subject: "Order %s received",
		body: template.Must(template.New("confirmation").Parse(`Hi {{.Name}},

Thank you for your order {{.OrderNumber}}.
Total: {{.Total}}

We will let you know when your payment is confirmed.
`)),
	},
	notify.KindPaymentSucceeded: {
		subject: "Payment received for order %s",
		body: template.Must(template.New("paid").Parse(`Hi {{.Name}},

We received your payment of {{.Total}} for order {{.OrderNumber}}.
Your order is confirmed and will be prepared for shipping.
`)),
	},
	notify.KindPaymentFailed: {
		subject: "Payment failed for order %s",
		body: template.Must(template.New("failed").Parse(`Hi {{.Name}},

Your payment for order {{.OrderNumber}} ({{.Total}}) did not go through.
You can try again from your order page.
`)),
	},
	notify.KindOrderCancelled: {
		subject: "Order %s cancelled",
		body: template.Must(template.New("cancelled").Parse(`Hi {{.Name}},

Your order {{.OrderNumber}} has been cancelled.{{if .Reason}}
Reason: {{.Reason}}{{end}}
`)),
	},
}

// Render builds the e-mail for msg. Unknown kinds are an error so the worker
// surfaces them instead of sending nothing.
func Render(msg notify.Message, fromName, from string) (Email, error) {
	tpl, ok := templates[msg.Kind]
	if !ok {
		return Email{}, fmt.Errorf("mailer: no template for %q", msg.Kind)
	}
	name := msg.Name
	if name == "" {
		name = "there"
	}
	var body bytes.Buffer
	err := tpl.body.Execute(&body, map[string]string{
		"Name":        name,
		"OrderNumber": msg.OrderNumber,
		"Total":       FormatAmount(msg.TotalCents, msg.Currency),
		"Reason":      msg.Reason,
	})
	if err != nil {
		return Email{}, fmt.Errorf("mailer: render %s: %w", msg.Kind, err)
	}
	return Email{
		FromName: fromName,
		From:     from,
		To:       []string{msg.Email},
		Subject:  fmt.Sprintf(tpl.subject, msg.OrderNumber),
		TextBody: body.String(),
		Headers:  map[string]string{"X-Order-Id": msg.OrderID},
	}, nil
}
