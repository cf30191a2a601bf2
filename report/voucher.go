package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

// Voucher is the printable confirmation of a booking.
type Voucher struct {
	BookingReference string
	Status           string
	GuestName        string
	Adults           int
	Children         int
	PropertyID       int64
	RoomTypeID       int64
	RatePlanID       int64
	CheckIn          time.Time
	CheckOut         time.Time
	Nights           int
	Rooms            int
	Currency         string
	TotalPrice       string
	TaxAmount        string
	TotalWithTax     string
	AgencyID         *int64
	PaymentBy        string
	IssuedAt         time.Time
}

var voucherTemplate = template.Must(template.New("voucher").Funcs(template.FuncMap{
	"day": func(t time.Time) string { return t.Format("Mon, 02 Jan 2006") },
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Voucher {{.BookingReference}}</title>
<style>
body{font-family:sans-serif;margin:40px;color:#222}
h1{font-size:22px;margin-bottom:4px}
table{border-collapse:collapse;width:100%;margin-top:16px}
td{padding:6px 8px;border-bottom:1px solid #ddd}
td.k{color:#666;width:35%}
</style></head>
<body>
<h1>Booking voucher</h1>
<p>Reference <strong>{{.BookingReference}}</strong> ({{.Status}})</p>
<table>
<tr><td class="k">Guest</td><td>{{.GuestName}}, {{.Adults}} adults{{if .Children}}, {{.Children}} children{{end}}</td></tr>
<tr><td class="k">Property / room type / rate plan</td><td>{{.PropertyID}} / {{.RoomTypeID}} / {{.RatePlanID}}</td></tr>
<tr><td class="k">Check-in</td><td>{{day .CheckIn}}</td></tr>
<tr><td class="k">Check-out</td><td>{{day .CheckOut}}</td></tr>
<tr><td class="k">Stay</td><td>{{.Nights}} nights, {{.Rooms}} rooms</td></tr>
<tr><td class="k">Subtotal</td><td>{{.TotalPrice}} {{.Currency}}</td></tr>
<tr><td class="k">Tax</td><td>{{.TaxAmount}} {{.Currency}}</td></tr>
<tr><td class="k">Total</td><td><strong>{{.TotalWithTax}} {{.Currency}}</strong></td></tr>
<tr><td class="k">Payment by</td><td>{{.PaymentBy}}{{with .AgencyID}} (agency {{.}}){{end}}</td></tr>
</table>
<p style="margin-top:24px;color:#888">Issued {{.IssuedAt.Format "2006-01-02 15:04 MST"}}</p>
</body></html>`))

// VoucherHTML renders the voucher document.
func VoucherHTML(v Voucher) ([]byte, error) {
	var buf bytes.Buffer
	if err := voucherTemplate.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("report: voucher template: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderVoucher renders v to PDF through Gotenberg.
func (c *Client) RenderVoucher(ctx context.Context, v Voucher) ([]byte, error) {
	html, err := VoucherHTML(v)
	if err != nil {
		return nil, err
	}
	return c.RenderHTML(ctx, html)
}
