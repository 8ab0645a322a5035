package appmax

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a value in reais serialized as a bare JSON number.
type Amount struct {
	decimal.Decimal
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

type OrderRequest struct {
	CustomerID any               `json:"customer_id"`
	Products   []Product         `json:"products"`
	Total      Amount            `json:"total"`
	Shipping   Amount            `json:"shipping"`
	Discount   Amount            `json:"discount"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type Product struct {
	SKU   string `json:"sku"`
	Name  string `json:"name"`
	Qty   int    `json:"qty"`
	Price Amount `json:"price"`
}

type Order struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type PaymentRequest struct {
	Cart     PaymentCart     `json:"cart"`
	Customer PaymentCustomer `json:"customer"`
	Payment  PaymentDetails  `json:"payment"`
}

type PaymentCart struct {
	OrderID int64 `json:"order_id"`
}

type PaymentCustomer struct {
	CustomerID any `json:"customer_id"`
}

type PaymentDetails struct {
	CreditCard CreditCard `json:"CreditCard"`
}

type CreditCard struct {
	Token          string `json:"token"`
	DocumentNumber string `json:"document_number"`
	Installments   int    `json:"installments"`
	SoftDescriptor string `json:"soft_descriptor,omitempty"`
}

type Payment struct {
	PayReference string      `json:"pay_reference"`
	Status       string      `json:"status"`
	OrderID      json.Number `json:"order_id"`

	// Confirmed is set when the envelope carried an explicit success=true.
	Confirmed bool `json:"-"`
}

// MajorUnits converts minor units (centavos) to the reais amount Appmax expects.
func MajorUnits(amountCents int64) Amount {
	return Amount{decimal.NewFromInt(amountCents).Shift(-2)}
}

// NewSingleProductOrder builds an order with one line item worth the full amount.
func NewSingleProductOrder(customerID string, amountCents int64, sku, name string) OrderRequest {
	total := MajorUnits(amountCents)
	if strings.TrimSpace(name) == "" {
		name = "Charge"
	}
	if strings.TrimSpace(sku) == "" {
		sku = "payvault-charge"
	}
	return OrderRequest{
		CustomerID: CustomerRef(customerID),
		Products: []Product{{
			SKU:   sku,
			Name:  name,
			Qty:   1,
			Price: total,
		}},
		Total:    total,
		Shipping: Amount{decimal.Zero},
		Discount: Amount{decimal.Zero},
	}
}

// NewPaymentRequest builds the credit-card payment body for an existing order.
func NewPaymentRequest(orderID int64, customerID, token, document string) PaymentRequest {
	return PaymentRequest{
		Cart:     PaymentCart{OrderID: orderID},
		Customer: PaymentCustomer{CustomerID: CustomerRef(customerID)},
		Payment: PaymentDetails{CreditCard: CreditCard{
			Token:          token,
			DocumentNumber: DigitsOnly(document),
			Installments:   1,
		}},
	}
}

// CustomerRef sends numeric Appmax ids as JSON numbers.
func CustomerRef(id string) any {
	if n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err == nil {
		return n
	}
	return id
}

// DigitsOnly strips CPF/CNPJ punctuation.
func DigitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
