package pagarme

const (
	PaymentMethodCreditCard    = "credit_card"
	OperationAuthAndCapture    = "auth_and_capture"
	defaultStatementDescriptor = "PAYVAULT"
)

type OrderRequest struct {
	Code       string            `json:"code,omitempty"`
	CustomerID string            `json:"customer_id"`
	Items      []OrderItem       `json:"items"`
	Payments   []Payment         `json:"payments"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type OrderItem struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Code        string `json:"code,omitempty"`
}

type Payment struct {
	PaymentMethod string          `json:"payment_method"`
	CreditCard    *CreditCardSpec `json:"credit_card,omitempty"`
	Amount        int64           `json:"amount,omitempty"`
}

type CreditCardSpec struct {
	CardID              string `json:"card_id"`
	OperationType       string `json:"operation_type"`
	Installments        int    `json:"installments"`
	StatementDescriptor string `json:"statement_descriptor,omitempty"`
}

type Order struct {
	ID      string   `json:"id"`
	Code    string   `json:"code"`
	Status  string   `json:"status"`
	Amount  int64    `json:"amount"`
	Charges []Charge `json:"charges"`
}

type Charge struct {
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	Amount          int64            `json:"amount"`
	PaidAt          string           `json:"paid_at"`
	LastTransaction *LastTransaction `json:"last_transaction"`
}

type LastTransaction struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	AcquirerMessage    string `json:"acquirer_message"`
	AcquirerReturnCode string `json:"acquirer_return_code"`
}

// NewSavedCardOrder builds the one-item, one-payment order used for saved-card charges.
func NewSavedCardOrder(customerID, cardID string, amountCents int64, description, code string, metadata map[string]string) OrderRequest {
	if description == "" {
		description = "Charge"
	}
	return OrderRequest{
		Code:       code,
		CustomerID: customerID,
		Items: []OrderItem{{
			Amount:      amountCents,
			Description: description,
			Quantity:    1,
			Code:        code,
		}},
		Payments: []Payment{{
			PaymentMethod: PaymentMethodCreditCard,
			Amount:        amountCents,
			CreditCard: &CreditCardSpec{
				CardID:              cardID,
				OperationType:       OperationAuthAndCapture,
				Installments:        1,
				StatementDescriptor: defaultStatementDescriptor,
			},
		}},
		Metadata: metadata,
	}
}

// PrimaryCharge returns the first charge of the order, if any.
func (o *Order) PrimaryCharge() *Charge {
	if o == nil || len(o.Charges) == 0 {
		return nil
	}
	return &o.Charges[0]
}
