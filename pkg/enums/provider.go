package enums

import "slices"

// PaymentProvider identifies the gateway that issued a saved card token.
type PaymentProvider string

const (
	PaymentProviderStripe  PaymentProvider = "STRIPE"
	PaymentProviderPagarme PaymentProvider = "PAGARME"
	PaymentProviderAppmax  PaymentProvider = "APPMAX"
)

var paymentProviders = []PaymentProvider{PaymentProviderStripe, PaymentProviderPagarme, PaymentProviderAppmax}

// PaymentProviders lists every supported gateway.
func PaymentProviders() []PaymentProvider {
	return append([]PaymentProvider(nil), paymentProviders...)
}

func (p PaymentProvider) String() string { return string(p) }

func (p PaymentProvider) IsValid() bool { return slices.Contains(paymentProviders, p) }

// ParsePaymentProvider accepts a provider name in any case.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	return parse("payment provider", paymentProviders, value)
}
