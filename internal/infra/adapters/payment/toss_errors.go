// File: internal/infra/adapters/payment/toss_errors.go
package payment

import (
	"errors"

	"saas-billing-core/internal/domain/ports/adapter"
)

// userMessages maps common provider codes to wording safe to show end users.
// Codes outside the table fall back to a generic line so raw provider text
// never leaks to customers.
var userMessages = map[string]string{
	"INSUFFICIENT_FUNDS":                "The card was declined for insufficient funds.",
	"INVALID_CARD_NUMBER":               "The card number is invalid.",
	"INVALID_CARD_EXPIRATION":           "The card expiration date is invalid.",
	"INVALID_STOPPED_CARD":              "The card has been suspended.",
	"EXCEED_MAX_DAILY_PAYMENT":          "The card's daily payment limit has been exceeded.",
	"NOT_AVAILABLE_PAYMENT":             "This payment method is currently unavailable.",
	"REJECT_CARD_COMPANY":               "The card issuer declined the payment.",
	"INVALID_BILL_KEY_REQUEST":          "The saved payment method is no longer valid.",
	"NOT_FOUND_PAYMENT":                 "The payment could not be found.",
	"ALREADY_CANCELED_PAYMENT":          "The payment has already been canceled.",
	"NOT_CANCELABLE_AMOUNT":             "The requested amount exceeds what can be refunded.",
	"FORBIDDEN_REQUEST":                 "The request was not permitted.",
	"UNAUTHORIZED_KEY":                  "Payment service authentication failed.",
	"PROVIDER_ERROR":                    "The payment provider had a temporary problem. Please retry.",
	"FAILED_INTERNAL_SYSTEM_PROCESSING": "The payment provider had a temporary problem. Please retry.",
}

const genericUserMessage = "The payment could not be processed. Please try another payment method."

// UserMessage returns customer-safe wording for a gateway failure.
func UserMessage(err error) string {
	var ge *adapter.GatewayError
	if !errors.As(err, &ge) {
		return genericUserMessage
	}
	if msg, ok := userMessages[ge.Code]; ok {
		return msg
	}
	return genericUserMessage
}

// IsDeclineCode reports whether the code is a definitive card decline, i.e. the
// provider made a decision and retrying the same card will not help.
func IsDeclineCode(code string) bool {
	switch code {
	case "INSUFFICIENT_FUNDS", "INVALID_CARD_NUMBER", "INVALID_CARD_EXPIRATION",
		"INVALID_STOPPED_CARD", "EXCEED_MAX_DAILY_PAYMENT", "REJECT_CARD_COMPANY",
		"INVALID_BILL_KEY_REQUEST":
		return true
	}
	return false
}
