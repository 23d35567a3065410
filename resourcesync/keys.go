package resourcesync

import (
	"strings"

	"github.com/jrsteele09/go-ledger-sync/internal/errors"
)

// Key names a resource type on the accounting platform.
type Key string

const (
	KeyOrganization       Key = "organization"
	KeyContacts           Key = "contacts"
	KeyInvoices           Key = "invoices"
	KeyAccounts           Key = "accounts"
	KeyBankTransactions   Key = "bank-transactions"
	KeyItems              Key = "items"
	KeyTaxRates           Key = "tax-rates"
	KeyTrackingCategories Key = "tracking-categories"
	KeyPurchaseOrders     Key = "purchase-orders"
	KeyReceipts           Key = "receipts"
	KeyCreditNotes        Key = "credit-notes"
	KeyManualJournals     Key = "manual-journals"
	KeyPrepayments        Key = "prepayments"
	KeyOverpayments       Key = "overpayments"
	KeyQuotes             Key = "quotes"
	KeyPayments           Key = "payments"
	KeyJournals           Key = "journals"
	KeyTransactions       Key = "transactions"
)

// keyOrder is the order LoadAll walks. It is fixed.
var keyOrder = []Key{
	KeyOrganization,
	KeyContacts,
	KeyInvoices,
	KeyAccounts,
	KeyBankTransactions,
	KeyItems,
	KeyTaxRates,
	KeyTrackingCategories,
	KeyPurchaseOrders,
	KeyReceipts,
	KeyCreditNotes,
	KeyManualJournals,
	KeyPrepayments,
	KeyOverpayments,
	KeyQuotes,
	KeyPayments,
	KeyJournals,
	KeyTransactions,
}

// Keys returns every resource key in LoadAll order.
func Keys() []Key {
	return append([]Key(nil), keyOrder...)
}

func (k Key) Valid() bool {
	for _, known := range keyOrder {
		if k == known {
			return true
		}
	}
	return false
}

func (k Key) String() string {
	return string(k)
}

// ParseKey accepts a key in any case, e.g. from a URL path segment.
func ParseKey(s string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", errors.Wrapf(errors.ErrUnknownResource, "[ParseKey] %q", s)
	}
	return k, nil
}
