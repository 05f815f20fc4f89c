package ingestion

import (
	"path/filepath"
	"strings"
)

// Pass is one of the three ordered ingestion passes.
type Pass int

const (
	PassPO Pass = iota
	PassGRN
	PassInvoice
)

func (p Pass) String() string {
	switch p {
	case PassPO:
		return "purchase_orders"
	case PassGRN:
		return "goods_receipts"
	default:
		return "invoices"
	}
}

// Classify buckets a file by name. The document's own number is the last
// "_" segment before any "_for_" reference, so "Set1_GRN-84001_for_PO-78001.pdf"
// is a GRN and "Set1_PO-78001.pdf" a PO. Everything else is an invoice.
func Classify(filename string) Pass {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.Index(strings.ToLower(name), "_for_"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "_"); i >= 0 {
		name = name[i+1:]
	}
	token := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(token, "PO-"):
		return PassPO
	case strings.HasPrefix(token, "GRN-"):
		return PassGRN
	}
	return PassInvoice
}
