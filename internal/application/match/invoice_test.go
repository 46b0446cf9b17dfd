package match

import (
	"context"
	"testing"
	"time"

	"adva/ms_conciliacion_core/internal/application/sheets"
	"adva/ms_conciliacion_core/internal/core/document"
	"adva/ms_conciliacion_core/internal/core/ledger"
	"adva/ms_conciliacion_core/internal/core/rates"
	"adva/ms_conciliacion_core/internal/testutil"

	"github.com/shopspring/decimal"
)

type fakeRates struct {
	venta decimal.Decimal
	err   error
}

func (f fakeRates) QuoteFor(_ context.Context, date time.Time) (rates.Quote, error) {
	if f.err != nil {
		return rates.Quote{}, f.err
	}
	return rates.Quote{Fecha: date, Venta: f.venta}, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func invoiceRef(fileID string, total int64, fecha time.Time, cuitEmisor, razonSocial string) sheets.InvoiceRef {
	inv := document.Invoice{
		Tipo:              document.InvoiceA,
		Numero:            "00001-00000001",
		FechaEmision:      fecha,
		CuitEmisor:        cuitEmisor,
		RazonSocialEmisor: razonSocial,
		CuitReceptor:      document.AdvaCUIT,
		ImporteTotal:      decimal.NewFromInt(total),
		Moneda:            document.CurrencyARS,
	}
	inv.FileID = fileID
	return sheets.InvoiceRef{Invoice: inv, Sheet: ledger.SheetFacturasRecibidas}
}

func sentPayment(fileID string, amount int64, fecha time.Time, cuitBeneficiario, nombreBeneficiario string) document.Payment {
	p := document.Payment{
		Banco:              "Banco Galicia",
		FechaPago:          fecha,
		ImportePagado:      decimal.NewFromInt(amount),
		Moneda:             document.CurrencyARS,
		CuitPagador:        document.AdvaCUIT,
		CuitBeneficiario:   cuitBeneficiario,
		NombreBeneficiario: nombreBeneficiario,
	}
	p.FileID = fileID
	return p
}

func newInvoiceMatcher() *InvoiceMatcher {
	return NewInvoiceMatcher(nil, 0, 0, 0, testutil.NewNullLogger())
}

func TestInvoiceRank_HighWithIdentity(t *testing.T) {
	m := newInvoiceMatcher()
	payment := sentPayment("pago-1", 100000, day(2025, 1, 10), "30712345671", "Proveedor SA")
	inv := invoiceRef("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")

	cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv})
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Confidence != document.ConfidenceHigh {
		t.Errorf("confidence = %s, want HIGH", cands[0].Confidence)
	}
	if !cands[0].Exact || !cands[0].IdentityHit {
		t.Errorf("candidate = %+v", cands[0])
	}
}

func TestInvoiceRank_MediumWithoutIdentity(t *testing.T) {
	m := newInvoiceMatcher()
	payment := sentPayment("pago-1", 100000, day(2025, 1, 10), "", "")
	inv := invoiceRef("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")

	cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv})
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Confidence != document.ConfidenceMedium {
		t.Errorf("confidence = %s, want MEDIUM", cands[0].Confidence)
	}
}

func TestInvoiceRank_IdentityInWiderWindowIsMedium(t *testing.T) {
	m := newInvoiceMatcher()
	// Payment 20 days after the invoice: outside HIGH, inside MEDIUM.
	payment := sentPayment("pago-1", 100000, day(2025, 1, 25), "30712345671", "Proveedor SA")
	inv := invoiceRef("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")

	cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv})
	if len(cands) != 1 || cands[0].Confidence != document.ConfidenceMedium {
		t.Fatalf("candidates = %+v, want one MEDIUM", cands)
	}
}

func TestInvoiceRank_LowWindow(t *testing.T) {
	m := newInvoiceMatcher()
	// Payment 45 days after the invoice: only the LOW window holds it.
	payment := sentPayment("pago-1", 100000, day(2025, 2, 19), "", "")
	inv := invoiceRef("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")

	cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv})
	if len(cands) != 1 || cands[0].Confidence != document.ConfidenceLow {
		t.Fatalf("candidates = %+v, want one LOW", cands)
	}
}

func TestInvoiceRank_OutsideWindowRejected(t *testing.T) {
	m := newInvoiceMatcher()
	payment := sentPayment("pago-1", 100000, day(2025, 3, 20), "30712345671", "Proveedor SA")
	inv := invoiceRef("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")

	if cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv}); len(cands) != 0 {
		t.Fatalf("candidates = %+v, want none", cands)
	}
}

func TestInvoiceRank_AmountMismatchRejected(t *testing.T) {
	m := newInvoiceMatcher()
	payment := sentPayment("pago-1", 99000, day(2025, 1, 10), "30712345671", "Proveedor SA")
	inv := invoiceRef("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")

	if cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv}); len(cands) != 0 {
		t.Fatalf("candidates = %+v, want none", cands)
	}
}

func TestInvoiceRank_DniMatchesCuit(t *testing.T) {
	m := newInvoiceMatcher()
	// Beneficiary identified by bare DNI; the invoice carries the full CUIT.
	payment := sentPayment("pago-1", 100000, day(2025, 1, 10), "12345678", "")
	inv := invoiceRef("fac-1", 100000, day(2025, 1, 5), "20123456786", "Juan Perez")

	cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv})
	if len(cands) != 1 || !cands[0].IdentityHit {
		t.Fatalf("candidates = %+v, want identity hit via DNI", cands)
	}
}

func TestInvoiceRank_CrossCurrencyCapped(t *testing.T) {
	m := NewInvoiceMatcher(fakeRates{venta: decimal.NewFromFloat(855.50)}, 0, 0, 0, testutil.NewNullLogger())

	inv := invoiceRef("fac-1", 100, day(2024, 1, 15), "30712345671", "Proveedor SA")
	inv.Moneda = document.CurrencyUSD

	// With identity: HIGH degrades to MEDIUM.
	payment := sentPayment("pago-1", 85550, day(2024, 1, 17), "30712345671", "Proveedor SA")
	cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv})
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Confidence != document.ConfidenceMedium || !cands[0].CrossCurrency {
		t.Errorf("candidate = %+v, want MEDIUM cross-currency", cands[0])
	}

	// Without identity: LOW.
	payment = sentPayment("pago-2", 85550, day(2024, 1, 17), "", "")
	cands = m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv})
	if len(cands) != 1 || cands[0].Confidence != document.ConfidenceLow {
		t.Fatalf("candidates = %+v, want one LOW", cands)
	}
}

func TestInvoiceRank_RateUnavailableRejects(t *testing.T) {
	m := NewInvoiceMatcher(fakeRates{err: rates.ErrRateUnavailable}, 0, 0, 0, testutil.NewNullLogger())

	inv := invoiceRef("fac-1", 100, day(2024, 1, 15), "30712345671", "Proveedor SA")
	inv.Moneda = document.CurrencyUSD
	payment := sentPayment("pago-1", 85550, day(2024, 1, 17), "30712345671", "Proveedor SA")

	if cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{inv}); len(cands) != 0 {
		t.Fatalf("candidates = %+v, want none when the rate is missing", cands)
	}
}

func TestInvoiceRank_Ordering(t *testing.T) {
	m := newInvoiceMatcher()
	payment := sentPayment("pago-1", 100000, day(2025, 1, 10), "30712345671", "Proveedor SA")

	far := invoiceRef("fac-far", 100000, day(2025, 1, 1), "30712345671", "Proveedor SA")
	near := invoiceRef("fac-near", 100000, day(2025, 1, 8), "30712345671", "Proveedor SA")
	noID := invoiceRef("fac-noid", 100000, day(2025, 1, 9), "30998765430", "Otro SRL")

	cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{far, noID, near})
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}
	if cands[0].Invoice.FileID != "fac-near" {
		t.Errorf("best = %s, want fac-near", cands[0].Invoice.FileID)
	}
	if cands[1].Invoice.FileID != "fac-far" {
		t.Errorf("second = %s, want fac-far (HIGH beats MEDIUM)", cands[1].Invoice.FileID)
	}
}

func TestInvoiceRank_UpgradeFlag(t *testing.T) {
	m := newInvoiceMatcher()
	payment := sentPayment("pago-2", 100000, day(2025, 1, 10), "30712345671", "Proveedor SA")

	matched := invoiceRef("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")
	matched.MatchedPagoFileID = "pago-1"

	cands := m.Rank(context.Background(), payment, []sheets.InvoiceRef{matched})
	if len(cands) != 1 || !cands[0].IsUpgrade {
		t.Fatalf("candidates = %+v, want upgrade flagged", cands)
	}
}

func TestReceiptRank(t *testing.T) {
	m := NewReceiptMatcher(0, 0, testutil.NewNullLogger())

	rec := document.Receipt{
		Tipo:           document.ReceiptSueldo,
		NombreEmpleado: "Gomez, Maria",
		CuilEmpleado:   "27234567891",
		PeriodoAbonado: "2025-01",
		FechaPago:      day(2025, 2, 1),
		TotalNeto:      decimal.NewFromInt(1245000),
	}
	rec.FileID = "rec-1"
	refs := []sheets.ReceiptRef{{Receipt: rec, Row: 2}}

	payment := sentPayment("pago-1", 1245000, day(2025, 2, 3), "27234567891", "Maria Gomez")
	cands := m.Rank(context.Background(), payment, refs)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].Confidence != document.ConfidenceHigh {
		t.Errorf("confidence = %s, want HIGH", cands[0].Confidence)
	}

	// The payer never counts as identity: ADVA pays every salary.
	payment = sentPayment("pago-2", 1245000, day(2025, 2, 3), "", "")
	payment.NombrePagador = "Gomez, Maria"
	cands = m.Rank(context.Background(), payment, refs)
	if len(cands) != 1 || cands[0].IdentityHit {
		t.Fatalf("candidates = %+v, want no identity via payer", cands)
	}

	// USD payments never match salary receipts.
	payment = sentPayment("pago-3", 1245000, day(2025, 2, 3), "27234567891", "")
	payment.Moneda = document.CurrencyUSD
	if cands := m.Rank(context.Background(), payment, refs); len(cands) != 0 {
		t.Fatalf("candidates = %+v, want none for USD", cands)
	}
}
