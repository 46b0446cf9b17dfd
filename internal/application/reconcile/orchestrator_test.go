package reconcile

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

type fixture struct {
	tab *testutil.FakeTabularStore
	o   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tab := testutil.NewFakeTabularStore()
	docs := testutil.NewFakeDocumentStore()
	log := testutil.NewNullLogger()
	mgr := sheets.NewManager(tab, docs, "sheet-1", "root", nil, log)
	o := New(mgr, fakeRates{venta: decimal.NewFromFloat(855.50)}, Config{}, log)
	return &fixture{tab: tab, o: o}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func receivedInvoice(fileID string, total int64, fecha time.Time, cuitEmisor, razonSocial string) document.Invoice {
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
	return inv
}

func sentPayment(fileID string, amount int64, fecha time.Time, cuitBeneficiario, nombre string) document.Payment {
	p := document.Payment{
		Banco:              "Banco Galicia",
		FechaPago:          fecha,
		ImportePagado:      decimal.NewFromInt(amount),
		Moneda:             document.CurrencyARS,
		CuitPagador:        document.AdvaCUIT,
		CuitBeneficiario:   cuitBeneficiario,
		NombreBeneficiario: nombre,
	}
	p.FileID = fileID
	return p
}

func (f *fixture) addInvoice(inv document.Invoice) {
	sheet := string(ledger.SheetFacturasRecibidas)
	if inv.Emitida() {
		sheet = string(ledger.SheetFacturasEmitidas)
	}
	f.tab.Tabs[sheet] = append(f.tab.Tabs[sheet], ledger.InvoiceRow(inv))
}

func (f *fixture) addSentPayment(p document.Payment) {
	sheet := string(ledger.SheetPagosEnviados)
	f.tab.Tabs[sheet] = append(f.tab.Tabs[sheet], ledger.PaymentRow(p))
}

func (f *fixture) addReceipt(r document.Receipt) {
	sheet := string(ledger.SheetRecibos)
	f.tab.Tabs[sheet] = append(f.tab.Tabs[sheet], ledger.ReceiptRow(r))
}

func (f *fixture) invoiceLink(t *testing.T, sheet ledger.Sheet, row int) string {
	t.Helper()
	rows := f.tab.Rows(string(sheet))
	inv, err := ledger.ParseInvoiceRow(rows[row], sheet)
	if err != nil {
		t.Fatalf("parse invoice row %d: %v", row, err)
	}
	return inv.MatchedPagoFileID
}

func (f *fixture) paymentLink(t *testing.T, row int) string {
	t.Helper()
	rows := f.tab.Rows(string(ledger.SheetPagosEnviados))
	p, err := ledger.ParsePaymentRow(rows[row], ledger.SheetPagosEnviados)
	if err != nil {
		t.Fatalf("parse payment row %d: %v", row, err)
	}
	return p.MatchedFacturaFileID
}

func TestRun_MatchesPaymentToInvoice(t *testing.T) {
	f := newFixture(t)
	f.addInvoice(receivedInvoice("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA"))
	f.addSentPayment(sentPayment("pago-1", 100000, day(2025, 1, 10), "30712345671", "Proveedor SA"))

	sum, err := f.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.PaymentsMatched != 1 {
		t.Errorf("PaymentsMatched = %d, want 1", sum.PaymentsMatched)
	}
	if got := f.invoiceLink(t, ledger.SheetFacturasRecibidas, 0); got != "pago-1" {
		t.Errorf("invoice link = %q, want pago-1", got)
	}
	if got := f.paymentLink(t, 0); got != "fac-1" {
		t.Errorf("payment link = %q, want fac-1", got)
	}
}

func TestRun_DisplacementCascade(t *testing.T) {
	f := newFixture(t)
	f.addInvoice(receivedInvoice("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA"))
	f.addInvoice(receivedInvoice("fac-2", 100000, day(2025, 1, 10), "30712345671", "Proveedor SA"))

	// pago-old holds fac-1 from a previous run, 15 days out. pago-new is only
	// 2 days out and should take fac-1 over, pushing pago-old onto fac-2.
	old := sentPayment("pago-old", 100000, day(2025, 1, 20), "30712345671", "Proveedor SA")
	old.MatchedFacturaFileID = "fac-1"
	old.MatchConfidence = document.ConfidenceHigh
	f.addSentPayment(old)
	f.addSentPayment(sentPayment("pago-new", 100000, day(2025, 1, 7), "30712345671", "Proveedor SA"))

	matched := receivedInvoice("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")
	matched.MatchedPagoFileID = "pago-old"
	matched.MatchConfidence = document.ConfidenceHigh
	f.tab.Tabs[string(ledger.SheetFacturasRecibidas)][0] = ledger.InvoiceRow(matched)

	sum, err := f.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Displacements != 1 {
		t.Errorf("Displacements = %d, want 1", sum.Displacements)
	}
	if got := f.invoiceLink(t, ledger.SheetFacturasRecibidas, 0); got != "pago-new" {
		t.Errorf("fac-1 link = %q, want pago-new", got)
	}
	if got := f.invoiceLink(t, ledger.SheetFacturasRecibidas, 1); got != "pago-old" {
		t.Errorf("fac-2 link = %q, want pago-old", got)
	}
	if got := f.paymentLink(t, 0); got != "fac-2" {
		t.Errorf("pago-old link = %q, want fac-2", got)
	}
	if got := f.paymentLink(t, 1); got != "fac-1" {
		t.Errorf("pago-new link = %q, want fac-1", got)
	}
}

func TestRun_WeakerCandidateDoesNotDisplace(t *testing.T) {
	f := newFixture(t)
	matched := receivedInvoice("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA")
	matched.MatchedPagoFileID = "pago-old"
	matched.MatchConfidence = document.ConfidenceHigh
	f.addInvoice(matched)

	old := sentPayment("pago-old", 100000, day(2025, 1, 7), "30712345671", "Proveedor SA")
	old.MatchedFacturaFileID = "fac-1"
	old.MatchConfidence = document.ConfidenceHigh
	f.addSentPayment(old)
	// Farther out and no identity: strictly worse on every axis.
	f.addSentPayment(sentPayment("pago-new", 100000, day(2025, 1, 20), "", ""))

	sum, err := f.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Displacements != 0 {
		t.Errorf("Displacements = %d, want 0", sum.Displacements)
	}
	if got := f.invoiceLink(t, ledger.SheetFacturasRecibidas, 0); got != "pago-old" {
		t.Errorf("fac-1 link = %q, want pago-old kept", got)
	}
}

func TestRun_MatchesPaymentToReceipt(t *testing.T) {
	f := newFixture(t)
	rec := document.Receipt{
		Tipo:           document.ReceiptSueldo,
		NombreEmpleado: "Gomez, Maria",
		CuilEmpleado:   "27234567891",
		CuitEmpleador:  document.AdvaCUIT,
		PeriodoAbonado: "2025-01",
		FechaPago:      day(2025, 2, 1),
		TotalNeto:      decimal.NewFromInt(1245000),
	}
	rec.FileID = "rec-1"
	f.addReceipt(rec)
	f.addSentPayment(sentPayment("pago-1", 1245000, day(2025, 2, 3), "27234567891", "Maria Gomez"))

	sum, err := f.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.ReceiptsMatched != 1 {
		t.Errorf("ReceiptsMatched = %d, want 1", sum.ReceiptsMatched)
	}
	rows := f.tab.Rows(string(ledger.SheetRecibos))
	got, err := ledger.ParseReceiptRow(rows[0])
	if err != nil {
		t.Fatalf("parse receipt row: %v", err)
	}
	if got.MatchedPagoFileID != "pago-1" {
		t.Errorf("receipt link = %q, want pago-1", got.MatchedPagoFileID)
	}
	if link := f.paymentLink(t, 0); link != "rec-1" {
		t.Errorf("payment link = %q, want rec-1", link)
	}
}

func TestRun_BankPassWritesMatchBack(t *testing.T) {
	f := newFixture(t)
	f.addSentPayment(sentPayment("pago-1", 100000, day(2025, 1, 10), "30712345671", "Proveedor SA"))

	debito := decimal.NewFromInt(100000)
	mov := document.BankMovement{
		Fecha:    day(2025, 1, 11),
		Concepto: "TRANSFERENCIA 30712345671",
		Debito:   &debito,
		Saldo:    decimal.NewFromInt(900000),
	}
	tabName := "mov_banco_galicia_123_ars"
	f.tab.Tabs[tabName] = [][]string{ledger.MovementRow(mov)}

	sum, err := f.o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.MovementsMatched != 1 {
		t.Errorf("MovementsMatched = %d, want 1", sum.MovementsMatched)
	}

	got, err := ledger.ParseMovementRow(f.tab.Rows(tabName)[0])
	if err != nil {
		t.Fatalf("parse movement row: %v", err)
	}
	if got.MatchedFileID != "pago-1" {
		t.Errorf("movement link = %q, want pago-1", got.MatchedFileID)
	}
	if got.Detalle == "" {
		t.Error("movement detalle empty, want description")
	}
}

func TestRun_BankFeeGetsDescriptionOnly(t *testing.T) {
	f := newFixture(t)
	debito := decimal.NewFromFloat(1210.55)
	mov := document.BankMovement{
		Fecha:    day(2025, 1, 11),
		Concepto: "IMPUESTO LEY 25413",
		Debito:   &debito,
		Saldo:    decimal.NewFromInt(900000),
	}
	tabName := "mov_banco_galicia_123_ars"
	f.tab.Tabs[tabName] = [][]string{ledger.MovementRow(mov)}

	if _, err := f.o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := ledger.ParseMovementRow(f.tab.Rows(tabName)[0])
	if err != nil {
		t.Fatalf("parse movement row: %v", err)
	}
	if got.MatchedFileID != "" {
		t.Errorf("movement link = %q, want empty for fee", got.MatchedFileID)
	}
	if got.Detalle != "Gastos bancarios" {
		t.Errorf("detalle = %q, want Gastos bancarios", got.Detalle)
	}
}

func TestRun_StableRerunMakesNoChanges(t *testing.T) {
	f := newFixture(t)
	f.addInvoice(receivedInvoice("fac-1", 100000, day(2025, 1, 5), "30712345671", "Proveedor SA"))
	f.addSentPayment(sentPayment("pago-1", 100000, day(2025, 1, 10), "30712345671", "Proveedor SA"))

	if _, err := f.o.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	sum, err := f.o.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if sum.PaymentsMatched != 0 || sum.Displacements != 0 {
		t.Errorf("second run summary = %+v, want no changes", sum)
	}
}

var _ rates.Provider = fakeRates{}
