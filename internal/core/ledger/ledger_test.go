package ledger

import (
	"testing"
	"time"

	"adva/ms_conciliacion_core/internal/core/document"

	"github.com/shopspring/decimal"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

func TestSheetFor(t *testing.T) {
	tests := []struct {
		docType document.Type
		sheet   Sheet
		ok      bool
	}{
		{docType: document.TypeFacturaEmitida, sheet: SheetFacturasEmitidas, ok: true},
		{docType: document.TypeFacturaRecibida, sheet: SheetFacturasRecibidas, ok: true},
		{docType: document.TypePagoEnviado, sheet: SheetPagosEnviados, ok: true},
		{docType: document.TypePagoRecibido, sheet: SheetPagosRecibidos, ok: true},
		{docType: document.TypeRecibo, sheet: SheetRecibos, ok: true},
		{docType: document.TypeResumenBancario, ok: false},
		{docType: document.TypeUnrecognized, ok: false},
	}
	for _, tt := range tests {
		sheet, ok := SheetFor(tt.docType)
		if ok != tt.ok || sheet != tt.sheet {
			t.Errorf("SheetFor(%s) = (%s, %v), want (%s, %v)", tt.docType, sheet, ok, tt.sheet, tt.ok)
		}
	}
}

func TestInvoiceRowRoundTrip(t *testing.T) {
	inv := document.Invoice{
		Tipo:              document.InvoiceA,
		Numero:            "00003-00001957",
		FechaEmision:      date(t, "2025-01-05"),
		CuitEmisor:        "20329642330",
		RazonSocialEmisor: "Proveedor SA",
		CuitReceptor:      document.AdvaCUIT,
		ImporteNeto:       decimal.NewFromInt(82645),
		ImporteIVA:        decimal.NewFromFloat(17355.45),
		ImporteTotal:      decimal.NewFromFloat(100000.45),
		Moneda:            document.CurrencyARS,
		Concepto:          "Servicios de consultoría",
		MatchedPagoFileID: "pago-1",
		MatchConfidence:   document.ConfidenceHigh,
	}
	inv.FileID = "file-1"
	inv.FileName = "factura.pdf"
	inv.ProcessedAt = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	inv.Confidence = 0.95

	row := InvoiceRow(inv)
	if row[InvoiceFileIDColumn] != "file-1" {
		t.Fatalf("fileId column = %q, want file-1", row[InvoiceFileIDColumn])
	}

	got, err := ParseInvoiceRow(row, SheetFacturasRecibidas)
	if err != nil {
		t.Fatalf("ParseInvoiceRow: %v", err)
	}
	if got.CuitEmisor != "20329642330" || got.CuitReceptor != document.AdvaCUIT {
		t.Errorf("direction lost: emisor=%q receptor=%q", got.CuitEmisor, got.CuitReceptor)
	}
	if !got.ImporteTotal.Equal(inv.ImporteTotal) {
		t.Errorf("total = %s, want %s", got.ImporteTotal, inv.ImporteTotal)
	}
	if got.MatchedPagoFileID != "pago-1" || got.MatchConfidence != document.ConfidenceHigh {
		t.Errorf("match link lost: %q %q", got.MatchedPagoFileID, got.MatchConfidence)
	}
	if got.NeedsReview {
		t.Error("needsReview should be false")
	}
}

func TestInvoiceRowEmitidaDirection(t *testing.T) {
	inv := document.Invoice{
		Tipo:                document.InvoiceB,
		Numero:              "00001-00000042",
		FechaEmision:        date(t, "2025-02-01"),
		CuitEmisor:          document.AdvaCUIT,
		CuitReceptor:        "20329642330",
		RazonSocialReceptor: "Cliente SRL",
		ImporteTotal:        decimal.NewFromInt(5000),
		Moneda:              document.CurrencyARS,
	}
	row := InvoiceRow(inv)

	got, err := ParseInvoiceRow(row, SheetFacturasEmitidas)
	if err != nil {
		t.Fatalf("ParseInvoiceRow: %v", err)
	}
	if got.CuitEmisor != document.AdvaCUIT {
		t.Errorf("emisor = %q, want ADVA", got.CuitEmisor)
	}
	if got.RazonSocialReceptor != "Cliente SRL" || got.CuitReceptor != "20329642330" {
		t.Errorf("receptor lost: %q %q", got.RazonSocialReceptor, got.CuitReceptor)
	}
}

func TestPaymentRowRoundTrip(t *testing.T) {
	p := document.Payment{
		Banco:              "Banco Galicia",
		FechaPago:          date(t, "2025-01-07"),
		ImportePagado:      decimal.NewFromInt(100000),
		Moneda:             document.CurrencyARS,
		Referencia:         "1234567.01.0001",
		CuitPagador:        document.AdvaCUIT,
		CuitBeneficiario:   "20329642330",
		NombreBeneficiario: "Proveedor SA",
		Concepto:           "Pago factura 1957",
	}
	p.FileID = "pago-1"
	p.FileName = "transferencia.pdf"
	p.Confidence = 1

	row := PaymentRow(p)
	got, err := ParsePaymentRow(row, SheetPagosEnviados)
	if err != nil {
		t.Fatalf("ParsePaymentRow: %v", err)
	}
	if got.CuitPagador != document.AdvaCUIT || got.CuitBeneficiario != "20329642330" {
		t.Errorf("direction lost: pagador=%q beneficiario=%q", got.CuitPagador, got.CuitBeneficiario)
	}
	if got.Referencia != p.Referencia || got.Banco != p.Banco {
		t.Errorf("fields lost: %q %q", got.Referencia, got.Banco)
	}
	if !got.ImportePagado.Equal(p.ImportePagado) {
		t.Errorf("importe = %s, want %s", got.ImportePagado, p.ImportePagado)
	}
}

func TestReceiptRowRoundTrip(t *testing.T) {
	r := document.Receipt{
		Tipo:                   document.ReceiptSueldo,
		NombreEmpleado:         "Maria Gomez",
		CuilEmpleado:           "27329642335",
		Legajo:                 "42",
		PeriodoAbonado:         "2025-01",
		FechaPago:              date(t, "2025-02-03"),
		SubtotalRemuneraciones: decimal.NewFromInt(900000),
		SubtotalDescuentos:     decimal.NewFromInt(150000),
		TotalNeto:              decimal.NewFromInt(750000),
	}
	r.FileID = "recibo-1"

	got, err := ParseReceiptRow(ReceiptRow(r))
	if err != nil {
		t.Fatalf("ParseReceiptRow: %v", err)
	}
	if got.NombreEmpleado != r.NombreEmpleado || got.PeriodoAbonado != r.PeriodoAbonado {
		t.Errorf("fields lost: %q %q", got.NombreEmpleado, got.PeriodoAbonado)
	}
	if !got.TotalNeto.Equal(r.TotalNeto) {
		t.Errorf("totalNeto = %s, want %s", got.TotalNeto, r.TotalNeto)
	}
}

func TestMovementRowRoundTrip(t *testing.T) {
	debito := decimal.NewFromFloat(1210.00)
	m := document.BankMovement{
		Fecha:    date(t, "2025-01-07"),
		Concepto: "TRANSFERENCI 30709076783",
		Debito:   &debito,
		Saldo:    decimal.NewFromInt(50000),
	}

	got, err := ParseMovementRow(MovementRow(m))
	if err != nil {
		t.Fatalf("ParseMovementRow: %v", err)
	}
	if !got.IsDebit() || !got.Amount().Equal(debito) {
		t.Errorf("debit lost: isDebit=%v amount=%s", got.IsDebit(), got.Amount())
	}
	if got.Concepto != m.Concepto {
		t.Errorf("concepto = %q, want %q", got.Concepto, m.Concepto)
	}
}

func TestParseMovementRowRejectsBothSides(t *testing.T) {
	credit := decimal.NewFromInt(10)
	m := document.BankMovement{Fecha: date(t, "2025-01-07"), Credito: &credit}
	row := MovementRow(m)
	row[movColDebito] = "5,00"

	if _, err := ParseMovementRow(row); err == nil {
		t.Fatal("expected error for row with both debito and credito")
	}
}

func TestMovementHash(t *testing.T) {
	debito := decimal.NewFromInt(100)
	m := document.BankMovement{Fecha: date(t, "2025-01-07"), Concepto: "PAGO", Debito: &debito}

	h1 := MovementHash(m)
	if h1 != MovementHash(m) {
		t.Fatal("hash not deterministic")
	}

	m.Detalle = "Pago Factura a Proveedor SA"
	if MovementHash(m) == h1 {
		t.Fatal("hash must change when detalle changes")
	}
}
