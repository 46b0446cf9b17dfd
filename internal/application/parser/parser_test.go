package parser

import (
	"errors"
	"testing"

	"adva/ms_conciliacion_core/internal/core/document"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fenced plain", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"surrounding prose", "Claro, acá está el JSON:\n{\"a\":1}\nSaludos.", `{"a":1}`, false},
		{"no object", "no hay datos", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Fatalf("err = %v, want ErrNoJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseClassification(t *testing.T) {
	c, err := ParseClassification("```json\n{\"type\":\"factura_recibida\",\"confidence\":0.95,\"indicators\":[\"CAE presente\"]}\n```")
	if err != nil {
		t.Fatalf("ParseClassification: %v", err)
	}
	if c.Type != document.TypeFacturaRecibida {
		t.Errorf("type = %s", c.Type)
	}
	if c.Confidence != 0.95 {
		t.Errorf("confidence = %f", c.Confidence)
	}

	c, err = ParseClassification(`{"type":"algo_raro","confidence":0.3}`)
	if err != nil {
		t.Fatalf("ParseClassification: %v", err)
	}
	if c.Type != document.TypeUnrecognized {
		t.Errorf("unknown type should degrade to unrecognized, got %s", c.Type)
	}
}

const invoiceReceivedJSON = `{
	"tipoFactura": "A",
	"numeroFactura": "00003-00001957",
	"fechaEmision": "2025-01-05",
	"cuitEmisor": "30-71234567-1",
	"razonSocialEmisor": "Proveedor SA",
	"cuitReceptor": "30-70907678-3",
	"razonSocialReceptor": "Asociacion Civil de Desarrolladores de Videojuegos Argentinos",
	"importeNeto": 82644.63,
	"importeIVA": 17355.37,
	"importeTotal": 100000,
	"moneda": "ARS",
	"concepto": "Servicios de consultoria",
	"cae": "75012345678901"
}`

func TestParseInvoice_Received(t *testing.T) {
	inv, err := ParseInvoice(invoiceReceivedJSON)
	if err != nil {
		t.Fatalf("ParseInvoice: %v", err)
	}
	if inv.Emitida() {
		t.Error("invoice should be recibida")
	}
	if inv.CuitEmisor != "30712345671" {
		t.Errorf("cuitEmisor = %q", inv.CuitEmisor)
	}
	if inv.CuitReceptor != document.AdvaCUIT {
		t.Errorf("cuitReceptor = %q", inv.CuitReceptor)
	}
	if inv.ImporteTotal.String() != "100000" {
		t.Errorf("importeTotal = %s", inv.ImporteTotal)
	}
	if inv.Confidence != 1.0 {
		t.Errorf("confidence = %f, want 1.0", inv.Confidence)
	}
	if inv.NeedsReview {
		t.Error("complete invoice must not need review")
	}
}

func TestParseInvoice_IssuedByName(t *testing.T) {
	inv, err := ParseInvoice(`{
		"tipoFactura": "C",
		"numeroFactura": "00001-00000042",
		"fechaEmision": "2025-03-10",
		"cuitEmisor": "",
		"razonSocialEmisor": "ADVA",
		"cuitReceptor": "",
		"razonSocialReceptor": "",
		"importeTotal": 50000,
		"moneda": "ARS"
	}`)
	if err != nil {
		t.Fatalf("ParseInvoice: %v", err)
	}
	if !inv.Emitida() {
		t.Error("invoice should be emitida")
	}
	if inv.CuitEmisor != document.AdvaCUIT {
		t.Errorf("cuitEmisor = %q", inv.CuitEmisor)
	}
	if inv.CuitReceptor != "" {
		t.Errorf("consumer sale must keep empty receptor, got %q", inv.CuitReceptor)
	}
}

func TestParseInvoice_OCRVariantName(t *testing.T) {
	inv, err := ParseInvoice(`{
		"tipoFactura": "B",
		"numeroFactura": "00002-00000001",
		"fechaEmision": "2025-02-01",
		"cuitEmisor": "30712345671",
		"razonSocialEmisor": "Proveedor SA",
		"razonSocialReceptor": "ASOC CIVIL DE DESARROLLARODES DE VIDEOJUEGOS",
		"importeTotal": 1200,
		"moneda": "ARS"
	}`)
	if err != nil {
		t.Fatalf("ParseInvoice: %v", err)
	}
	if inv.Emitida() {
		t.Error("OCR-mangled receiver name should still resolve to recibida")
	}
}

func TestParseInvoice_NoDirection(t *testing.T) {
	_, err := ParseInvoice(`{
		"tipoFactura": "A",
		"numeroFactura": "00001-00000001",
		"fechaEmision": "2025-01-01",
		"cuitEmisor": "30712345671",
		"razonSocialEmisor": "Empresa Uno SA",
		"cuitReceptor": "20123456786",
		"razonSocialReceptor": "Empresa Dos SRL",
		"importeTotal": 100,
		"moneda": "ARS"
	}`)
	if !errors.Is(err, ErrUnrecognizedDirection) {
		t.Fatalf("err = %v, want ErrUnrecognizedDirection", err)
	}
}

func TestParseInvoice_MissingFieldsLowerConfidence(t *testing.T) {
	inv, err := ParseInvoice(`{
		"tipoFactura": "",
		"numeroFactura": "",
		"fechaEmision": "",
		"cuitEmisor": "30712345671",
		"razonSocialEmisor": "Proveedor SA",
		"razonSocialReceptor": "ADVA",
		"importeTotal": 0,
		"moneda": ""
	}`)
	if err != nil {
		t.Fatalf("ParseInvoice: %v", err)
	}
	if inv.Confidence != 0.5 {
		t.Errorf("confidence = %f, want floor 0.5", inv.Confidence)
	}
	if !inv.NeedsReview {
		t.Error("incomplete invoice must need review")
	}
}

func TestParseInvoice_ArgentineAmountString(t *testing.T) {
	inv, err := ParseInvoice(`{
		"tipoFactura": "A",
		"numeroFactura": "00001-00000001",
		"fechaEmision": "2025-01-01",
		"cuitEmisor": "30712345671",
		"razonSocialEmisor": "Proveedor SA",
		"razonSocialReceptor": "ADVA",
		"importeTotal": "2.917.310,00",
		"moneda": "ARS"
	}`)
	if err != nil {
		t.Fatalf("ParseInvoice: %v", err)
	}
	if inv.ImporteTotal.StringFixed(2) != "2917310.00" {
		t.Errorf("importeTotal = %s", inv.ImporteTotal)
	}
}

func TestParsePayment(t *testing.T) {
	p, err := ParsePayment(`{
		"banco": "Banco Galicia",
		"fechaPago": "2025-01-07",
		"importePagado": 100000,
		"moneda": "ARS",
		"referencia": "1234567",
		"cuitPagador": "30-70907678-3",
		"nombrePagador": "ADVA",
		"cuitBeneficiario": "30712345671",
		"nombreBeneficiario": "Proveedor SA",
		"concepto": "Pago factura"
	}`)
	if err != nil {
		t.Fatalf("ParsePayment: %v", err)
	}
	if !p.Enviado() {
		t.Error("payment should be enviado")
	}
	if p.CuitPagador != document.AdvaCUIT {
		t.Errorf("cuitPagador = %q", p.CuitPagador)
	}
	if p.Confidence != 1.0 {
		t.Errorf("confidence = %f", p.Confidence)
	}
}

func TestParsePayment_DirectionFromNameOnly(t *testing.T) {
	p, err := ParsePayment(`{
		"banco": "Banco Nacion",
		"fechaPago": "2025-02-10",
		"importePagado": 75000,
		"moneda": "ARS",
		"nombreBeneficiario": "Asociacion Civil Desarrolladores de Videojuegos"
	}`)
	if err != nil {
		t.Fatalf("ParsePayment: %v", err)
	}
	if p.Enviado() {
		t.Error("ADVA as beneficiary means pago recibido")
	}
	if p.CuitBeneficiario != document.AdvaCUIT {
		t.Errorf("cuitBeneficiario = %q", p.CuitBeneficiario)
	}
}

func TestParseReceipt(t *testing.T) {
	r, err := ParseReceipt(`{
		"tipoRecibo": "sueldo",
		"nombreEmpleado": "Gomez, Maria",
		"cuilEmpleado": "27-23456789-1",
		"legajo": "15",
		"periodoAbonado": "2025-01",
		"fechaPago": "2025-02-03",
		"subtotalRemuneraciones": 1500000,
		"subtotalDescuentos": 255000,
		"totalNeto": 1245000
	}`)
	if err != nil {
		t.Fatalf("ParseReceipt: %v", err)
	}
	if r.Tipo != document.ReceiptSueldo {
		t.Errorf("tipo = %s", r.Tipo)
	}
	if r.CuilEmpleado != "27234567891" {
		t.Errorf("cuil = %q", r.CuilEmpleado)
	}
	if r.CuitEmpleador != document.AdvaCUIT {
		t.Errorf("empleador = %q", r.CuitEmpleador)
	}
	if r.NeedsReview {
		t.Error("complete receipt must not need review")
	}
}

func TestParseStatement(t *testing.T) {
	s, err := ParseStatement(`{
		"banco": "Banco Galicia",
		"numeroCuenta": "4013-1 123-4",
		"moneda": "ARS",
		"periodoDesde": "2025-01-01",
		"periodoHasta": "2025-01-31",
		"movimientos": [
			{"fecha": "2025-01-07", "concepto": "TRANSFERENCI 30712345671", "debito": 100000, "credito": null, "saldo": 900000},
			{"fecha": "2025-01-15", "concepto": "ACREDITACION", "debito": null, "credito": 50000, "saldo": 950000}
		]
	}`)
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	if s.CantidadMovimientos != 2 {
		t.Errorf("cantidadMovimientos = %d", s.CantidadMovimientos)
	}
	if !s.Movimientos[0].IsDebit() || s.Movimientos[1].IsDebit() {
		t.Error("movement directions wrong")
	}
	if s.SaldoInicial.String() != "1000000" {
		t.Errorf("saldoInicial = %s, want 1000000", s.SaldoInicial)
	}
	if s.SaldoFinal.String() != "950000" {
		t.Errorf("saldoFinal = %s", s.SaldoFinal)
	}
}

func TestParseStatement_EmptyPeriodIsNotAnError(t *testing.T) {
	s, err := ParseStatement(`{
		"banco": "Banco Galicia",
		"moneda": "ARS",
		"periodoDesde": "",
		"periodoHasta": "",
		"movimientos": []
	}`)
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	if !s.FechaDesde.IsZero() || !s.FechaHasta.IsZero() {
		t.Error("period should stay zero")
	}
	if !s.NeedsReview {
		t.Error("statement without period must need review")
	}
}

func TestParseStatement_BothSidesRejected(t *testing.T) {
	_, err := ParseStatement(`{
		"banco": "B",
		"moneda": "ARS",
		"periodoDesde": "2025-01-01",
		"periodoHasta": "2025-01-31",
		"movimientos": [
			{"fecha": "2025-01-07", "concepto": "X", "debito": 10, "credito": 10, "saldo": 0}
		]
	}`)
	if err == nil {
		t.Fatal("movement with both sides must fail")
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		required   []bool
		suspicious bool
		wantConf   float64
		wantReview bool
	}{
		{"all present", []bool{true, true, true, true}, false, 1.0, false},
		{"all present but suspicious", []bool{true, true, true, true}, true, 1.0, false},
		{"three quarters", []bool{true, true, true, false}, false, 0.75, true},
		{"floor", []bool{false, false, false, false}, false, 0.5, true},
		{"high confidence missing none suspicious", []bool{true, true, true, true, true, true, true, true, true, false}, false, 0.9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, review := score(tt.required, tt.suspicious)
			if conf != tt.wantConf {
				t.Errorf("confidence = %f, want %f", conf, tt.wantConf)
			}
			if review != tt.wantReview {
				t.Errorf("needsReview = %v, want %v", review, tt.wantReview)
			}
		})
	}
}
