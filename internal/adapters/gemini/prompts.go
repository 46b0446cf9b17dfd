package gemini

import "adva/ms_conciliacion_core/internal/core/document"

// ClassifyPrompt asks the model to identify the document type. The answer
// must be JSON only; the parser strips markdown fences anyway because the
// model does not always obey.
const ClassifyPrompt = `Sos un asistente contable argentino. Analizá el documento adjunto y clasificalo.

Tipos posibles:
- "factura_emitida": factura donde el emisor es ADVA (Asociación Civil de Desarrolladores de Videojuegos Argentinos, CUIT 30-70907678-3)
- "factura_recibida": factura de un proveedor hacia ADVA
- "pago_enviado": comprobante de transferencia o pago realizado por ADVA
- "pago_recibido": comprobante de transferencia o pago recibido por ADVA
- "recibo": recibo de sueldo o liquidación final de un empleado
- "resumen_bancario": resumen o extracto de cuenta bancaria
- "unrecognized": ninguno de los anteriores

Respondé SOLO con JSON, sin texto adicional:
{"type": "<tipo>", "confidence": <0.0 a 1.0>, "indicators": ["<señal 1>", "<señal 2>"]}`

// ExtractInvoicePrompt asks for the fields of a factura.
const ExtractInvoicePrompt = `Extraé los datos de la factura adjunta. Montos en formato numérico con punto decimal (ej: 12345.67). Fechas en formato YYYY-MM-DD.

Respondé SOLO con JSON:
{
  "tipoFactura": "A" | "B" | "C" | "E" | "NC" | "ND",
  "numeroFactura": "<punto de venta-número, ej 00003-00001957>",
  "fechaEmision": "YYYY-MM-DD",
  "cuitEmisor": "<11 dígitos>",
  "razonSocialEmisor": "<texto>",
  "cuitReceptor": "<11 dígitos o vacío>",
  "razonSocialReceptor": "<texto o vacío>",
  "importeNeto": <número>,
  "importeIVA": <número>,
  "importeTotal": <número>,
  "moneda": "ARS" | "USD",
  "concepto": "<descripción breve de lo facturado>",
  "cae": "<número CAE o vacío>",
  "confidence": <0.0 a 1.0>
}`

// ExtractPaymentPrompt asks for the fields of a transfer receipt.
const ExtractPaymentPrompt = `Extraé los datos del comprobante de pago o transferencia adjunto. Montos con punto decimal. Fechas en formato YYYY-MM-DD.

Respondé SOLO con JSON:
{
  "banco": "<nombre del banco>",
  "fechaPago": "YYYY-MM-DD",
  "importePagado": <número>,
  "moneda": "ARS" | "USD",
  "referencia": "<número de operación o referencia>",
  "cuitPagador": "<11 dígitos o vacío>",
  "nombrePagador": "<texto o vacío>",
  "cuitBeneficiario": "<11 dígitos o vacío>",
  "nombreBeneficiario": "<texto o vacío>",
  "concepto": "<texto o vacío>",
  "confidence": <0.0 a 1.0>
}`

// ExtractReceiptPrompt asks for the fields of a payslip.
const ExtractReceiptPrompt = `Extraé los datos del recibo de sueldo o liquidación final adjunto. Montos con punto decimal. Fechas en formato YYYY-MM-DD. El período abonado en formato YYYY-MM.

Respondé SOLO con JSON:
{
  "tipoRecibo": "sueldo" | "liquidacion_final",
  "nombreEmpleado": "<apellido y nombre>",
  "cuilEmpleado": "<11 dígitos>",
  "legajo": "<número de legajo o vacío>",
  "periodoAbonado": "YYYY-MM",
  "fechaPago": "YYYY-MM-DD",
  "subtotalRemuneraciones": <número>,
  "subtotalDescuentos": <número>,
  "totalNeto": <número>,
  "confidence": <0.0 a 1.0>
}`

// ExtractStatementPrompt asks for the bank statement header plus every
// movement row. A movement carries either a debit or a credit, never both.
const ExtractStatementPrompt = `Extraé los datos del resumen bancario adjunto, incluyendo TODOS los movimientos de la tabla. Montos con punto decimal. Fechas en formato YYYY-MM-DD.

Respondé SOLO con JSON:
{
  "banco": "<nombre del banco>",
  "numeroCuenta": "<número de cuenta o vacío>",
  "moneda": "ARS" | "USD",
  "periodoDesde": "YYYY-MM-DD",
  "periodoHasta": "YYYY-MM-DD",
  "movimientos": [
    {
      "fecha": "YYYY-MM-DD",
      "fechaValor": "YYYY-MM-DD o vacío",
      "concepto": "<texto tal como figura>",
      "codigo": "<código o vacío>",
      "oficina": "<sucursal o vacío>",
      "debito": <número o null>,
      "credito": <número o null>,
      "saldo": <número>
    }
  ],
  "confidence": <0.0 a 1.0>
}

Cada movimiento tiene débito O crédito, nunca ambos. Usá null para el que no corresponda.`

// ExtractPromptFor returns the extraction prompt for a classified type.
// Unrecognized documents are never extracted.
func ExtractPromptFor(t document.Type) (string, bool) {
	switch t {
	case document.TypeFacturaEmitida, document.TypeFacturaRecibida:
		return ExtractInvoicePrompt, true
	case document.TypePagoEnviado, document.TypePagoRecibido:
		return ExtractPaymentPrompt, true
	case document.TypeRecibo:
		return ExtractReceiptPrompt, true
	case document.TypeResumenBancario:
		return ExtractStatementPrompt, true
	default:
		return "", false
	}
}
