// Package pipeline walks each document-store file through the processing
// state machine: fetch, classify, extract, validate, persist, file. One queue
// task per file; the Gemini client's rate limiter throttles cross-task
// parallelism.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"adva/ms_conciliacion_core/internal/adapters/gemini"
	"adva/ms_conciliacion_core/internal/application/parser"
	"adva/ms_conciliacion_core/internal/application/sheets"
	"adva/ms_conciliacion_core/internal/core/document"
	"adva/ms_conciliacion_core/internal/core/ledger"
	"adva/ms_conciliacion_core/internal/core/state"
	"adva/ms_conciliacion_core/internal/core/store"
	"adva/ms_conciliacion_core/internal/infrastructure/queue"
)

// LLM is the vision-model capability the pipeline needs.
type LLM interface {
	Generate(ctx context.Context, fileID, prompt string, doc []byte, mimeType string) (string, error)
}

// Stats mirrors the queue counters plus pipeline totals.
type Stats struct {
	Pending   int
	Running   int
	Completed int64
	Failed    int64
	Added     map[document.Type]int
	Errors    int
}

// Pipeline processes intake files end to end.
type Pipeline struct {
	docs     store.DocumentStore
	ledgers  *sheets.Manager
	llm      LLM
	registry state.Registry
	queue    *queue.Queue
	rootID   string
	log      *slog.Logger

	mu      sync.Mutex
	added   map[document.Type]int
	errored int
}

// New creates a pipeline reading intake files from the store's root folder.
func New(docs store.DocumentStore, ledgers *sheets.Manager, llm LLM, registry state.Registry, q *queue.Queue, rootFolderID string, log *slog.Logger) *Pipeline {
	return &Pipeline{
		docs:     docs,
		ledgers:  ledgers,
		llm:      llm,
		registry: registry,
		queue:    q,
		rootID:   rootFolderID,
		log:      log,
		added:    make(map[document.Type]int),
	}
}

// Scan lists the intake folder and enqueues one task per unseen PDF. Returns
// how many tasks were queued.
func (p *Pipeline) Scan(ctx context.Context) (int, error) {
	files, err := p.docs.List(ctx, p.rootID)
	if err != nil {
		return 0, fmt.Errorf("list intake folder: %w", err)
	}

	queued := 0
	for _, f := range files {
		if !isPDF(f) {
			continue
		}
		seen, err := p.registry.Seen(ctx, f.ID)
		if err != nil {
			return queued, fmt.Errorf("check processed state: %w", err)
		}
		if seen {
			continue
		}

		file := f
		p.queue.Add(func(taskCtx context.Context) error {
			return p.process(taskCtx, file)
		})
		queued++
	}

	p.log.Info("scan queued files", "queued", queued, "listed", len(files))
	return queued, nil
}

// Stats snapshots the processing counters.
func (p *Pipeline) Stats() Stats {
	qs := p.queue.Stats()

	p.mu.Lock()
	added := make(map[document.Type]int, len(p.added))
	for k, v := range p.added {
		added[k] = v
	}
	errored := p.errored
	p.mu.Unlock()

	return Stats{
		Pending:   qs.Pending,
		Running:   qs.Running,
		Completed: qs.Completed,
		Failed:    qs.Failed,
		Added:     added,
		Errors:    errored,
	}
}

func isPDF(f store.FileInfo) bool {
	if f.MimeType == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(f.Name), ".pdf")
}

// process runs the state machine for one file.
func (p *Pipeline) process(ctx context.Context, file store.FileInfo) error {
	log := p.log.With("file_id", file.ID, "file_name", file.Name)

	// FETCHING
	content, err := p.docs.Download(ctx, file.ID)
	if err != nil {
		return p.fail(ctx, file, "fetching", fmt.Errorf("download: %w", err))
	}
	mime := file.MimeType
	if mime == "" {
		mime = "application/pdf"
	}

	// CLASSIFYING
	reply, err := p.llm.Generate(ctx, file.ID, gemini.ClassifyPrompt, content, mime)
	if err != nil {
		if errors.Is(err, gemini.ErrQuotaExhausted) {
			return p.quota(file, err)
		}
		return p.fail(ctx, file, "classifying", err)
	}
	classification, err := parser.ParseClassification(reply)
	if err != nil {
		return p.unprocessable(ctx, file, "classifying", err)
	}
	if classification.Type == document.TypeUnrecognized {
		log.Warn("document not recognized", "indicators", classification.Indicators)
		return p.unprocessable(ctx, file, "classifying", errors.New("tipo de documento no reconocido"))
	}
	log.Info("document classified", "type", classification.Type, "confidence", classification.Confidence)

	// EXTRACTING
	prompt, ok := gemini.ExtractPromptFor(classification.Type)
	if !ok {
		return p.unprocessable(ctx, file, "extracting", fmt.Errorf("sin prompt de extracción para %s", classification.Type))
	}
	reply, err = p.llm.Generate(ctx, file.ID, prompt, content, mime)
	if err != nil {
		if errors.Is(err, gemini.ErrQuotaExhausted) {
			return p.quota(file, err)
		}
		return p.fail(ctx, file, "extracting", err)
	}

	switch classification.Type {
	case document.TypeFacturaEmitida, document.TypeFacturaRecibida:
		return p.processInvoice(ctx, file, reply)
	case document.TypePagoEnviado, document.TypePagoRecibido:
		return p.processPayment(ctx, file, reply)
	case document.TypeRecibo:
		return p.processReceipt(ctx, file, reply)
	case document.TypeResumenBancario:
		return p.processStatement(ctx, file, reply)
	}
	return p.unprocessable(ctx, file, "extracting", fmt.Errorf("tipo inesperado %s", classification.Type))
}

func (p *Pipeline) processInvoice(ctx context.Context, file store.FileInfo, reply string) error {
	inv, err := parser.ParseInvoice(reply)
	if err != nil {
		return p.unprocessable(ctx, file, "extracting", err)
	}
	p.stamp(&inv.Meta, file)
	validateInvoice(&inv, p.log)

	var docType document.Type
	var sheet ledger.Sheet
	if inv.Emitida() {
		docType, sheet = document.TypeFacturaEmitida, ledger.SheetFacturasEmitidas
	} else {
		docType, sheet = document.TypeFacturaRecibida, ledger.SheetFacturasRecibidas
	}

	// PERSISTING
	seen, err := p.ledgers.HasFile(ctx, sheet, ledger.InvoiceFileIDColumn, file.ID)
	if err != nil {
		return p.fail(ctx, file, "persisting", err)
	}
	if !seen {
		if err := p.ledgers.AppendRow(ctx, sheet, ledger.InvoiceRow(inv)); err != nil {
			return p.fail(ctx, file, "persisting", err)
		}
		p.count(docType)
	}

	// FILING
	if err := p.fileAway(ctx, file, docType, inv.FechaEmision, document.CanonicalInvoiceName(inv)); err != nil {
		return p.fail(ctx, file, "filing", err)
	}
	return p.done(ctx, file, docType)
}

func (p *Pipeline) processPayment(ctx context.Context, file store.FileInfo, reply string) error {
	pay, err := parser.ParsePayment(reply)
	if err != nil {
		return p.unprocessable(ctx, file, "extracting", err)
	}
	p.stamp(&pay.Meta, file)
	validatePayment(&pay, p.log)

	var docType document.Type
	var sheet ledger.Sheet
	if pay.Enviado() {
		docType, sheet = document.TypePagoEnviado, ledger.SheetPagosEnviados
	} else {
		docType, sheet = document.TypePagoRecibido, ledger.SheetPagosRecibidos
	}

	seen, err := p.ledgers.HasFile(ctx, sheet, ledger.PaymentFileIDColumn, file.ID)
	if err != nil {
		return p.fail(ctx, file, "persisting", err)
	}
	if !seen {
		if err := p.ledgers.AppendRow(ctx, sheet, ledger.PaymentRow(pay)); err != nil {
			return p.fail(ctx, file, "persisting", err)
		}
		p.count(docType)
	}

	if err := p.fileAway(ctx, file, docType, pay.FechaPago, document.CanonicalPaymentName(pay)); err != nil {
		return p.fail(ctx, file, "filing", err)
	}
	return p.done(ctx, file, docType)
}

func (p *Pipeline) processReceipt(ctx context.Context, file store.FileInfo, reply string) error {
	rec, err := parser.ParseReceipt(reply)
	if err != nil {
		return p.unprocessable(ctx, file, "extracting", err)
	}
	p.stamp(&rec.Meta, file)
	validateReceipt(&rec, p.log)

	seen, err := p.ledgers.HasFile(ctx, ledger.SheetRecibos, ledger.ReceiptFileIDColumn, file.ID)
	if err != nil {
		return p.fail(ctx, file, "persisting", err)
	}
	if !seen {
		if err := p.ledgers.AppendRow(ctx, ledger.SheetRecibos, ledger.ReceiptRow(rec)); err != nil {
			return p.fail(ctx, file, "persisting", err)
		}
		p.count(document.TypeRecibo)
	}

	if err := p.fileAway(ctx, file, document.TypeRecibo, rec.FechaPago, document.CanonicalReceiptName(rec)); err != nil {
		return p.fail(ctx, file, "filing", err)
	}
	return p.done(ctx, file, document.TypeRecibo)
}

func (p *Pipeline) processStatement(ctx context.Context, file store.FileInfo, reply string) error {
	st, err := parser.ParseStatement(reply)
	if err != nil {
		return p.unprocessable(ctx, file, "extracting", err)
	}
	p.stamp(&st.Meta, file)

	// A statement whose period could not be read cannot be filed into a
	// month folder nor keyed to an account tab. It keeps its original name.
	if st.FechaDesde.IsZero() || st.FechaHasta.IsZero() {
		return p.unprocessable(ctx, file, "extracting", errors.New("resumen sin período identificable"))
	}

	tab := sheets.StatementTab(st.Banco, st.NumeroCuenta, st.Moneda)
	if len(st.Movimientos) > 0 {
		if err := p.ledgers.AppendMovements(ctx, tab, st.Movimientos); err != nil {
			return p.fail(ctx, file, "persisting", err)
		}
		if err := p.ledgers.SortMovements(ctx, tab); err != nil {
			p.log.Warn("failed to sort movement tab", "tab", tab, "error", err)
		}
		p.count(document.TypeResumenBancario)
	}

	if err := p.fileAway(ctx, file, document.TypeResumenBancario, st.FechaDesde, document.CanonicalStatementName(st)); err != nil {
		return p.fail(ctx, file, "filing", err)
	}
	return p.done(ctx, file, document.TypeResumenBancario)
}

func (p *Pipeline) stamp(meta *document.Meta, file store.FileInfo) {
	meta.FileID = file.ID
	meta.FileName = file.Name
	meta.ProcessedAt = time.Now().UTC()
}

func (p *Pipeline) count(t document.Type) {
	p.mu.Lock()
	p.added[t]++
	p.mu.Unlock()
}

// fileAway moves a processed file into <year>/<class>/<month> under its
// canonical name.
func (p *Pipeline) fileAway(ctx context.Context, file store.FileInfo, docType document.Type, date time.Time, newName string) error {
	folderID, err := p.ledgers.EnsureFolder(ctx, sheets.ClassFor(docType), date)
	if err != nil {
		return err
	}
	return p.docs.Move(ctx, file.ID, folderID, newName)
}

// done marks the file processed.
func (p *Pipeline) done(ctx context.Context, file store.FileInfo, docType document.Type) error {
	err := p.registry.Mark(ctx, state.ProcessedFile{
		FileID:       file.ID,
		FileName:     file.Name,
		DocumentType: string(docType),
		Status:       state.StatusDone,
	})
	if err != nil {
		p.log.Error("failed to mark file processed", "file_id", file.ID, "error", err)
		return err
	}
	p.log.Info("file processed", "file_id", file.ID, "type", docType)
	return nil
}

// unprocessable records the failure and moves the file to sin_procesar with
// its original name, where it waits for manual attention.
func (p *Pipeline) unprocessable(ctx context.Context, file store.FileInfo, stage string, cause error) error {
	p.log.Warn("file unprocessable", "file_id", file.ID, "stage", stage, "error", cause)
	p.mu.Lock()
	p.errored++
	p.mu.Unlock()

	if err := p.ledgers.AppendError(ctx, file.ID, file.Name, stage, cause.Error()); err != nil {
		p.log.Error("failed to record error row", "file_id", file.ID, "error", err)
	}

	folderID, err := p.ledgers.EnsureFolder(ctx, sheets.ClassSinProcesar, time.Now())
	if err == nil {
		// Original name preserved: the file keeps its identity for retry.
		if moveErr := p.docs.Move(ctx, file.ID, folderID, ""); moveErr != nil {
			p.log.Error("failed to move file to sin_procesar", "file_id", file.ID, "error", moveErr)
		}
	}

	if markErr := p.registry.Mark(ctx, state.ProcessedFile{
		FileID:   file.ID,
		FileName: file.Name,
		Status:   state.StatusFailed,
		ErrorMessage: func() string {
			if len(cause.Error()) > 500 {
				return cause.Error()[:500]
			}
			return cause.Error()
		}(),
	}); markErr != nil {
		p.log.Error("failed to mark file failed", "file_id", file.ID, "error", markErr)
	}
	return cause
}

// fail records a failure that should be retried on a later scan: the file
// stays where it is and is not marked processed.
func (p *Pipeline) fail(ctx context.Context, file store.FileInfo, stage string, cause error) error {
	p.log.Error("pipeline step failed", "file_id", file.ID, "stage", stage, "error", cause)
	p.mu.Lock()
	p.errored++
	p.mu.Unlock()

	if err := p.ledgers.AppendError(ctx, file.ID, file.Name, stage, cause.Error()); err != nil {
		p.log.Error("failed to record error row", "file_id", file.ID, "error", err)
	}
	return cause
}

// quota stops the whole pipeline: pending tasks are dropped and will be
// re-queued by the next scheduled scan, once the daily quota resets.
func (p *Pipeline) quota(file store.FileInfo, cause error) error {
	p.log.Error("LLM quota exhausted, draining queue", "file_id", file.ID)
	p.queue.Pause()
	p.queue.Clear()
	return cause
}
