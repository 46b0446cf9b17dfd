// Package sheets manages the ledger spreadsheet and the dated folder tree.
// All writes to a tab go through a per-tab mutex so append ordering and
// read-modify-write updates stay consistent across concurrent tasks.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"adva/ms_conciliacion_core/internal/core/document"
	"adva/ms_conciliacion_core/internal/core/ledger"
	"adva/ms_conciliacion_core/internal/core/store"
	"adva/ms_conciliacion_core/internal/infrastructure/cache"
)

// Folder classes under each year folder.
const (
	ClassCreditos    = "creditos"
	ClassDebitos     = "debitos"
	ClassBancos      = "bancos"
	ClassSinProcesar = "sin_procesar"
)

// ClassFor maps a document type to its filing class. Issued invoices and
// received payments are money in; received invoices, sent payments and salary
// receipts are money out.
func ClassFor(t document.Type) string {
	switch t {
	case document.TypeFacturaEmitida, document.TypePagoRecibido:
		return ClassCreditos
	case document.TypeFacturaRecibida, document.TypePagoEnviado, document.TypeRecibo:
		return ClassDebitos
	case document.TypeResumenBancario:
		return ClassBancos
	}
	return ClassSinProcesar
}

// Manager wraps the tabular and document stores with dedup, row addressing
// and folder-tree resolution.
type Manager struct {
	tab     store.TabularStore
	docs    store.DocumentStore
	sheetID string
	rootID  string
	folders *cache.FolderCache
	log     *slog.Logger

	mu   sync.Mutex
	tabs map[string]*sync.Mutex
}

// NewManager creates a sheet manager over the ledger spreadsheet and the
// document-store root folder.
func NewManager(tab store.TabularStore, docs store.DocumentStore, sheetID, rootFolderID string, folders *cache.FolderCache, log *slog.Logger) *Manager {
	if folders == nil {
		folders = cache.NewFolderCache()
	}
	return &Manager{
		tab:     tab,
		docs:    docs,
		sheetID: sheetID,
		rootID:  rootFolderID,
		folders: folders,
		log:     log,
		tabs:    make(map[string]*sync.Mutex),
	}
}

// tabLock returns the mutex serializing writes to one tab.
func (m *Manager) tabLock(tab string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.tabs[tab]
	if !ok {
		l = &sync.Mutex{}
		m.tabs[tab] = l
	}
	return l
}

// dataRange addresses all data rows of a tab. Row 1 holds headers.
func dataRange(tab string) string {
	return fmt.Sprintf("%s!A2:Z", tab)
}

func rowRange(tab string, row int) string {
	return fmt.Sprintf("%s!A%d", tab, row)
}

// HasFile reports whether fileID already has a row on the given ledger tab.
func (m *Manager) HasFile(ctx context.Context, sheet ledger.Sheet, fileIDColumn int, fileID string) (bool, error) {
	rows, err := m.tab.GetValues(ctx, m.sheetID, dataRange(string(sheet)))
	if err != nil {
		return false, fmt.Errorf("read %s: %w", sheet, err)
	}
	for _, row := range rows {
		if len(row) > fileIDColumn && row[fileIDColumn] == fileID {
			return true, nil
		}
	}
	return false, nil
}

// AppendRow appends one row to a ledger tab under the tab's mutex.
func (m *Manager) AppendRow(ctx context.Context, sheet ledger.Sheet, row []string) error {
	lock := m.tabLock(string(sheet))
	lock.Lock()
	defer lock.Unlock()

	if err := m.tab.AppendRows(ctx, m.sheetID, dataRange(string(sheet)), [][]string{row}); err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}

// InvoiceRef is an invoice plus its absolute sheet row, for write-back.
type InvoiceRef struct {
	document.Invoice
	Sheet ledger.Sheet
	Row   int
}

// Invoices loads and parses all invoices on one invoice tab. Unparseable rows
// are logged and skipped rather than failing the whole read.
func (m *Manager) Invoices(ctx context.Context, sheet ledger.Sheet) ([]InvoiceRef, error) {
	rows, err := m.tab.GetValues(ctx, m.sheetID, dataRange(string(sheet)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	var out []InvoiceRef
	for i, row := range rows {
		inv, err := ledger.ParseInvoiceRow(row, sheet)
		if err != nil {
			m.log.Warn("skipping unparseable invoice row", "sheet", sheet, "row", i+2, "error", err)
			continue
		}
		out = append(out, InvoiceRef{Invoice: inv, Sheet: sheet, Row: i + 2})
	}
	return out, nil
}

// PaymentRef is a payment plus its absolute sheet row.
type PaymentRef struct {
	document.Payment
	Sheet ledger.Sheet
	Row   int
}

// Payments loads and parses all payments on one payment tab.
func (m *Manager) Payments(ctx context.Context, sheet ledger.Sheet) ([]PaymentRef, error) {
	rows, err := m.tab.GetValues(ctx, m.sheetID, dataRange(string(sheet)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	var out []PaymentRef
	for i, row := range rows {
		p, err := ledger.ParsePaymentRow(row, sheet)
		if err != nil {
			m.log.Warn("skipping unparseable payment row", "sheet", sheet, "row", i+2, "error", err)
			continue
		}
		out = append(out, PaymentRef{Payment: p, Sheet: sheet, Row: i + 2})
	}
	return out, nil
}

// ReceiptRef is a salary receipt plus its absolute sheet row.
type ReceiptRef struct {
	document.Receipt
	Row int
}

// Receipts loads and parses all salary receipts.
func (m *Manager) Receipts(ctx context.Context) ([]ReceiptRef, error) {
	rows, err := m.tab.GetValues(ctx, m.sheetID, dataRange(string(ledger.SheetRecibos)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ledger.SheetRecibos, err)
	}
	var out []ReceiptRef
	for i, row := range rows {
		r, err := ledger.ParseReceiptRow(row)
		if err != nil {
			m.log.Warn("skipping unparseable receipt row", "row", i+2, "error", err)
			continue
		}
		out = append(out, ReceiptRef{Receipt: r, Row: i + 2})
	}
	return out, nil
}

// Withholdings loads all retenciones.
func (m *Manager) Withholdings(ctx context.Context) ([]document.Withholding, error) {
	rows, err := m.tab.GetValues(ctx, m.sheetID, dataRange(string(ledger.SheetRetenciones)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ledger.SheetRetenciones, err)
	}
	var out []document.Withholding
	for i, row := range rows {
		w, err := ledger.ParseWithholdingRow(row)
		if err != nil {
			m.log.Warn("skipping unparseable withholding row", "row", i+2, "error", err)
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

// UpdateInvoiceRow rewrites one invoice row in place (match link changes).
func (m *Manager) UpdateInvoiceRow(ctx context.Context, ref InvoiceRef) error {
	lock := m.tabLock(string(ref.Sheet))
	lock.Lock()
	defer lock.Unlock()

	update := store.CellUpdate{
		Range:  rowRange(string(ref.Sheet), ref.Row),
		Values: [][]string{ledger.InvoiceRow(ref.Invoice)},
	}
	if err := m.tab.BatchUpdate(ctx, m.sheetID, []store.CellUpdate{update}); err != nil {
		return fmt.Errorf("update %s row %d: %w", ref.Sheet, ref.Row, err)
	}
	return nil
}

// UpdatePaymentRow rewrites one payment row in place.
func (m *Manager) UpdatePaymentRow(ctx context.Context, ref PaymentRef) error {
	lock := m.tabLock(string(ref.Sheet))
	lock.Lock()
	defer lock.Unlock()

	update := store.CellUpdate{
		Range:  rowRange(string(ref.Sheet), ref.Row),
		Values: [][]string{ledger.PaymentRow(ref.Payment)},
	}
	if err := m.tab.BatchUpdate(ctx, m.sheetID, []store.CellUpdate{update}); err != nil {
		return fmt.Errorf("update %s row %d: %w", ref.Sheet, ref.Row, err)
	}
	return nil
}

// UpdateReceiptRow rewrites one receipt row in place.
func (m *Manager) UpdateReceiptRow(ctx context.Context, ref ReceiptRef) error {
	lock := m.tabLock(string(ledger.SheetRecibos))
	lock.Lock()
	defer lock.Unlock()

	update := store.CellUpdate{
		Range:  rowRange(string(ledger.SheetRecibos), ref.Row),
		Values: [][]string{ledger.ReceiptRow(ref.Receipt)},
	}
	if err := m.tab.BatchUpdate(ctx, m.sheetID, []store.CellUpdate{update}); err != nil {
		return fmt.Errorf("update recibos row %d: %w", ref.Row, err)
	}
	return nil
}

// AppendError records a failed file on the error tab.
func (m *Manager) AppendError(ctx context.Context, fileID, fileName, stage, message string) error {
	lock := m.tabLock(string(ledger.SheetErrores))
	lock.Lock()
	defer lock.Unlock()

	row := []string{
		time.Now().UTC().Format(time.RFC3339),
		fileID,
		fileName,
		stage,
		message,
	}
	if err := m.tab.AppendRows(ctx, m.sheetID, dataRange(string(ledger.SheetErrores)), [][]string{row}); err != nil {
		return fmt.Errorf("append error row: %w", err)
	}
	return nil
}

// StatementTab names the per-account movement tab.
func StatementTab(banco, cuenta string, moneda document.Currency) string {
	name := fmt.Sprintf("mov_%s_%s_%s", banco, cuenta, moneda)
	name = document.SanitizeFileName(name)
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

// MovementTabPrefix marks the per-account movement tabs among the ledgers.
const MovementTabPrefix = "mov_"

// MovementTabs lists the per-account movement tabs present in the spreadsheet.
func (m *Manager) MovementTabs(ctx context.Context) ([]string, error) {
	tabs, err := m.tab.ListTabs(ctx, m.sheetID)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	var out []string
	for _, t := range tabs {
		if strings.HasPrefix(t, MovementTabPrefix) {
			out = append(out, t)
		}
	}
	return out, nil
}

// TabCurrency reads the currency back out of a movement tab name.
func TabCurrency(tab string) document.Currency {
	if strings.HasSuffix(tab, "_usd") {
		return document.CurrencyUSD
	}
	return document.CurrencyARS
}

// SortMovements orders a movement tab chronologically. Statements arrive out
// of order; the tab stays readable for humans.
func (m *Manager) SortMovements(ctx context.Context, tabName string) error {
	lock := m.tabLock(tabName)
	lock.Lock()
	defer lock.Unlock()

	if err := m.tab.SortSheet(ctx, m.sheetID, tabName, ledger.MovementDateColumn); err != nil {
		return fmt.Errorf("sort %s: %w", tabName, err)
	}
	return nil
}

// MovementRef is a bank movement plus its sheet row and the content hash read
// at load time, used for the pre-write concurrency check.
type MovementRef struct {
	document.BankMovement
	Tab  string
	Row  int
	Hash string
}

// AppendMovements appends a statement's movements to its per-account tab.
func (m *Manager) AppendMovements(ctx context.Context, tabName string, movs []document.BankMovement) error {
	lock := m.tabLock(tabName)
	lock.Lock()
	defer lock.Unlock()

	rows := make([][]string, 0, len(movs))
	for _, mv := range movs {
		rows = append(rows, ledger.MovementRow(mv))
	}
	if err := m.tab.AppendRows(ctx, m.sheetID, dataRange(tabName), rows); err != nil {
		return fmt.Errorf("append movements to %s: %w", tabName, err)
	}
	return nil
}

// Movements loads all rows of one per-account movement tab, hashing each for
// the later write-back check.
func (m *Manager) Movements(ctx context.Context, tabName string) ([]MovementRef, error) {
	rows, err := m.tab.GetValues(ctx, m.sheetID, dataRange(tabName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tabName, err)
	}
	var out []MovementRef
	for i, row := range rows {
		mv, err := ledger.ParseMovementRow(row)
		if err != nil {
			m.log.Warn("skipping unparseable movement row", "tab", tabName, "row", i+2, "error", err)
			continue
		}
		out = append(out, MovementRef{
			BankMovement: mv,
			Tab:          tabName,
			Row:          i + 2,
			Hash:         ledger.MovementHash(mv),
		})
	}
	return out, nil
}

// UpdateMovement writes a movement's match link and detail back, guarded
// against concurrent edits: the row is re-read and its hash compared with the
// one captured at load time. A mismatch skips the write and reports false.
func (m *Manager) UpdateMovement(ctx context.Context, ref MovementRef, matchedFileID, detalle string) (bool, error) {
	lock := m.tabLock(ref.Tab)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.tab.GetValues(ctx, m.sheetID, fmt.Sprintf("%s!A%d:Z%d", ref.Tab, ref.Row, ref.Row))
	if err != nil {
		return false, fmt.Errorf("re-read %s row %d: %w", ref.Tab, ref.Row, err)
	}
	if len(current) == 0 {
		return false, nil
	}
	mv, err := ledger.ParseMovementRow(current[0])
	if err != nil {
		return false, nil
	}
	if ledger.MovementHash(mv) != ref.Hash {
		m.log.Warn("movement row changed since matching, skipping update", "tab", ref.Tab, "row", ref.Row)
		return false, nil
	}

	mv.MatchedFileID = matchedFileID
	mv.Detalle = detalle
	update := store.CellUpdate{
		Range:  rowRange(ref.Tab, ref.Row),
		Values: [][]string{ledger.MovementRow(mv)},
	}
	if err := m.tab.BatchUpdate(ctx, m.sheetID, []store.CellUpdate{update}); err != nil {
		return false, fmt.Errorf("update %s row %d: %w", ref.Tab, ref.Row, err)
	}
	return true, nil
}

// EnsureFolder resolves (creating as needed) the dated destination folder
// <root>/<year>/<class>/<MM - Month> and caches the id per path.
func (m *Manager) EnsureFolder(ctx context.Context, class string, date time.Time) (string, error) {
	year := date.Format("2006")
	month := document.MonthFolder(date)
	path := year + "/" + class + "/" + month

	if id, ok := m.folders.Get(path); ok {
		return id, nil
	}

	yearID, err := m.ensureChild(ctx, m.rootID, year, year)
	if err != nil {
		return "", err
	}
	classID, err := m.ensureChild(ctx, yearID, class, year+"/"+class)
	if err != nil {
		return "", err
	}
	monthID, err := m.ensureChild(ctx, classID, month, path)
	if err != nil {
		return "", err
	}
	return monthID, nil
}

func (m *Manager) ensureChild(ctx context.Context, parentID, name, path string) (string, error) {
	if id, ok := m.folders.Get(path); ok {
		return id, nil
	}
	id, err := m.docs.GetOrCreateFolder(ctx, parentID, name)
	if err != nil {
		return "", fmt.Errorf("resolve folder %s: %w", path, err)
	}
	m.folders.Set(path, id)
	return id, nil
}
