package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the formats accepted from extracted documents, most
// specific first. Argentine documents favor DD/MM/YYYY.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02/01/06",
	"2/1/2006",
	"02.01.2006",
	"2006/01/02",
}

// sheetSerialEpoch is day zero of spreadsheet serial dates (Google Sheets and
// Excel both count from 1899-12-30).
var sheetSerialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses a date in any of the accepted document formats, including
// spreadsheet serial numbers.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("parse date: empty input")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	// Serial date: integer count of days since the sheet epoch. Plausible
	// ledger dates land in a narrow serial range.
	if serial, err := strconv.Atoi(s); err == nil && serial > 20000 && serial < 80000 {
		return FromSheetSerial(serial), nil
	}

	return time.Time{}, fmt.Errorf("parse date: unrecognized format %q", raw)
}

// FromSheetSerial converts a spreadsheet serial day number to a UTC date.
func FromSheetSerial(serial int) time.Time {
	return sheetSerialEpoch.AddDate(0, 0, serial)
}

// ToSheetSerial converts a date to its spreadsheet serial day number.
func ToSheetSerial(t time.Time) int {
	return int(t.UTC().Truncate(24*time.Hour).Sub(sheetSerialEpoch).Hours() / 24)
}

// DaysBetween returns b - a in whole days, ignoring time-of-day.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

// AbsDays returns the absolute day distance between two dates.
func AbsDays(a, b time.Time) int {
	d := DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

// spanishMonths maps month number to the Spanish folder name component.
var spanishMonths = [13]string{
	"",
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// MonthFolder renders the "MM - MonthName" folder segment for a date.
func MonthFolder(t time.Time) string {
	return fmt.Sprintf("%02d - %s", int(t.Month()), spanishMonths[int(t.Month())])
}
