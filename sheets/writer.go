package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"apartments-bot/models"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the sheet that mirrors the stored snapshot
const DefaultSheetName = "Snapshot"

var header = []any{"Project", "Plan", "Rooms", "Area (m²)", "Price (€)", "Floor", "Status", "Tags", "Link", "Project link", "Image"}

// Writer handles writing listings to Google Sheets
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger
}

// NewWriter creates a new Google Sheets writer. Credentials are read from
// credentialsPath, or from GOOGLE_SHEETS_CREDENTIALS when the path is empty.
func NewWriter(ctx context.Context, spreadsheet, credentialsPath string, logger *slog.Logger) (*Writer, error) {
	spreadsheetID := SpreadsheetID(spreadsheet)
	if spreadsheetID == "" {
		return nil, fmt.Errorf("could not extract spreadsheet ID from %q", spreadsheet)
	}

	var credsJSON []byte
	if credentialsPath != "" {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credsJSON = data
	} else {
		// Trim whitespace and newlines that might be in the environment variable
		credsEnv := strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_CREDENTIALS"))
		if credsEnv == "" {
			return nil, fmt.Errorf("credentials not found: GOOGLE_SHEETS_CREDENTIALS environment variable is empty or not set")
		}
		logger.Debug("reading sheets credentials from environment", "bytes", len(credsEnv))
		credsJSON = []byte(credsEnv)
	}

	if err := validateCredentials(credsJSON); err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(credsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		service:       service,
		spreadsheetID: spreadsheetID,
		sheetName:     DefaultSheetName,
		logger:        logger,
	}, nil
}

func validateCredentials(credsJSON []byte) error {
	var creds map[string]any
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return fmt.Errorf("invalid credentials JSON (check if JSON is properly formatted): %w", err)
	}
	if creds["type"] != "service_account" {
		return fmt.Errorf("credentials must be a service account JSON file (type: service_account), got type: %v", creds["type"])
	}
	return nil
}

// ExportSnapshot overwrites the snapshot sheet with listings, creating the
// sheet on first use
func (w *Writer) ExportSnapshot(ctx context.Context, listings []models.Listing) error {
	if err := w.ensureSheet(ctx); err != nil {
		return err
	}

	sheetRange := fmt.Sprintf("'%s'!A1", w.sheetName)
	_, err := w.service.Spreadsheets.Values.Clear(w.spreadsheetID, fmt.Sprintf("'%s'", w.sheetName), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		// Stale rows below the new data are the only consequence
		w.logger.Warn("failed to clear snapshot sheet", "err", err)
	}

	valueRange := &sheets.ValueRange{Values: rows(listings, time.Now())}
	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, sheetRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write to sheet: %w", err)
	}

	w.logger.Info("snapshot exported to sheets", "sheet", w.sheetName, "listings", len(listings))
	return nil
}

func (w *Writer) ensureSheet(ctx context.Context) error {
	spreadsheet, err := w.service.Spreadsheets.Get(w.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil && sh.Properties.Title == w.sheetName {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: w.sheetName, Index: 0},
			},
		}},
	}
	if _, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	w.logger.Info("created sheet", "sheet", w.sheetName)
	return nil
}

// rows renders the metadata row, the header and one row per listing
func rows(listings []models.Listing, exportedAt time.Time) [][]any {
	values := make([][]any, 0, len(listings)+2)
	values = append(values, []any{"Updated", exportedAt.Format(time.RFC3339), "Listings", len(listings)})
	values = append(values, header)

	for _, l := range listings {
		values = append(values, []any{
			l.ProjectName,
			l.Plan,
			l.RoomsCount,
			l.SqMeters,
			l.Price,
			l.Floor,
			l.Status,
			strings.Join(decodeTags(l.Tag), ", "),
			l.Link,
			l.ProjectLink,
			l.ImageURL,
		})
	}
	return values
}

func decodeTags(tag string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(tag), &tags); err != nil {
		return nil
	}
	return tags
}

// sanitizeSheetName removes invalid characters from sheet name
func sanitizeSheetName(name string) string {
	// Google Sheets sheet names cannot contain: / \ ? * [ ]
	invalidChars := []string{"/", "\\", "?", "*", "[", "]"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		result = DefaultSheetName
	}
	// The 100 limit counts characters, and a byte cut could split a rune
	if r := []rune(result); len(r) > 100 {
		result = string(r[:100])
	}
	return result
}

// WithSheetName sets the sheet the snapshot is written to
func (w *Writer) WithSheetName(name string) *Writer {
	w.sheetName = sanitizeSheetName(name)
	return w
}

// SpreadsheetID accepts a Google Sheets URL or a bare spreadsheet ID
func SpreadsheetID(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/d/") {
		return ExtractSpreadsheetID(s)
	}
	if strings.ContainsAny(s, "/?") {
		return ""
	}
	return s
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func ExtractSpreadsheetID(url string) string {
	// Handle various URL formats:
	// https://docs.google.com/spreadsheets/d/SPREADSHEET_ID/edit
	// https://docs.google.com/spreadsheets/d/SPREADSHEET_ID/edit?usp=sharing
	parts := strings.Split(url, "/d/")
	if len(parts) < 2 {
		return ""
	}

	idPart := parts[1]
	if idx := strings.Index(idPart, "/"); idx != -1 {
		idPart = idPart[:idx]
	}
	if idx := strings.Index(idPart, "?"); idx != -1 {
		idPart = idPart[:idx]
	}

	return strings.TrimSpace(idPart)
}
