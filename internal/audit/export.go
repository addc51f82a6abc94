package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"monitor-engine/internal/model"
)

// Export format tokens.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Export page limit: at most 20 pages of 500 rows per export request.
const maxExportPages = 20

// Export materializes every entry matching the filter into a downloadable
// report. Returns the payload and its content type.
func (s *Service) Export(ctx context.Context, filter *model.AuditFilter, format string) ([]byte, string, error) {
	switch format {
	case FormatCSV, FormatJSON:
	case "":
		format = FormatCSV
	default:
		return nil, "", fmt.Errorf("%w: unknown export format %q", model.ErrInvalidFilter, format)
	}

	filter.Page = 1
	filter.PageSize = 500

	var entries []*model.AuditLogEntry
	for page := 1; page <= maxExportPages; page++ {
		filter.Page = page
		result, err := s.Query(ctx, filter)
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, result.Entries...)
		if page >= result.PageCount {
			break
		}
	}

	if format == FormatJSON {
		payload, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode export: %w", err)
		}
		return payload, "application/json", nil
	}

	return encodeCSV(entries)
}

func encodeCSV(entries []*model.AuditLogEntry) ([]byte, string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "created_at", "user_id", "user_email", "user_name", "user_role",
		"action_type", "resource_type", "resource_id", "resource_name",
		"severity", "status", "ip_address", "risk_score",
	}
	if err := w.Write(header); err != nil {
		return nil, "", fmt.Errorf("failed to write export header: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.ID.String(),
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.UserID,
			e.UserEmail,
			e.UserName,
			e.UserRole,
			e.ActionType,
			e.ResourceType,
			e.ResourceID,
			e.ResourceName,
			e.Severity,
			e.Status,
			e.IPAddress,
			strconv.Itoa(e.RiskScore()),
		}
		if err := w.Write(record); err != nil {
			return nil, "", fmt.Errorf("failed to write export row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", fmt.Errorf("failed to flush export: %w", err)
	}

	return buf.Bytes(), "text/csv", nil
}
