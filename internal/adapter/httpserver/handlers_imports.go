package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/simaogato/tradejournal-backend/internal/platform/apperrors"
	"github.com/simaogato/tradejournal-backend/internal/usecase/importer"
)

type importResponse struct {
	ImportID   uuid.UUID           `json:"import_id"`
	Imported   int                 `json:"imported"`
	Duplicates int                 `json:"duplicates"`
	Failed     int                 `json:"failed"`
	Errors     []importer.RowError `json:"errors"`
}

func toImportResponse(r *importer.ImportResult) importResponse {
	errs := r.Errors
	if errs == nil {
		errs = []importer.RowError{}
	}
	return importResponse{
		ImportID:   r.ImportID,
		Imported:   r.Imported,
		Duplicates: r.Duplicates,
		Failed:     r.Failed,
		Errors:     errs,
	}
}

type screenshotRequest struct {
	Exchange string                   `json:"exchange"`
	Rows     []importer.ScreenshotRow `json:"rows"`
}

func (s *Server) handleImportCSV(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}

	format, err := importer.ParseFormat(c.FormValue("format"))
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.ValidationError("multipart field \"file\" is required")
	}
	if fh.Size > s.config.MaxUploadBytes {
		return apperrors.ValidationErrorf("file exceeds %d bytes", s.config.MaxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return apperrors.ValidationError("could not read uploaded file")
	}
	defer f.Close()

	result, err := s.imports.ImportCSV(c.Request().Context(), principal.UserID, c.FormValue("exchange"), format, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toImportResponse(result))
}

func (s *Server) handleImportScreenshot(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}

	var req screenshotRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	result, err := s.imports.ImportScreenshot(c.Request().Context(), principal.UserID, req.Exchange, req.Rows)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toImportResponse(result))
}

func (s *Server) handleExportCSV(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}

	filter := importer.ExportFilter{Symbol: c.QueryParam("symbol")}
	if filter.From, err = parseTimeParam(c, "from"); err != nil {
		return err
	}
	if filter.To, err = parseTimeParam(c, "to"); err != nil {
		return err
	}

	var buf bytes.Buffer
	if _, err := s.imports.ExportCSV(c.Request().Context(), principal.UserID, &buf, filter); err != nil {
		return err
	}

	filename := fmt.Sprintf("trades-%s.csv", time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// parseTimeParam reads an optional RFC 3339 timestamp or YYYY-MM-DD date.
func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperrors.ValidationErrorf("%s must be RFC 3339 or YYYY-MM-DD", name)
}
