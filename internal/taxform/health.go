package taxform

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TemplateStatus is the health of one registered template
type TemplateStatus struct {
	Form    string `json:"form"`
	Path    string `json:"path"`
	Valid   bool   `json:"valid"`
	Pages   int    `json:"pages,omitempty"`
	Message string `json:"message,omitempty"`
}

// CheckTemplates verifies that every registered template exists, is within
// the size limit and parses as a PDF
func (s *Service) CheckTemplates(ctx context.Context) ([]TemplateStatus, error) {
	forms := s.registry.Forms()
	statuses := make([]TemplateStatus, 0, len(forms))
	for _, form := range forms {
		if err := ctx.Err(); err != nil {
			return statuses, err
		}

		status := TemplateStatus{Form: form}
		path, err := s.filler.TemplatePath(form)
		if err != nil {
			status.Message = err.Error()
			statuses = append(statuses, status)
			continue
		}
		status.Path = path

		pages, err := s.checkTemplate(path)
		if err != nil {
			status.Message = err.Error()
			s.logger.Warn("template check failed", "form", form, "path", path, "error", err)
		} else {
			status.Valid = true
			status.Pages = pages
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// checkTemplate validates the file and returns its page count
func (s *Service) checkTemplate(path string) (int, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return 0, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return 0, fmt.Errorf("file is not a PDF: %s", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("file is empty: %s", path)
	}
	if s.cfg.MaxFileSize > 0 && info.Size() > s.cfg.MaxFileSize {
		return 0, fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), s.cfg.MaxFileSize)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("invalid PDF file: %w", err)
	}
	defer f.Close()

	return r.NumPage(), nil
}
