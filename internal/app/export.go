package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"whiteboard/internal/domain"
)

// ExportBoard renders sessionID to path. The format follows the file
// extension: .png, .jpg/.jpeg or .json.
func (a *App) ExportBoard(sessionID, path string, opts domain.ExportOptions) error {
	format, err := formatFor(path)
	if err != nil {
		return err
	}
	b, err := a.boards.Get(a.ctx, sessionID)
	if err != nil {
		return fmt.Errorf("open board %s: %w", sessionID, err)
	}
	if opts.Background == "" {
		opts.Background = a.cfg.Render.Background
	}
	out, err := b.Engine.Export(format, opts)
	if err != nil {
		return fmt.Errorf("export %s: %w", sessionID, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func formatFor(path string) (domain.ExportFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return domain.ExportPNG, nil
	case ".jpg", ".jpeg":
		return domain.ExportJPG, nil
	case ".json":
		return domain.ExportJSON, nil
	case ".svg":
		return domain.ExportSVG, nil
	case ".pdf":
		return domain.ExportPDF, nil
	}
	return "", fmt.Errorf("%w: unknown export extension %q", domain.ErrValidation, filepath.Ext(path))
}
