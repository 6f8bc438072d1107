package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/cardsmith/internal/export"
	"github.com/starford/cardsmith/internal/page"
	"github.com/starford/cardsmith/internal/session"
)

// ConvertSheet converts every row of the spreadsheet at sheetPath and writes
// one JSON file per card into outDir. It returns the written paths. Nothing
// is written when any row fails.
func ConvertSheet(ctx context.Context, sheetPath, outDir string, opts ...Option) ([]string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := app.newLogger(os.Stderr)

	data, err := os.ReadFile(sheetPath)
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	dir, err := export.NewDir(outDir)
	if err != nil {
		return nil, err
	}

	vs, err := app.newVocabulary()
	if err != nil {
		return nil, err
	}
	conv, err := app.newConverter(ctx, vs, logger)
	if err != nil {
		return nil, err
	}
	ctrl := page.New(session.NewMemory(0), conv, vs, nil, logger)

	sess, _, err := ctrl.Open(ctx, "")
	if err != nil {
		return nil, err
	}
	up, err := ctrl.Upload(ctx, sess, filepath.Base(sheetPath), data)
	if err != nil {
		return nil, err
	}
	logger.Info("Sheet loaded",
		slog.String("file", up.Filename),
		slog.Int("rows", up.Rows))

	cards, err := ctrl.Convert(ctx, sess, func(done, total int) {
		logger.Info("Row converted", slog.Int("done", done), slog.Int("total", total))
	})
	if err != nil {
		return nil, err
	}

	paths, err := dir.WriteCards(cards)
	if err != nil {
		return paths, err
	}
	logger.Info("Cards written", slog.Int("count", len(paths)), slog.String("dir", outDir))
	return paths, nil
}
