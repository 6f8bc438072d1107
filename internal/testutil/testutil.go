// Package testutil provides shared test helpers for session stores, loggers,
// workbooks and fake generators.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/starford/cardsmith/internal/session"
)

// TestDB creates a temporary SQLite session store that is automatically
// cleaned up.
func TestDB(t *testing.T) *session.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "cardsmith-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := session.OpenSQLite(dbFile.Name(), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FakeLLM is a scripted generator that records the prompts it receives.
type FakeLLM struct {
	mu      sync.Mutex
	Reply   func(n int, prompt string) (string, error)
	Prompts []string
}

// Generate records prompt and returns the scripted reply.
func (f *FakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	n := len(f.Prompts)
	f.Prompts = append(f.Prompts, prompt)
	f.mu.Unlock()
	return f.Reply(n, prompt)
}

// Calls returns how many prompts were received.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// XLSX builds a workbook whose first sheet holds rows, the first being the
// header.
func XLSX(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		row := r
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
