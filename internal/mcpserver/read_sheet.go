package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/cardsmith/internal/convert"
	"github.com/starford/cardsmith/internal/sheet"
)

const (
	maxSheetSize      = 50 << 20 // 50 MB
	defaultSheetLimit = 5
)

var (
	mimeToExt = map[string]string{
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
		"application/vnd.ms-excel.sheet.macroEnabled.12":                    ".xlsm",
		"application/vnd.ms-excel":                                          ".xls",
	}

	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

type readSheetResult struct {
	Filename string        `json:"filename"`
	Columns  []string      `json:"columns"`
	Rows     int           `json:"rows"`
	Preview  []convert.Row `json:"preview"`
}

func (s *Server) readSheet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename := ""
	if v, fErr := req.RequireString("filename"); fErr == nil {
		filename = v
	}
	limit := defaultSheetLimit
	if v, lErr := req.RequireInt("limit"); lErr == nil && v >= 0 {
		limit = v
	}

	var data []byte
	var detectedExt string
	if strings.HasPrefix(rawURL, "data:") {
		data, detectedExt, err = decodeDataURI(rawURL)
	} else {
		data, detectedExt, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if filename == "" {
		filename = filenameFromURL(rawURL, detectedExt)
	}
	filename = filepath.Base(filename)

	if err := validateMagicBytes(data, strings.ToLower(filepath.Ext(filename))); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	table, err := sheet.Read(filename, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("mcp: sheet read", slog.String("filename", filename), slog.Int("rows", table.Len()))
	return jsonResult(readSheetResult{
		Filename: filename,
		Columns:  table.Columns,
		Rows:     table.Len(),
		Preview:  table.Preview(limit),
	}), nil
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI and returns the
// bytes with the extension implied by the media type, if known.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > maxSheetSize {
		return nil, "", fmt.Errorf("file too large (max %d bytes)", maxSheetSize)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	mediaType, _, _ = strings.Cut(mediaType, ";")
	return data, mimeToExt[mediaType], nil
}

// sheetClient refuses to connect to loopback, link-local (which covers
// cloud metadata endpoints) and unspecified addresses. The check runs on the
// resolved address of every connection, redirects included.
var sheetClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
			Control: func(_, address string, _ syscall.RawConn) error {
				host, _, err := net.SplitHostPort(address)
				if err != nil {
					return err
				}
				return checkBlockedIP(net.ParseIP(host))
			},
		}).DialContext,
	},
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects (max 5)")
		}
		return checkBlockedName(req.URL.Hostname())
	},
}

func checkBlockedName(host string) error {
	if strings.EqualFold(host, "metadata.google.internal") || strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func checkBlockedIP(ip net.IP) error {
	switch {
	case ip == nil:
		return fmt.Errorf("blocked host: unparseable address")
	case ip.IsLoopback(), ip.IsLinkLocalUnicast(), ip.IsUnspecified():
		return fmt.Errorf("blocked host: %s", ip)
	}
	return nil
}

// fetchHTTP downloads a spreadsheet from an http(s) URL.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedName(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := sheetClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSheetSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxSheetSize {
		return nil, "", fmt.Errorf("file too large: exceeds %d bytes", maxSheetSize)
	}

	mediaType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return data, mimeToExt[strings.TrimSpace(mediaType)], nil
}

// filenameFromURL takes the last path element of the URL, falling back to
// "sheet" plus the detected extension.
func filenameFromURL(rawURL, fallbackExt string) string {
	if !strings.HasPrefix(rawURL, "data:") {
		if parsed, err := url.Parse(rawURL); err == nil {
			base := path.Base(parsed.Path)
			if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
				return base
			}
		}
	}
	if fallbackExt == "" {
		fallbackExt = ".xlsx"
	}
	return "sheet" + fallbackExt
}

// validateMagicBytes verifies the content matches the workbook container
// the extension implies.
func validateMagicBytes(data []byte, ext string) error {
	switch ext {
	case ".xlsx", ".xlsm":
		if !bytes.HasPrefix(data, zipMagic) {
			return fmt.Errorf("content does not match extension %s (expected a zip container)", ext)
		}
	case ".xls":
		if !bytes.HasPrefix(data, oleMagic) {
			return fmt.Errorf("content does not match extension %s (expected an OLE2 container)", ext)
		}
	default:
		return fmt.Errorf("unsupported file extension: %q (allowed: xlsx, xlsm, xls)", ext)
	}
	return nil
}
