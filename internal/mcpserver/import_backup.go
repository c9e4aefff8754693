package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notechain/internal/storage"
)

const maxBackupSize = 50 << 20 // 50 MB

var safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func (s *Server) importBackup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	var mediaType string
	if strings.HasPrefix(rawURL, "data:") {
		data, mediaType, err = decodeDataURI(rawURL)
	} else {
		data, mediaType, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxBackupSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxBackupSize)), nil
	}

	filename := backupFilename(req.GetString("filename", ""), rawURL, mediaType)
	if !storage.Importable(filename) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported backup type: %s (allowed: json, yaml, yml, md, markdown)", filepath.Ext(filename))), nil
	}
	if !utf8.Valid(data) {
		return mcp.NewToolResultError("content is not valid UTF-8 text"), nil
	}

	summary, err := s.svc.ImportFile(ctx, filename, data)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(summary), nil
}

// decodeDataURI parses a data:[<mediatype>];base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 data: %w", err)
	}
	return data, mediaType, nil
}

// fetchHTTP downloads a file from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	// One byte past the limit is enough for the caller to reject it.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBackupSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// backupFilename picks the name the backup is imported under: the given name,
// else the last URL path segment, else a UUID with an extension guessed from
// the media type. The result is stripped of directories and unsafe characters.
func backupFilename(given, rawURL, mediaType string) string {
	name := given
	if name == "" && !strings.HasPrefix(rawURL, "data:") {
		if parsed, err := url.Parse(rawURL); err == nil {
			if base := path.Base(parsed.Path); strings.Contains(base, ".") {
				name = base
			}
		}
	}
	if name == "" {
		name = uuid.New().String() + extFor(mediaType)
	}
	name = safeFilenameRe.ReplaceAllString(filepath.Base(name), "_")
	if name == "." || name == ".." {
		name = uuid.New().String() + extFor(mediaType)
	}
	return name
}

// extFor maps a media type to a decoder extension, defaulting to JSON.
func extFor(mediaType string) string {
	switch mt := strings.ToLower(mediaType); {
	case strings.Contains(mt, "yaml"):
		return ".yaml"
	case strings.Contains(mt, "markdown"):
		return ".md"
	}
	return ".json"
}
