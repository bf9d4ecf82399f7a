package net

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
)

const maxDumpBytes = 4096

// PrintHTTPResponse logs the response headers and the start of its body at
// debug level.
func PrintHTTPResponse(resp *http.Response) {
	if resp == nil || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if respDump, err := httputil.DumpResponse(resp, true); err == nil {
		if len(respDump) > maxDumpBytes {
			respDump = respDump[:maxDumpBytes]
		}
		slog.Debug("http response", "dump", string(respDump))
	}
}
