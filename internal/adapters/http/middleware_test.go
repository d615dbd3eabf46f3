package httpadapter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAccessLogRecordsStatusBytesAndContextHeaders(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(previous)

	handler := requestIDMiddleware(accessLogMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContextSource, "retrieval")
		w.Header().Set(headerRetrievalCount, "0")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/v1/context", nil)
	req.Header.Set(requestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("access log is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "http_request" || record["level"] != "WARN" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record["status"] != float64(http.StatusNotFound) || record["bytes"] != float64(len("missing")) {
		t.Fatalf("expected status and bytes recorded, got %v", record)
	}
	if record["request_id"] != "req-42" || record["context_source"] != "retrieval" || record["retrieval_count"] != "0" {
		t.Fatalf("expected request id and context headers, got %v", record)
	}
}
