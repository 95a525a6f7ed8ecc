package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPublishReport(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotPath = r.URL.Path
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier("TOKEN", "42", srv.URL+"/")
	if err := n.PublishReport(context.Background(), "ingestion sweep done"); err != nil {
		t.Fatalf("PublishReport returned error: %v", err)
	}

	if gotPath != "/botTOKEN/sendMessage" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotChat != "42" || gotText != "ingestion sweep done" {
		t.Fatalf("unexpected form chat=%q text=%q", gotChat, gotText)
	}
}

func TestPublishReportTruncatesLongText(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotText = r.PostForm.Get("text")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	if err := NewNotifier("T", "1", srv.URL).PublishReport(context.Background(), strings.Repeat("报", 5000)); err != nil {
		t.Fatalf("PublishReport returned error: %v", err)
	}
	if n := utf8.RuneCountInString(gotText); n > maxMessageRunes {
		t.Fatalf("text has %d runes, want at most %d", n, maxMessageRunes)
	}
}

func TestPublishReportErrors(t *testing.T) {
	if err := NewNotifier("", "42", "").PublishReport(context.Background(), "x"); err == nil {
		t.Fatal("expected misconfiguration error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	err := NewNotifier("T", "1", srv.URL).PublishReport(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("expected status error with description, got %v", err)
	}

	rejected := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer rejected.Close()

	if err := NewNotifier("T", "1", rejected.URL).PublishReport(context.Background(), "x"); err == nil {
		t.Fatal("expected error for ok=false")
	}
}
