package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nativefetch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestRun_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello %s", r.Header.Get("User-Agent"))
	}))
	defer ts.Close()

	cfg := writeConfig(t, "user_agent: nativefetch-test\nlog:\n  level: error\n")

	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(fmt.Sprintf(`{"url":%q,"options":{"disableAllSecurity":true}}`, ts.URL))

	if err := run(t.Context(), []string{"-config", cfg, "fetch"}, stdin, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v (stderr: %s)", err, stderr.String())
	}

	doc := gjson.Parse(stdout.String())
	if got := doc.Get("status").Int(); got != http.StatusOK {
		t.Errorf("exp status 200, got %d", got)
	}
	if got := doc.Get("bodyString").String(); got != "hello nativefetch-test" {
		t.Errorf("exp body, got %q", got)
	}
}

func TestRun_FailuresAreJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	testCases := []struct {
		name    string
		call    string
		expCode string
	}{
		{name: "status", call: fmt.Sprintf(`{"url":%q,"options":{"disableAllSecurity":true}}`, ts.URL), expCode: "REQUEST_FAILED"},
		{name: "no trust", call: fmt.Sprintf(`{"url":%q}`, ts.URL), expCode: "CONFIG_ERROR"},
		{name: "bad json", call: `{`, expCode: "INVALID_OPTIONS"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout bytes.Buffer

			err := run(t.Context(), []string{"fetch"}, strings.NewReader(tc.call), &stdout, io.Discard)
			if !errors.Is(err, errCallFailed) {
				t.Fatalf("exp errCallFailed, got %v", err)
			}

			if got := gjson.Get(stdout.String(), "error.code").String(); got != tc.expCode {
				t.Errorf("exp code %s, got %s in %s", tc.expCode, got, stdout.String())
			}
		})
	}
}

func TestRun_PersistedCookies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
	}))
	defer ts.Close()

	dir := t.TempDir()
	cfg := writeConfig(t, fmt.Sprintf("cookie_db: %s\nlog:\n  file: %s\n",
		filepath.Join(dir, "cookies.db"), filepath.Join(dir, "nativefetch.log")))

	call := fmt.Sprintf(`{"url":%q,"options":{"disableAllSecurity":true}}`, ts.URL)
	if err := run(t.Context(), []string{"-config", cfg, "fetch"}, strings.NewReader(call), io.Discard, io.Discard); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	var stdout bytes.Buffer
	if err := run(t.Context(), []string{"-config", cfg, "cookies"}, strings.NewReader(`{"domain":"127.0.0.1"}`), &stdout, io.Discard); err != nil {
		t.Fatalf("cookies: %v", err)
	}

	if got := gjson.Get(stdout.String(), "session").String(); got != "abc" {
		t.Errorf("exp persisted session cookie, got %s", stdout.String())
	}

	if _, err := os.Stat(filepath.Join(dir, "nativefetch.log")); err != nil {
		t.Errorf("exp log file: %v", err)
	}
}

func TestRun_Session(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer ts.Close()

	calls := strings.Join([]string{
		fmt.Sprintf(`{"id":1,"call":"fetch","args":{"url":%q,"options":{"disableAllSecurity":true}}}`, ts.URL),
		`{"id":"two","call":"cookies","args":{"domain":"example.com"}}`,
		``,
		`{"id":3,"call":"nope"}`,
		`{"id":4,"call":"logging","args":{"enableLogging":false}}`,
	}, "\n")

	var stdout bytes.Buffer
	if err := run(t.Context(), []string{"session"}, strings.NewReader(calls), &stdout, io.Discard); err != nil {
		t.Fatalf("session: %v", err)
	}

	answers := map[string]gjson.Result{}
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		doc := gjson.Parse(line)
		answers[doc.Get("id").String()] = doc
	}

	if len(answers) != 4 {
		t.Fatalf("exp 4 answers, got %d: %s", len(answers), stdout.String())
	}
	if got := answers["1"].Get("bodyString").String(); got != "ok" {
		t.Errorf("exp fetch answer, got %s", answers["1"].Raw)
	}
	if !answers["two"].IsObject() || answers["two"].Get("error").Exists() {
		t.Errorf("exp cookies answer, got %s", answers["two"].Raw)
	}
	if got := answers["3"].Get("error.code").String(); got != "INVALID_OPTIONS" {
		t.Errorf("exp unknown command to be rejected, got %s", answers["3"].Raw)
	}
	if answers["4"].Get("error").Exists() {
		t.Errorf("exp logging toggle to succeed, got %s", answers["4"].Raw)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App != "nativefetch" || cfg.Log.Level != "info" {
		t.Errorf("exp defaults, got %+v", cfg)
	}

	testCases := []struct {
		name string
		yaml string
	}{
		{name: "bad throttle", yaml: "throttle:\n  rps: 0\n  burst: 1\n"},
		{name: "bad level", yaml: "log:\n  level: loud\n"},
		{name: "negative concurrency", yaml: "max_concurrent: -1\n"},
		{name: "not yaml", yaml: "app: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.yaml)); err == nil {
				t.Error("exp error")
			}
		})
	}

	docs := filepath.Join(t.TempDir(), "docs")
	path := writeConfig(t, fmt.Sprintf("directories:\n  documents: %s\nthrottle:\n  rps: 5\n  burst: 2\n", docs))
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	dir, err := cfg.resolver().Resolve("DOCUMENTS")
	if err != nil {
		t.Fatal(err)
	}
	if dir != docs {
		t.Errorf("exp override %s, got %s", docs, dir)
	}
	if cfg.Throttle == nil || cfg.Throttle.RPS != 5 || cfg.Throttle.Burst != 2 {
		t.Errorf("exp throttle, got %+v", cfg.Throttle)
	}
}
