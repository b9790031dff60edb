package cmd

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rescrv/brief-measure/internal/server/config"
	"github.com/rescrv/brief-measure/internal/server/httpapi"
	"github.com/rescrv/brief-measure/internal/server/repository/sqlite"
	"github.com/rescrv/brief-measure/internal/server/service"
)

func newBackend(t *testing.T) (*httptest.Server, *service.Services) {
	t.Helper()
	repo, err := sqlite.New("file:"+t.Name()+"?mode=memory&cache=shared", 5*time.Second)
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	svcs := service.NewServices(repo, config.Config{
		ObservationWindow:    24 * time.Hour,
		ObservationWindowCap: 90,
		DefaultLimit:         90,
		MaxLimit:             90,
	})
	ts := httptest.NewServer(httpapi.NewRouter(svcs, nil, 1<<20))
	t.Cleanup(ts.Close)
	return ts, svcs
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test", "today")
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "http://localhost:0", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "briefmeasure test") {
		t.Fatalf("version output: %q", out)
	}
}

func TestSubmitAndList(t *testing.T) {
	ts, svcs := newBackend(t)
	key, err := svcs.Keys.Issue(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("BRIEF_MEASURE_API_KEY", key.Hex())

	out, err := run(t, ts.URL, "submit", "1234123412")
	if err != nil {
		t.Fatalf("submit: %v (%s)", err, out)
	}
	if !strings.Contains(out, `"observation": "1234123412"`) {
		t.Fatalf("submit output: %q", out)
	}

	out, err = run(t, ts.URL, "list", "--limit", "5")
	if err != nil {
		t.Fatalf("list: %v (%s)", err, out)
	}
	if !strings.Contains(out, "1234123412") {
		t.Fatalf("list output: %q", out)
	}
}

func TestSubmitRejectsLocally(t *testing.T) {
	ts, _ := newBackend(t)
	t.Setenv("BRIEF_MEASURE_API_KEY", strings.Repeat("ab", 32))
	if _, err := run(t, ts.URL, "submit", "99999"); err == nil {
		t.Fatal("invalid observation should fail before hitting the server")
	}
}

func TestForgetMeNow(t *testing.T) {
	ts, svcs := newBackend(t)
	key, err := svcs.Keys.Issue(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("BRIEF_MEASURE_API_KEY", key.Hex())

	out, err := run(t, ts.URL, "forget-me-now")
	if err != nil {
		t.Fatalf("forget: %v (%s)", err, out)
	}
	if err := svcs.Keys.Ensure(t.Context(), key); err == nil {
		t.Fatal("key should be revoked")
	}
}
