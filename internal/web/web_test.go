package web

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/starford/cardsmith/internal/api"
	"github.com/starford/cardsmith/internal/convert"
	"github.com/starford/cardsmith/internal/page"
	"github.com/starford/cardsmith/internal/rules"
	"github.com/starford/cardsmith/internal/session"
	"github.com/starford/cardsmith/internal/testutil"
	"github.com/starford/cardsmith/internal/vocab"
)

const reply = "```json\n" + `{"name": "Upgrade Test", "actionCardId": "AC-1", "metadata": {"channel": ["App", "Fax"]}, "eligibilityRules": [{"rule": "contract_end_date days_until < 30"}]}` + "\n```"

type browser struct {
	t       *testing.T
	router  http.Handler
	session string
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	fake := &testutil.FakeLLM{Reply: func(int, string) (string, error) { return reply, nil }}
	vs := vocab.StaticStore(vocab.Default())
	conv := convert.New(fake, func() *rules.Schema { return vs.Current().RuleSchema() }, testutil.Logger())
	ctrl := page.New(session.NewMemory(0), conv, vs, nil, testutil.Logger())
	return &browser{t: t, router: NewRouter(ctrl, testutil.Logger(), api.RouterConfig{CookieName: "sid"})}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	if b.session != "" {
		req.Header.Set(api.SessionHeader, b.session)
	}
	w := httptest.NewRecorder()
	b.router.ServeHTTP(w, req)
	b.session = w.Header().Get(api.SessionHeader)
	return w
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) upload(filename string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", filename)
	_, _ = fw.Write(data)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(req)
}

func TestIndexEmpty(t *testing.T) {
	b := newBrowser(t)
	w := b.get("/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `action="/upload"`) {
		t.Error("upload form missing")
	}
	if strings.Contains(body, `action="/convert"`) {
		t.Error("convert button shown before upload")
	}
}

func TestUploadConvertEdit(t *testing.T) {
	b := newBrowser(t)

	data := testutil.XLSX(t, []any{"Action Name", "Channel"}, []any{"Upgrade", "App"})
	if w := b.upload("cards.xlsx", data); w.Code != http.StatusSeeOther {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	body := b.get("/").Body.String()
	if !strings.Contains(body, "<td>Upgrade</td>") || !strings.Contains(body, `action="/convert"`) {
		t.Fatalf("preview missing:\n%s", body)
	}

	if w := b.post("/convert", nil); w.Code != http.StatusSeeOther {
		t.Fatalf("convert status = %d, body = %s", w.Code, w.Body.String())
	}
	body = b.get("/").Body.String()
	for _, want := range []string{
		"Upgrade Test",
		`name="root_0.qual"`,
		`value="root_add_rule"`,
		"Ignored invalid channels: Fax",
		`href="/cards/0/download"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	w := b.post("/cards/0", url.Values{"name": {"Edited"}, "action": {"root_add_group"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("save status = %d, body = %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/?card=0" {
		t.Errorf("Location = %q, want /?card=0", loc)
	}
	body = b.get("/?card=0").Body.String()
	if !strings.Contains(body, `value="Edited"`) {
		t.Error("edited name not rendered")
	}
	if !strings.Contains(body, "AND Group 2") {
		t.Error("added group not rendered")
	}

	w = b.get("/cards/0/download")
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "AC-1.json") {
		t.Errorf("Content-Disposition = %q", got)
	}
}

func TestConvertWithoutUpload(t *testing.T) {
	b := newBrowser(t)
	w := b.post("/convert", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Upload a spreadsheet first.") {
		t.Error("error message missing")
	}
}

func TestUploadRejectsCorruptFile(t *testing.T) {
	b := newBrowser(t)
	if w := b.upload("broken.xlsx", []byte("nope")); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
