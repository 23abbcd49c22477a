package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	watermark "github.com/gcslaoli/provenance-watermark-go"
	"github.com/gcslaoli/provenance-watermark-go/internal/batch"
)

type upload struct {
	name        string
	contentType string
	data        []byte
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(i), uint8(i/3), 90, 255
	}
	img.Set(0, 0, color.RGBA{1, 2, 3, 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newRequest(t *testing.T, fields map[string]string, uploads ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, u.name))
		h.Set("Content-Type", u.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(u.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/watermark", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestServer(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := batch.NewProcessor(watermark.NewEngine(), batch.WithClock(func() time.Time { return fixed }))

	srv, err := New(p, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv.Handler()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestWatermarkSingleImage(t *testing.T) {
	h := newTestServer(t)
	req := newRequest(t,
		map[string]string{"creator_name": "Alice", "watermark_type": "invisible"},
		upload{"cat.png", "image/png", pngBytes(t, 100, 100)},
	)

	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=cat_ai_protected.png" {
		t.Fatalf("disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("X-Content-Digest"), "blake3=") {
		t.Fatalf("missing digest header")
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing request id")
	}

	img, format, err := watermark.DecodeImageBytes(rec.Body.Bytes())
	if err != nil || format != "png" || img.Bounds().Dx() != 100 || img.Bounds().Dy() != 100 {
		t.Fatalf("decode response: %v %s", err, format)
	}
}

func TestWatermarkBatchArchive(t *testing.T) {
	h := newTestServer(t)
	data := pngBytes(t, 80, 60)
	req := newRequest(t,
		map[string]string{"creator_name": "Alice", "watermark_type": "both", "visible_opacity": "0.5", "ai_consent": "conditional"},
		upload{"a.png", "image/png", data},
		upload{"b.png", "image/png", data},
		upload{"c.png", "image/png", data},
	)

	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename="+batch.ArchiveName {
		t.Fatalf("disposition = %q", got)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("archive has %d entries, want 3", len(zr.File))
	}
	for i, f := range zr.File {
		if want := fmt.Sprintf("%c_ai_protected.png", 'a'+i); f.Name != want {
			t.Fatalf("entry %d = %q, want %q", i, f.Name, want)
		}
	}
}

func TestWatermarkRejections(t *testing.T) {
	data := pngBytes(t, 16, 16)
	six := make([]upload, 6)
	for i := range six {
		six[i] = upload{fmt.Sprintf("%d.png", i), "image/png", data}
	}

	cases := []struct {
		name    string
		fields  map[string]string
		uploads []upload
		want    string
	}{
		{
			name:    "too_many",
			fields:  map[string]string{"creator_name": "Alice"},
			uploads: six,
			want:    "Max 5 images allowed per batch.",
		},
		{
			name:    "missing_creator",
			fields:  map[string]string{"creator_name": "  "},
			uploads: six[:1],
			want:    "Creator name is required.",
		},
		{
			name:    "bad_consent",
			fields:  map[string]string{"creator_name": "Alice", "ai_consent": "maybe"},
			uploads: six[:1],
			want:    "AI consent must be 'granted', 'denied', or 'conditional'.",
		},
		{
			name:    "bad_opacity",
			fields:  map[string]string{"creator_name": "Alice", "visible_opacity": "lots"},
			uploads: six[:1],
			want:    "Visible opacity must be a number.",
		},
		{
			name:    "unsupported_type",
			fields:  map[string]string{"creator_name": "Alice"},
			uploads: []upload{{"notes.txt", "text/plain", []byte("hi")}},
			want:    "Unsupported file type: text/plain",
		},
		{
			name:    "undecodable",
			fields:  map[string]string{"creator_name": "Alice"},
			uploads: []upload{{"fake.png", "image/png", []byte("not a png")}},
			want:    "Invalid image: fake.png.",
		},
	}

	h := newTestServer(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, newRequest(t, tc.fields, tc.uploads...))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			if got := detail(t, rec); !strings.HasPrefix(got, tc.want) {
				t.Fatalf("detail = %q, want prefix %q", got, tc.want)
			}
		})
	}
}

func TestWatermarkRateLimited(t *testing.T) {
	h := newTestServer(t, WithRateLimit(0.001, 1))

	first := serve(h, newRequest(t, map[string]string{"creator_name": ""}))
	if first.Code != http.StatusBadRequest {
		t.Fatalf("first status = %d", first.Code)
	}
	second := serve(h, newRequest(t, map[string]string{"creator_name": ""}))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
}

func TestRootHealthAndMetrics(t *testing.T) {
	h := newTestServer(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	var banner map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &banner); err != nil || banner["message"] != bannerMessage {
		t.Fatalf("banner = %q (%v)", rec.Body.String(), err)
	}

	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	serve(h, newRequest(t, map[string]string{"creator_name": ""}, upload{"a.png", "image/png", pngBytes(t, 8, 8)}))
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`aiprotect_requests_total{code="400"} 1`,
		`aiprotect_requests_rejected_total{reason="missing_creator"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t)
	rec := serve(h, httptest.NewRequest(http.MethodOptions, "/watermark", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func newLimitedServer(t *testing.T, limits batch.Limits) http.Handler {
	t.Helper()
	srv, err := New(batch.NewProcessor(watermark.NewEngine(), batch.WithLimits(limits)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv.Handler()
}

func TestWatermarkStreamingLimits(t *testing.T) {
	const mib = 1 << 20
	limits := batch.Limits{MaxImages: 5, MaxFileBytes: mib}

	nearCap := bytes.Repeat([]byte{0x42}, 950<<10)
	eight := make([]upload, 8)
	for i := range eight {
		eight[i] = upload{fmt.Sprintf("%d.png", i), "image/png", nearCap}
	}

	cases := []struct {
		name    string
		limits  batch.Limits
		uploads []upload
		want    string
	}{
		{
			name:    "count_before_body_ceiling",
			limits:  limits,
			uploads: eight,
			want:    "Max 5 images allowed per batch.",
		},
		{
			name:    "oversized_file_drained",
			limits:  batch.Limits{MaxImages: 1, MaxFileBytes: 1 << 10},
			uploads: []upload{{"big.png", "image/png", make([]byte, 10<<10)}},
			want:    "File too large: big.png",
		},
		{
			name:    "oversized_file_past_ceiling",
			limits:  batch.Limits{MaxImages: 1, MaxFileBytes: 1 << 10},
			uploads: []upload{{"big.png", "image/png", make([]byte, 2*mib)}},
			want:    "File too large: big.png",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newLimitedServer(t, tc.limits)
			rec := serve(h, newRequest(t, map[string]string{"creator_name": "Alice"}, tc.uploads...))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			if got := detail(t, rec); got != tc.want {
				t.Fatalf("detail = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWatermarkNotMultipart(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/watermark", strings.NewReader(`{"creator_name":"Alice"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(h, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := detail(t, rec); !strings.HasPrefix(got, "Invalid form data:") {
		t.Fatalf("detail = %q", got)
	}
}
