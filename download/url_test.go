package download

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url     string
		wantErr error
	}{
		{"https://example.com/file.pdf", nil},
		{"http://example.com/a", nil},
		{"data:text/plain;base64,aGk=", nil},
		{"ftp://example.com/a", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"file:///etc/passwd", ErrUnsafeScheme},
		{"http://127.0.0.1/admin", ErrUnsafeTarget},
		{"http://[::1]/admin", ErrUnsafeTarget},
		{"http://10.1.2.3/x", ErrUnsafeTarget},
		{"http://172.16.0.9/x", ErrUnsafeTarget},
		{"http://192.168.1.1/x", ErrUnsafeTarget},
		{"http://169.254.169.254/latest/meta-data", ErrUnsafeTarget},
	}
	for _, c := range cases {
		err := ValidateURL(c.url)
		if c.wantErr == nil && err != nil {
			t.Errorf("ValidateURL(%q): unexpected error %v", c.url, err)
		}
		if c.wantErr != nil && !errors.Is(err, c.wantErr) {
			t.Errorf("ValidateURL(%q): got %v, want %v", c.url, err, c.wantErr)
		}
	}
}

func TestValidateURL_NoHost(t *testing.T) {
	if err := ValidateURL("http:///path-only"); err == nil {
		t.Error("hostless URL should fail")
	}
}

func TestDecodeDataURL(t *testing.T) {
	data, mime, err := DecodeDataURL("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mime != "image/png" || string(data) != "hello" {
		t.Errorf("got (%q, %q)", mime, data)
	}

	data, mime, err = DecodeDataURL("data:,plain%20text")
	if err != nil {
		t.Fatalf("decode plain: %v", err)
	}
	if mime != "text/plain" || string(data) != "plain text" {
		t.Errorf("got (%q, %q)", mime, data)
	}

	if _, _, err := DecodeDataURL("data:image/png;base64,!!!"); err == nil {
		t.Error("bad base64 should fail")
	}
	if _, _, err := DecodeDataURL("https://example.com"); err == nil {
		t.Error("non-data URL should fail")
	}
}

func TestInspect(t *testing.T) {
	mime, pages := inspect([]byte("%PDF-1.4 truncated"), "application/pdf")
	if mime != "application/pdf" {
		t.Errorf("mime: %q", mime)
	}
	if pages != 0 {
		t.Errorf("pages for an unparseable PDF: %d, want 0", pages)
	}

	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)
	mime, _ = inspect(png, "")
	if mime != "image/png" {
		t.Errorf("sniffed mime: %q", mime)
	}

	mime, _ = inspect([]byte("hello"), "text/csv; charset=utf-8")
	if mime != "text/csv" {
		t.Errorf("reported mime: %q", mime)
	}
}

func TestInspect_GenericReportedTypeIsSniffed(t *testing.T) {
	mime, _ := inspect([]byte(`{"a":1}`), "application/octet-stream")
	if !strings.HasPrefix(mime, "text/") && mime != "application/json" {
		t.Errorf("mime: %q", mime)
	}
}
