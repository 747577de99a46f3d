package archive

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

func TestWrapImagePDF(t *testing.T) {
	out, err := wrapImagePDF(testPNG(t, 300, 600))
	if err != nil {
		t.Fatalf("wrapImagePDF failed: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Errorf("output does not look like a PDF: %q", out[:min(16, len(out))])
	}
}

func TestWrapImagePDFRejectsGarbage(t *testing.T) {
	if _, err := wrapImagePDF([]byte("not an image")); err == nil {
		t.Error("expected error for undecodable input")
	}
}

func TestConversionErrorMessage(t *testing.T) {
	err := &ConversionError{ExitCode: 1, Stderr: "GPL Ghostscript: unrecoverable error"}
	if !strings.Contains(err.Error(), "exit 1") {
		t.Errorf("message = %q", err.Error())
	}
	if !strings.Contains(err.Error(), "unrecoverable") {
		t.Errorf("message missing stderr: %q", err.Error())
	}
}
