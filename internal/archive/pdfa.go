package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/signintech/gopdf"
	_ "golang.org/x/image/webp" // webp decoding for image.Decode

	_ "image/gif"  // gif decoding
	_ "image/jpeg" // jpeg decoding
	_ "image/png"  // png decoding

	"github.com/dvloznov/hsa-archiver/internal/mail"
)

// ConversionError reports a failed Ghostscript run.
type ConversionError struct {
	ExitCode int
	Stderr   string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("archive: ghostscript failed (exit %d): %s", e.ExitCode, e.Stderr)
}

// imageDPI is the resolution assumed when sizing image pages.
const imageDPI = 300.0

// Converter turns receipt images and PDFs into PDF/A-2b via Ghostscript.
// Images first get wrapped into a plain single-page PDF, then Ghostscript
// produces the archival PDF; PDFs go straight through Ghostscript.
type Converter struct {
	gsBinary string
}

// NewConverter creates a converter using the given Ghostscript binary,
// defaulting to "gs" on PATH.
func NewConverter(gsBinary string) *Converter {
	if gsBinary == "" {
		gsBinary = "gs"
	}
	return &Converter{gsBinary: gsBinary}
}

// ToPDFA converts the attachment bytes to PDF/A-2b. Deterministic for a
// fixed input. The result is an opaque blob to callers.
func (c *Converter) ToPDFA(ctx context.Context, data []byte, contentType mail.ContentType) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "pdfa-*")
	if err != nil {
		return nil, fmt.Errorf("ToPDFA: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	input := data
	if contentType.Image() {
		input, err = wrapImagePDF(data)
		if err != nil {
			return nil, fmt.Errorf("ToPDFA: wrapping %s: %w", contentType, err)
		}
	}

	inputPDF := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(inputPDF, input, 0o600); err != nil {
		return nil, fmt.Errorf("ToPDFA: writing input: %w", err)
	}
	outputPDF := filepath.Join(tmpDir, "output.pdf")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.gsBinary,
		"-dPDFA=2",
		"-dBATCH",
		"-dNOPAUSE",
		"-sColorConversionStrategy=UseDeviceIndependentColor",
		"-sDEVICE=pdfwrite",
		"-sOutputFile="+outputPDF,
		inputPDF,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ConversionError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("ToPDFA: running %s: %w", c.gsBinary, err)
	}

	out, err := os.ReadFile(outputPDF)
	if err != nil {
		return nil, fmt.Errorf("ToPDFA: reading output: %w", err)
	}
	return out, nil
}

// wrapImagePDF embeds a decoded image into a single-page PDF sized to
// the image at imageDPI.
func wrapImagePDF(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	// gopdf embeds jpeg and png directly; gif and webp get re-encoded.
	embed := data
	if format != "jpeg" && format != "png" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("re-encoding %s as png: %w", format, err)
		}
		embed = buf.Bytes()
	}

	bounds := img.Bounds()
	w := float64(bounds.Dx()) * 72.0 / imageDPI
	h := float64(bounds.Dy()) * 72.0 / imageDPI

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: gopdf.Rect{W: w, H: h}})
	pdf.AddPage()

	holder, err := gopdf.ImageHolderByBytes(embed)
	if err != nil {
		return nil, fmt.Errorf("loading image into pdf: %w", err)
	}
	if err := pdf.ImageByHolder(holder, 0, 0, &gopdf.Rect{W: w, H: h}); err != nil {
		return nil, fmt.Errorf("placing image: %w", err)
	}

	return pdf.GetBytesPdf(), nil
}
