// internal/services/document_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/healthfirst-backend/internal/config"
	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/models"
)

var certificateCodePattern = regexp.MustCompile(models.CertificateCodePrefix + `\s*(\d+)`)

// DocumentService sniffs, converts, renders and reads certificate documents.
type DocumentService struct {
	ocrLanguage string
	ocrCommand  string
	formTitle   string
	ocrDPI      float64
}

func NewDocumentService(cfg config.CertificateConfig) *DocumentService {
	return &DocumentService{
		ocrLanguage: cfg.OCRLanguage,
		ocrCommand:  "tesseract",
		formTitle:   cfg.FormTitle,
		ocrDPI:      300,
	}
}

func (s *DocumentService) SniffMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// ConvertImageToPDF wraps a JPEG or PNG in a single page sized to the image.
func (s *DocumentService) ConvertImageToPDF(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	imageType := "JPG"
	if format == "png" {
		imageType = "PNG"
	}

	width, height := float64(cfg.Width), float64(cfg.Height)
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	options := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader("certificate", options, bytes.NewReader(data))
	pdf.ImageOptions("certificate", 0, 0, width, height, false, options, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to build PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractEmbeddedCode reads the printed HFCOD code from a PDF's text layer.
func (s *DocumentService) ExtractEmbeddedCode(data []byte) (int64, bool) {
	if baseMIME(s.SniffMIME(data)) != mimePDF {
		return 0, false
	}
	text, err := s.pdfText(data)
	if err != nil {
		return 0, false
	}
	return ParseCertificateCode(text)
}

// ParseCertificateCode finds the first HFCOD<n> marker in text.
func ParseCertificateCode(text string) (int64, bool) {
	match := certificateCodePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	code, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return code, true
}

// IsImageOnlyPDF reports whether a PDF has no extractable text at all.
func (s *DocumentService) IsImageOnlyPDF(data []byte) bool {
	if baseMIME(s.SniffMIME(data)) != mimePDF {
		return false
	}
	text, err := s.pdfText(data)
	return err == nil && strings.TrimSpace(text) == ""
}

// ExtractText returns the readable text of a certificate. Images and
// image-only PDFs go through OCR.
func (s *DocumentService) ExtractText(ctx context.Context, data []byte) (string, error) {
	mime := baseMIME(s.SniffMIME(data))
	switch mime {
	case mimeJPEG, mimePNG:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to decode image: %w", err)
		}
		return s.ocr(ctx, img)
	case mimePDF:
		text, err := s.pdfText(data)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
		return s.ocrPDF(ctx, data)
	}
	return "", fmt.Errorf("unsupported document type %s", mime)
}

// ExtractEncodedText decodes a stored certificate and extracts its text.
func (s *DocumentService) ExtractEncodedText(ctx context.Context, encoded string) (string, error) {
	data, err := DecodeDocument(encoded)
	if err != nil {
		return "", err
	}
	return s.ExtractText(ctx, data)
}

// RenderCodedForm prints the blank medical certificate form carrying code.
func (s *DocumentService) RenderCodedForm(code int64) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(s.formTitle, true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(s.formTitle), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Courier", "B", 14)
	pdf.CellFormat(0, 10, models.FormatCertificateCode(code), "1", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	fields := []string{
		"Nombre del paciente",
		"Documento de identidad",
		"Diagnóstico",
		"Días de reposo",
		"Fecha de inicio",
		"Nombre y firma del médico",
	}
	for _, field := range fields {
		pdf.CellFormat(60, 12, tr(field+":"), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 12, "", "B", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, tr("Este formulario es válido para una única licencia. "+
		"Adjunte el documento completo al solicitar o actualizar la licencia."), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate form: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *DocumentService) pdfText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var text strings.Builder
	for n := 0; n < doc.NumPage(); n++ {
		page, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("page %d: failed to extract text: %w", n+1, err)
		}
		text.WriteString(page)
		text.WriteString("\n")
	}
	return text.String(), nil
}

func (s *DocumentService) ocrPDF(ctx context.Context, data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var text strings.Builder
	var lastErr error
	for n := 0; n < doc.NumPage(); n++ {
		img, err := doc.ImageDPI(n, s.ocrDPI)
		if err != nil {
			lastErr = fmt.Errorf("page %d: failed to rasterize: %w", n+1, err)
			continue
		}
		page, err := s.ocr(ctx, img)
		if err != nil {
			lastErr = fmt.Errorf("page %d: %w", n+1, err)
			logger.FromContext(ctx).WithError(err).WithField("page", n+1).Warn("OCR failed for page")
			continue
		}
		text.WriteString(page)
		text.WriteString("\n")
	}

	result := strings.TrimSpace(text.String())
	if result == "" && lastErr != nil {
		return "", fmt.Errorf("failed to extract text via OCR: %w", lastErr)
	}
	return result, nil
}

func (s *DocumentService) ocr(ctx context.Context, img image.Image) (string, error) {
	tmp, err := os.CreateTemp("", "certificate-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to encode page: %w", err)
	}
	tmp.Close()

	out, err := exec.CommandContext(ctx, s.ocrCommand, tmp.Name(), "stdout", "-l", s.ocrLanguage).Output()
	if err != nil {
		return "", fmt.Errorf("tesseract error: %w", err)
	}

	text := strings.TrimSpace(string(out))
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"chars":    len(text),
		"language": s.ocrLanguage,
	}).Debug("OCR completed")
	return text, nil
}
