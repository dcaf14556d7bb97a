package services

import (
	"bytes"
	"fmt"
	"html"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"

	"github.com/vectoread/server/models"
	"github.com/vectoread/server/zlog"
)

func init() {
	// Load .env file from the current directory
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}
	if err := license.SetMeteredKey(os.Getenv("UNIDOC_LICENSE_KEY")); err != nil {
		fmt.Printf("ERROR: Failed to set Unidoc license key: %v. PDF processing will fail.\n", err)
	}
}

// ContentExtractor parses raw document bytes into text, image, and table
// streams. Pure transform: no side effects beyond reading the input.
type ContentExtractor interface {
	Extract(data []byte) (*models.ExtractedContent, error)
}

// PDFExtractor extracts multimodal content from page-oriented PDF documents
// using UniPDF.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract walks the document in page order, concatenating page text,
// decoding embedded raster images, and serializing detected tables to
// markdown. A corrupt document fails with a DecodeError; a page that fails
// to yield content contributes nothing instead of aborting the extraction.
func (e *PDFExtractor) Extract(data []byte) (*models.ExtractedContent, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	content := &models.ExtractedContent{}
	var sb strings.Builder

	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			zlog.Warn("skipping unreadable page", zap.Int("page", i), zap.Error(err))
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			zlog.Warn("skipping page, extractor failed", zap.Int("page", i), zap.Error(err))
			continue
		}

		pageText, _, _, err := ex.ExtractPageText()
		if err != nil {
			zlog.Warn("page text extraction failed", zap.Int("page", i), zap.Error(err))
		} else {
			sb.WriteString(pageText.Text())
			sb.WriteString("\n\n") // Add space between pages
			for _, table := range pageText.Tables() {
				md := tableToMarkdown(table)
				if md == "" {
					continue
				}
				content.Tables = append(content.Tables, models.PageTable{Markdown: md, Page: i})
			}
		}

		pageImages, err := ex.ExtractPageImages(nil)
		if err != nil {
			zlog.Warn("page image extraction failed", zap.Int("page", i), zap.Error(err))
			continue
		}
		for _, mark := range pageImages.Images {
			goImg, err := mark.Image.ToGoImage()
			if err != nil {
				zlog.Warn("skipping undecodable image", zap.Int("page", i), zap.Error(err))
				continue
			}
			content.Images = append(content.Images, models.PageImage{Image: goImg, Page: i})
		}
	}

	content.Text = sb.String()
	return content, nil
}

// tableToMarkdown serializes an extracted table into a normalized markdown
// table. Cell text is entity-escaped and line breaks become <br> markers;
// the context assembler reverses both at query time.
func tableToMarkdown(table extractor.TextTable) string {
	if table.H == 0 || table.W == 0 {
		return ""
	}
	var sb strings.Builder
	for y, row := range table.Cells {
		sb.WriteString("|")
		for _, cell := range row {
			text := strings.TrimSpace(cell.Text)
			text = html.EscapeString(text)
			text = strings.ReplaceAll(text, "\n", "<br>")
			sb.WriteString(text)
			sb.WriteString("|")
		}
		sb.WriteString("\n")
		if y == 0 {
			sb.WriteString("|")
			sb.WriteString(strings.Repeat("---|", len(row)))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
