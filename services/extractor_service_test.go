package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/unidoc/unipdf/v3/extractor"
)

func TestTableToMarkdown(t *testing.T) {
	table := extractor.TextTable{
		W: 2,
		H: 2,
		Cells: [][]extractor.TableCell{
			{{Text: "Model"}, {Text: "BLEU"}},
			{{Text: "base"}, {Text: "27.3"}},
		},
	}

	got := tableToMarkdown(table)
	assert.Equal(t, "|Model|BLEU|\n|---|---|\n|base|27.3|\n", got)
}

func TestTableToMarkdownEscapesCells(t *testing.T) {
	table := extractor.TextTable{
		W: 1,
		H: 2,
		Cells: [][]extractor.TableCell{
			{{Text: "Smith & Jones"}},
			{{Text: "line one\nline two"}},
		},
	}

	got := tableToMarkdown(table)
	assert.Contains(t, got, "Smith &amp; Jones", "entities are escaped for storage")
	assert.Contains(t, got, "line one<br>line two", "line breaks become <br> markers")
	assert.NotContains(t, got, "line one\nline two")
}

func TestTableToMarkdownEmptyTable(t *testing.T) {
	assert.Empty(t, tableToMarkdown(extractor.TextTable{}))
}
