package parser

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/workwise/aikor/model"
)

// readInfo fills title, author and dates from the document information
// dictionary. pdfcpu decodes PDFDocEncoding and UTF-16 strings; fields it
// leaves empty, or every field when it rejects the file, come from the raw
// trailer instead.
func readInfo(data []byte, reader *pdf.Reader, meta *model.DocumentMetadata) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err == nil && ctx.XRefTable != nil {
		meta.Title = strings.TrimSpace(ctx.XRefTable.Title)
		meta.Author = strings.TrimSpace(ctx.XRefTable.Author)
		meta.CreationDate = strings.TrimSpace(ctx.XRefTable.CreationDate)
		meta.ModificationDate = strings.TrimSpace(ctx.XRefTable.ModDate)
	} else {
		slog.Debug("parser: pdfcpu could not read info", "file", meta.Filename, "error", err)
	}

	info := reader.Trailer().Key("Info")
	if info.Kind() != pdf.Dict {
		return
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(info.Key(key).Text())
		}
	}
	fill(&meta.Title, "Title")
	fill(&meta.Author, "Author")
	fill(&meta.CreationDate, "CreationDate")
	fill(&meta.ModificationDate, "ModDate")
}
