package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/workwise/aikor/model"
)

// DOCXLayout is the page model used to paginate a flow document.
//
// DOCX has no fixed coordinates. Every position produced by DOCXParser is
// an estimate: paragraph height is font size × LineHeight × ceil(chars /
// CharsPerLine) and run width is chars × font size × CharWidth. Rules that
// need exact geometry (margins, bounds, page numbers) should run on a PDF
// rendering of the document.
type DOCXLayout struct {
	PageWidth        float64 `json:"page_width" yaml:"page_width"`
	PageHeight       float64 `json:"page_height" yaml:"page_height"`
	MarginLeft       float64 `json:"margin_left" yaml:"margin_left"`
	MarginTop        float64 `json:"margin_top" yaml:"margin_top"`
	ParagraphSpacing float64 `json:"paragraph_spacing" yaml:"paragraph_spacing"`
	DefaultFontSize  float64 `json:"default_font_size" yaml:"default_font_size"`
	CharsPerLine     int     `json:"chars_per_line" yaml:"chars_per_line"`
	LineHeight       float64 `json:"line_height" yaml:"line_height"`
	CharWidth        float64 `json:"char_width" yaml:"char_width"`

	// UseSectionProperties takes page size and margins from the document's
	// final w:sectPr instead of the values above.
	UseSectionProperties bool `json:"use_section_properties" yaml:"use_section_properties"`
}

// DefaultDOCXLayout is A4 with one-inch margins.
func DefaultDOCXLayout() DOCXLayout {
	return DOCXLayout{
		PageWidth:        595,
		PageHeight:       842,
		MarginLeft:       72,
		MarginTop:        72,
		ParagraphSpacing: 10,
		DefaultFontSize:  12,
		CharsPerLine:     80,
		LineHeight:       1.2,
		CharWidth:        0.5,
	}
}

func (l DOCXLayout) contentWidth() float64 { return l.PageWidth - 2*l.MarginLeft }

// DOCXParser reads word/document.xml directly and simulates pagination.
type DOCXParser struct {
	layout DOCXLayout
}

// NewDOCXParser fills zero fields of l from DefaultDOCXLayout. Margins
// that leave no content width are ignored.
func NewDOCXParser(l DOCXLayout) *DOCXParser {
	d := DefaultDOCXLayout()
	if l == (DOCXLayout{}) {
		return &DOCXParser{layout: d}
	}
	if l.PageWidth > 0 {
		d.PageWidth = l.PageWidth
	}
	if l.PageHeight > 0 {
		d.PageHeight = l.PageHeight
	}
	if l.MarginLeft > 0 && 2*l.MarginLeft < d.PageWidth {
		d.MarginLeft = l.MarginLeft
	}
	if l.MarginTop > 0 && 2*l.MarginTop < d.PageHeight {
		d.MarginTop = l.MarginTop
	}
	if l.ParagraphSpacing > 0 {
		d.ParagraphSpacing = l.ParagraphSpacing
	}
	if l.DefaultFontSize > 0 {
		d.DefaultFontSize = l.DefaultFontSize
	}
	if l.CharsPerLine > 0 {
		d.CharsPerLine = l.CharsPerLine
	}
	if l.LineHeight > 0 {
		d.LineHeight = l.LineHeight
	}
	if l.CharWidth > 0 {
		d.CharWidth = l.CharWidth
	}
	d.UseSectionProperties = l.UseSectionProperties
	return &DOCXParser{layout: d}
}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*model.ParsedDocument, error) {
	src, err := readFile(path, model.TypeDOCX)
	if err != nil {
		return nil, &ParseError{Path: path, Format: "docx", Err: err}
	}
	return p.parse(ctx, src)
}

func (p *DOCXParser) ParseReader(ctx context.Context, r io.Reader, name string) (*model.ParsedDocument, error) {
	src, err := readStream(r, name, model.TypeDOCX)
	if err != nil {
		return nil, &ParseError{Path: name, Format: "docx", Err: err}
	}
	return p.parse(ctx, src)
}

func (p *DOCXParser) parse(ctx context.Context, src *source) (*model.ParsedDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(src.data), int64(len(src.data)))
	if err != nil {
		return nil, &ParseError{Path: src.path, Format: "docx", Err: err}
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var doc docxDocument
	if files["word/document.xml"] == nil {
		return nil, &ParseError{Path: src.path, Format: "docx", Err: errors.New("word/document.xml not found")}
	}
	if !readXMLPart(files, "word/document.xml", &doc) {
		return nil, &ParseError{Path: src.path, Format: "docx", Err: errors.New("word/document.xml is not valid XML")}
	}

	meta := src.meta
	var core docxCoreProps
	if readXMLPart(files, "docProps/core.xml", &core) {
		meta.Title = strings.TrimSpace(core.Title)
		meta.Author = strings.TrimSpace(core.Creator)
		meta.CreationDate = strings.TrimSpace(core.Created)
		meta.ModificationDate = strings.TrimSpace(core.Modified)
	}

	l := p.layout
	if l.UseSectionProperties && doc.Body.Section != nil {
		l = doc.Body.Section.apply(l)
	}

	pg := &paginator{layout: l, styles: readStyles(files), page: 1, y: l.MarginTop}
	for _, item := range doc.Body.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case item.para != nil:
			pg.paragraph(item.para)
		case item.table != nil:
			pg.table(item.table)
		}
	}
	pages := pg.finish()
	meta.TotalPages = len(pages)

	slog.Debug("parser: docx parsed", "file", meta.Filename, "pages", len(pages), "blocks", pg.counter)
	return &model.ParsedDocument{Metadata: meta, Pages: pages}, nil
}

// ---------------------------------------------------------------------------
// Document body
// ---------------------------------------------------------------------------

type docxDocument struct {
	Body docxBody `xml:"body"`
}

type docxBodyItem struct {
	para  *docxPara
	table *docxTable
}

// docxBody keeps paragraphs and tables in document order.
type docxBody struct {
	Items   []docxBodyItem
	Section *docxSectPr
}

func (b *docxBody) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				var p docxPara
				if err := d.DecodeElement(&p, &t); err != nil {
					return err
				}
				b.Items = append(b.Items, docxBodyItem{para: &p})
			case "tbl":
				var tbl docxTable
				if err := d.DecodeElement(&tbl, &t); err != nil {
					return err
				}
				b.Items = append(b.Items, docxBodyItem{table: &tbl})
			case "sectPr":
				var s docxSectPr
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				b.Section = &s
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

type docxParaPr struct {
	Style           *docxVal   `xml:"pStyle"`
	NumPr           *struct{}  `xml:"numPr"`
	PageBreakBefore *docxOnOff `xml:"pageBreakBefore"`
	RunPr           *docxRunPr `xml:"rPr"`
}

type docxPara struct {
	Props *docxParaPr
	Runs  []docxRun
}

func (p *docxPara) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	return collectRuns(d, p)
}

// collectRuns gathers runs in order, descending into hyperlinks, tracked
// insertions and other inline wrappers.
func collectRuns(d *xml.Decoder, p *docxPara) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pPr":
				var pr docxParaPr
				if err := d.DecodeElement(&pr, &t); err != nil {
					return err
				}
				p.Props = &pr
			case "r":
				var r docxRun
				if err := d.DecodeElement(&r, &t); err != nil {
					return err
				}
				p.Runs = append(p.Runs, r)
			case "hyperlink", "ins", "smartTag", "fldSimple", "sdt", "sdtContent", "customXml":
				if err := collectRuns(d, p); err != nil {
					return err
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (p *docxPara) styleID() string {
	if p.Props == nil || p.Props.Style == nil {
		return ""
	}
	return p.Props.Style.Val
}

func (p *docxPara) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// docxRun is a w:r with its text flattened. Tabs become "\t" and line
// breaks "\n". TextBeforeBreak records whether visible text preceded a
// page break inside the run.
type docxRun struct {
	Props           *docxRunPr
	Text            string
	PageBreak       bool
	TextBeforeBreak bool
}

func (r *docxRun) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "rPr":
				var pr docxRunPr
				if err := d.DecodeElement(&pr, &t); err != nil {
					return err
				}
				r.Props = &pr
			case "t":
				var s string
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				b.WriteString(s)
			case "tab":
				b.WriteByte('\t')
				if err := d.Skip(); err != nil {
					return err
				}
			case "br", "cr":
				page := false
				for _, a := range t.Attr {
					if a.Name.Local == "type" && a.Value == "page" {
						page = true
					}
				}
				if page {
					r.PageBreak = true
					r.TextBeforeBreak = strings.TrimSpace(b.String()) != ""
				} else {
					b.WriteByte('\n')
				}
				if err := d.Skip(); err != nil {
					return err
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			r.Text = b.String()
			return nil
		}
	}
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

type docxSectPr struct {
	Size *struct {
		W string `xml:"w,attr"`
		H string `xml:"h,attr"`
	} `xml:"pgSz"`
	Margins *struct {
		Left string `xml:"left,attr"`
		Top  string `xml:"top,attr"`
	} `xml:"pgMar"`
}

// apply copies page size and margins, given in twentieths of a point.
func (s *docxSectPr) apply(l DOCXLayout) DOCXLayout {
	twips := func(v string) float64 {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f / 20
	}
	if s.Size != nil {
		if w := twips(s.Size.W); w > 0 {
			l.PageWidth = w
		}
		if h := twips(s.Size.H); h > 0 {
			l.PageHeight = h
		}
	}
	if s.Margins != nil {
		if m := twips(s.Margins.Left); m > 0 && 2*m < l.PageWidth {
			l.MarginLeft = m
		}
		if m := twips(s.Margins.Top); m > 0 && 2*m < l.PageHeight {
			l.MarginTop = m
		}
	}
	return l
}

// ---------------------------------------------------------------------------
// Pagination
// ---------------------------------------------------------------------------

type paginator struct {
	layout  DOCXLayout
	styles  *styleSheet
	pages   []model.DocumentPage
	blocks  []model.TextBlock
	page    int
	y       float64
	counter int
}

func (pg *paginator) bottom() float64 { return pg.layout.PageHeight - pg.layout.MarginTop }

func (pg *paginator) newPage() {
	pg.pages = append(pg.pages, model.DocumentPage{Info: pg.pageInfo(), Blocks: pg.blocks})
	pg.blocks = nil
	pg.page++
	pg.y = pg.layout.MarginTop
}

func (pg *paginator) pageInfo() model.PageInfo {
	return model.PageInfo{PageNumber: pg.page, Width: pg.layout.PageWidth, Height: pg.layout.PageHeight}
}

func (pg *paginator) finish() []model.DocumentPage {
	if len(pg.blocks) > 0 || len(pg.pages) == 0 {
		pg.pages = append(pg.pages, model.DocumentPage{Info: pg.pageInfo(), Blocks: pg.blocks})
		pg.blocks = nil
	}
	return pg.pages
}

func (pg *paginator) nextID() string {
	pg.counter++
	return fmt.Sprintf("blk_p%d_%d", pg.page, pg.counter)
}

var headingNumber = regexp.MustCompile(`heading\s*([1-6])`)

// paragraphType maps the style name to a block type. Word's built-in names
// are "heading 1".."heading 9" and "Title"; list styles contain "list".
func (pg *paginator) paragraphType(p *docxPara, text string) (model.BlockType, int) {
	name := strings.ToLower(pg.styles.name(p.styleID()))
	if strings.Contains(name, "heading") || strings.Contains(name, "title") {
		if m := headingNumber.FindStringSubmatch(name); m != nil {
			level, _ := strconv.Atoi(m[1])
			return model.BlockHeading, level
		}
		return model.BlockHeading, 1
	}
	if strings.Contains(name, "list") || (p.Props != nil && p.Props.NumPr != nil) || hasBulletPrefix(text) {
		return model.BlockListItem, 0
	}
	return model.BlockParagraph, 0
}

// paragraphSize is the first explicit run size, then the style chain, then
// the layout default.
func (pg *paginator) paragraphSize(p *docxPara) float64 {
	for _, r := range p.Runs {
		if s := r.Props.points(); s > 0 {
			return s
		}
	}
	if s := pg.styles.fontSize(p.styleID()); s > 0 {
		return s
	}
	return pg.layout.DefaultFontSize
}

func (pg *paginator) runStyle(p *docxPara, r docxRun) model.TextStyle {
	pr := r.Props
	var charStyle string
	if pr != nil && pr.Style != nil {
		charStyle = pr.Style.Val
	}
	paraStyle := p.styleID()

	size := pr.points()
	if size <= 0 {
		size = pg.styles.fontSize(charStyle)
	}
	if size <= 0 {
		size = pg.styles.fontSize(paraStyle)
	}
	if size <= 0 {
		size = pg.layout.DefaultFontSize
	}

	font := ""
	if pr != nil {
		font = pr.Fonts.name()
	}
	if font == "" {
		font = pg.styles.fontName(charStyle)
	}
	if font == "" {
		font = pg.styles.fontName(paraStyle)
	}
	if font == "" {
		font = pg.styles.defaultFont()
	}
	if font == "" {
		font = "default"
	}

	var flags int
	if (pr != nil && pr.Bold.on()) || pg.styles.bold(charStyle) || pg.styles.bold(paraStyle) {
		flags |= model.FlagBold
	}
	if (pr != nil && pr.Italic.on()) || pg.styles.italic(charStyle) || pg.styles.italic(paraStyle) {
		flags |= model.FlagItalic
	}
	if pr != nil && pr.Under.on() {
		flags |= model.FlagUnderline
	}
	if pr != nil && pr.Strike.on() {
		flags |= model.FlagStrikethrough
	}

	color := ""
	if pr != nil && pr.Color != nil {
		color = pr.Color.Val
	}
	if color == "" || strings.EqualFold(color, "auto") {
		color = pg.styles.color(charStyle)
	}
	if color == "" || strings.EqualFold(color, "auto") {
		color = pg.styles.color(paraStyle)
	}

	style := model.StyleFromFlags(font, size, 0, flags)
	style.Color = docxColor(color)
	if pr != nil && pr.Shade != nil && pr.Shade.Fill != "" && !strings.EqualFold(pr.Shade.Fill, "auto") {
		if _, _, _, err := model.HexToRGB(pr.Shade.Fill); err == nil {
			style.BackgroundColor = model.NormalizeColor(pr.Shade.Fill)
		}
	}
	return style
}

// docxColor maps "auto" and unparseable values to black.
func docxColor(v string) string {
	if v == "" || strings.EqualFold(v, "auto") {
		return model.DefaultColor
	}
	if _, _, _, err := model.HexToRGB(v); err != nil {
		return model.DefaultColor
	}
	return model.NormalizeColor(v)
}

// styledRun is a run with its resolved style and text.
type styledRun struct {
	text  string
	style model.TextStyle
}

func (pg *paginator) styledRuns(p *docxPara) []styledRun {
	var out []styledRun
	for _, r := range p.Runs {
		text := cleanText(r.Text)
		if text == "" {
			continue
		}
		out = append(out, styledRun{text: text, style: pg.runStyle(p, r)})
	}
	return out
}

func (pg *paginator) paragraph(p *docxPara) {
	breakBefore := p.Props != nil && p.Props.PageBreakBefore.on()
	breakAfter := false
	seenText := false
	for _, r := range p.Runs {
		if r.PageBreak {
			if seenText || r.TextBeforeBreak {
				breakAfter = true
			} else {
				breakBefore = true
			}
		}
		if strings.TrimSpace(r.Text) != "" {
			seenText = true
		}
	}
	if breakBefore && len(pg.blocks) > 0 {
		pg.newPage()
	}

	text := strings.TrimSpace(cleanText(p.text()))
	if text != "" {
		typ, level := pg.paragraphType(p, text)
		pg.place(pg.styledRuns(p), pg.paragraphSize(p), typ, level)
	}

	if breakAfter {
		pg.newPage()
	}
}

// place lays out one paragraph, moving it to a new page when it does not
// fit and splitting it across pages when it is taller than a whole page.
func (pg *paginator) place(runs []styledRun, size float64, typ model.BlockType, level int) {
	l := pg.layout
	lineH := size * l.LineHeight
	for len(runs) > 0 {
		chars := 0
		for _, r := range runs {
			chars += utf8.RuneCountInString(r.text)
		}
		lines := int(math.Ceil(float64(chars) / float64(l.CharsPerLine)))
		if lines < 1 {
			lines = 1
		}
		h := lineH * float64(lines)

		if pg.y+h > pg.bottom() && len(pg.blocks) > 0 {
			pg.newPage()
		}
		if pg.y+h <= pg.bottom() {
			pg.emit(runs, pg.y, h, typ, level)
			return
		}

		fit := int((pg.bottom() - pg.y) / lineH)
		if fit < 1 {
			fit = 1
		}
		head, tail := splitRuns(runs, fit*l.CharsPerLine)
		pg.emit(head, pg.y, lineH*float64(fit), typ, level)
		pg.newPage()
		runs = tail
	}
}

// splitRuns cuts the run sequence after n characters.
func splitRuns(runs []styledRun, n int) (head, tail []styledRun) {
	for i, r := range runs {
		c := utf8.RuneCountInString(r.text)
		if n >= c {
			head = append(head, r)
			n -= c
			continue
		}
		if n > 0 {
			rs := []rune(r.text)
			head = append(head, styledRun{text: string(rs[:n]), style: r.style})
			tail = append(tail, styledRun{text: string(rs[n:]), style: r.style})
		} else {
			tail = append(tail, r)
		}
		tail = append(tail, runs[i+1:]...)
		return head, tail
	}
	return head, nil
}

func (pg *paginator) emit(runs []styledRun, y, h float64, typ model.BlockType, level int) {
	l := pg.layout
	bbox := model.NewBBox(l.MarginLeft, y, l.MarginLeft+l.contentWidth(), y+h)
	line := pg.line(runs, l.MarginLeft, y, y+h)

	b := model.TextBlock{
		ID:           pg.nextID(),
		Type:         typ,
		BBox:         bbox,
		PageNumber:   pg.page,
		ReadingOrder: len(pg.blocks),
	}
	if len(line.Spans) > 0 {
		b.Lines = []model.TextLine{line}
	}
	if typ == model.BlockHeading {
		b.SemanticLevel = level
	}
	pg.blocks = append(pg.blocks, b)
	pg.y = bbox.Y1 + l.ParagraphSpacing
}

// line puts every run on one synthetic line starting at x.
func (pg *paginator) line(runs []styledRun, x, y0, y1 float64) model.TextLine {
	var spans []model.TextSpan
	maxX := x
	for _, r := range runs {
		w := float64(utf8.RuneCountInString(r.text)) * r.style.FontSize * pg.layout.CharWidth
		spans = append(spans, model.TextSpan{
			Text:  r.text,
			Style: r.style,
			BBox:  model.NewBBox(x, y0, x+w, y0+r.style.FontSize*pg.layout.LineHeight),
		})
		x += w
		maxX = x
	}
	if len(spans) == 0 {
		return model.TextLine{}
	}
	return model.TextLine{Spans: spans, BBox: model.NewBBox(spans[0].BBox.X0, y0, maxX, y1)}
}

// table lays each row out as equal-width table_cell blocks. A row is never
// split across pages.
func (pg *paginator) table(t *docxTable) {
	l := pg.layout
	for _, row := range t.Rows {
		if len(row.Cells) == 0 {
			continue
		}
		cellW := l.contentWidth() / float64(len(row.Cells))
		perLine := int(float64(l.CharsPerLine) * cellW / l.contentWidth())
		if perLine < 1 {
			perLine = 1
		}

		type cellLayout struct {
			lines [][]styledRun
			sizes []float64
			h     float64
		}
		cells := make([]cellLayout, len(row.Cells))
		rowH := 0.0
		for i, c := range row.Cells {
			for j := range c.Paras {
				p := &c.Paras[j]
				if strings.TrimSpace(p.text()) == "" {
					continue
				}
				size := pg.paragraphSize(p)
				n := int(math.Ceil(float64(utf8.RuneCountInString(strings.TrimSpace(p.text()))) / float64(perLine)))
				if n < 1 {
					n = 1
				}
				cells[i].lines = append(cells[i].lines, pg.styledRuns(p))
				cells[i].sizes = append(cells[i].sizes, size)
				cells[i].h += size * l.LineHeight * float64(n)
			}
			rowH = math.Max(rowH, cells[i].h)
		}
		if rowH == 0 {
			continue
		}
		if pg.y+rowH > pg.bottom() && len(pg.blocks) > 0 {
			pg.newPage()
		}

		for i, c := range cells {
			if len(c.lines) == 0 {
				continue
			}
			x0 := l.MarginLeft + float64(i)*cellW
			y := pg.y
			var lines []model.TextLine
			for j, runs := range c.lines {
				n := math.Ceil(float64(charCount(runs)) / float64(perLine))
				h := c.sizes[j] * l.LineHeight * math.Max(n, 1)
				if ln := pg.line(runs, x0, y, y+h); len(ln.Spans) > 0 {
					lines = append(lines, ln)
				}
				y += h
			}
			pg.blocks = append(pg.blocks, model.TextBlock{
				ID:           pg.nextID(),
				Type:         model.BlockTableCell,
				Lines:        lines,
				BBox:         model.NewBBox(x0, pg.y, x0+cellW, pg.y+rowH),
				PageNumber:   pg.page,
				ReadingOrder: len(pg.blocks),
			})
		}
		pg.y += rowH
	}
	pg.y += l.ParagraphSpacing
}

func charCount(runs []styledRun) int {
	n := 0
	for _, r := range runs {
		n += utf8.RuneCountInString(r.text)
	}
	return n
}
