package parser

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

// OOXML schema fragments. encoding/xml matches on local names, so the w:
// and dc: prefixes need no namespace declarations here.

type docxOnOff struct {
	Val string `xml:"val,attr"`
}

// on follows the ST_OnOff rule: present without a value means true.
func (o *docxOnOff) on() bool {
	if o == nil {
		return false
	}
	switch strings.ToLower(o.Val) {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

type docxVal struct {
	Val string `xml:"val,attr"`
}

type docxFonts struct {
	ASCII string `xml:"ascii,attr"`
	HAnsi string `xml:"hAnsi,attr"`
	CS    string `xml:"cs,attr"`
}

func (f *docxFonts) name() string {
	if f == nil {
		return ""
	}
	for _, n := range []string{f.ASCII, f.HAnsi, f.CS} {
		if n != "" {
			return n
		}
	}
	return ""
}

type docxRunPr struct {
	Style  *docxVal   `xml:"rStyle"`
	Fonts  *docxFonts `xml:"rFonts"`
	Bold   *docxOnOff `xml:"b"`
	Italic *docxOnOff `xml:"i"`
	Under  *docxOnOff `xml:"u"`
	Strike *docxOnOff `xml:"strike"`
	Color  *docxVal   `xml:"color"`
	Size   *docxVal   `xml:"sz"`
	Shade  *docxShade `xml:"shd"`
}

type docxShade struct {
	Fill string `xml:"fill,attr"`
}

// points converts the half-point w:sz value.
func (r *docxRunPr) points() float64 {
	if r == nil || r.Size == nil {
		return 0
	}
	v, err := strconv.ParseFloat(r.Size.Val, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v / 2
}

type docxStyle struct {
	Type    string     `xml:"type,attr"`
	ID      string     `xml:"styleId,attr"`
	Name    docxVal    `xml:"name"`
	BasedOn *docxVal   `xml:"basedOn"`
	RunPr   *docxRunPr `xml:"rPr"`
}

type docxStylesPart struct {
	Defaults struct {
		RunPr struct {
			RunPr *docxRunPr `xml:"rPr"`
		} `xml:"rPrDefault"`
	} `xml:"docDefaults"`
	Styles []docxStyle `xml:"style"`
}

// styleSheet resolves paragraph and character styles by id, following
// basedOn chains for inherited run properties.
type styleSheet struct {
	byID     map[string]docxStyle
	defaults *docxRunPr
}

func (s *styleSheet) name(id string) string {
	if st, ok := s.byID[id]; ok && st.Name.Val != "" {
		return st.Name.Val
	}
	return id
}

// lookup walks the basedOn chain until get returns a non-zero value.
// docDefaults are not consulted; see defaultFont.
func lookup[T comparable](s *styleSheet, id string, get func(*docxRunPr) T) T {
	var zero T
	for depth := 0; id != "" && depth < 16; depth++ {
		st, ok := s.byID[id]
		if !ok {
			break
		}
		if v := get(st.RunPr); v != zero {
			return v
		}
		if st.BasedOn == nil {
			break
		}
		id = st.BasedOn.Val
	}
	return zero
}

// fontSize ignores docDefaults: a paragraph with no explicit size anywhere
// in its style chain takes the layout default instead.
func (s *styleSheet) fontSize(id string) float64 {
	return lookup(s, id, func(r *docxRunPr) float64 { return r.points() })
}

func (s *styleSheet) fontName(id string) string {
	return lookup(s, id, func(r *docxRunPr) string {
		if r == nil {
			return ""
		}
		return r.Fonts.name()
	})
}

// defaultFont is the w:docDefaults run font.
func (s *styleSheet) defaultFont() string {
	if s.defaults == nil {
		return ""
	}
	return s.defaults.Fonts.name()
}

func (s *styleSheet) bold(id string) bool {
	return lookup(s, id, func(r *docxRunPr) bool { return r != nil && r.Bold.on() })
}

func (s *styleSheet) italic(id string) bool {
	return lookup(s, id, func(r *docxRunPr) bool { return r != nil && r.Italic.on() })
}

func (s *styleSheet) color(id string) string {
	return lookup(s, id, func(r *docxRunPr) string {
		if r == nil || r.Color == nil {
			return ""
		}
		return r.Color.Val
	})
}

func readStyles(files map[string]*zip.File) *styleSheet {
	sheet := &styleSheet{byID: make(map[string]docxStyle)}
	var part docxStylesPart
	if !readXMLPart(files, "word/styles.xml", &part) {
		return sheet
	}
	for _, st := range part.Styles {
		sheet.byID[st.ID] = st
	}
	sheet.defaults = part.Defaults.RunPr.RunPr
	return sheet
}

type docxCoreProps struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

func readXMLPart(files map[string]*zip.File, name string, v any) bool {
	f := files[name]
	if f == nil {
		return false
	}
	rc, err := f.Open()
	if err != nil {
		return false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return false
	}
	return xml.Unmarshal(data, v) == nil
}
