package model

import "encoding/json"

// bboxJSON carries the derived width and height for consumers; they are
// ignored on decode.
type bboxJSON struct {
	X0     float64 `json:"x0"`
	Y0     float64 `json:"y0"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(bboxJSON{b.X0, b.Y0, b.X1, b.Y1, b.Width(), b.Height()})
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var v bboxJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = BBox{X0: v.X0, Y0: v.Y0, X1: v.X1, Y1: v.Y1}
	return nil
}

func (l TextLine) MarshalJSON() ([]byte, error) {
	type plain TextLine
	return json.Marshal(struct {
		Text string `json:"text"`
		plain
	}{l.Text(), plain(l)})
}

func (b TextBlock) MarshalJSON() ([]byte, error) {
	type plain TextBlock
	var spacing *float64
	if v, ok := b.AvgLineSpacing(); ok {
		spacing = &v
	}
	return json.Marshal(struct {
		plain
		Text           string   `json:"text"`
		LineCount      int      `json:"line_count"`
		AvgLineSpacing *float64 `json:"avg_line_spacing"`
	}{plain(b), b.Text(), b.LineCount(), spacing})
}

type documentSummary struct {
	TotalBlocks int `json:"total_blocks"`
	TotalPages  int `json:"total_pages"`
}

func (d ParsedDocument) MarshalJSON() ([]byte, error) {
	type plain ParsedDocument
	return json.Marshal(struct {
		plain
		Summary documentSummary `json:"summary"`
	}{plain(d), documentSummary{TotalBlocks: d.TotalBlocks(), TotalPages: len(d.Pages)}})
}
