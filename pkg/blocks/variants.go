package blocks

import (
	"time"
)

// Payload is the variant-specific body of a block. It is implemented only by
// the payload types in this package.
type Payload interface {
	BlockKind() Kind
}

// TextPayload is a paragraph of (optionally inline-HTML) text.
type TextPayload struct {
	Body string `json:"body" validate:"required"`
}

// GalleryImage is one image inside an Images block.
type GalleryImage struct {
	FileID  string `json:"file_id" validate:"required"`
	Alt     string `json:"alt" validate:"required"`
	Caption string `json:"caption,omitempty"`
	Order   int    `json:"order"`
}

// ImagesPayload is an ordered image gallery.
type ImagesPayload struct {
	Layout string         `json:"layout,omitempty" validate:"omitempty,oneof=grid carousel single"`
	Images []GalleryImage `json:"images" validate:"required,min=1,dive"`
}

// VideoPayload references an uploaded file or an external URL.
type VideoPayload struct {
	FileID          string `json:"file_id,omitempty"`
	URL             string `json:"url,omitempty" validate:"omitempty,url"`
	PosterFileID    string `json:"poster_file_id,omitempty"`
	Caption         string `json:"caption,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty" validate:"min=0"`
}

type QuotePayload struct {
	Text        string `json:"text" validate:"required"`
	Attribution string `json:"attribution,omitempty"`
	SourceURL   string `json:"source_url,omitempty" validate:"omitempty,url"`
}

type CalloutPayload struct {
	Tone  string `json:"tone,omitempty" validate:"omitempty,oneof=info warning success danger"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text" validate:"required"`
	Icon  string `json:"icon,omitempty"`
}

type CodePayload struct {
	Code            string `json:"code" validate:"required"`
	Language        string `json:"language,omitempty"`
	Filename        string `json:"filename,omitempty"`
	ShowLineNumbers bool   `json:"show_line_numbers,omitempty"`
}

// TablePayload renders an uploaded data file as a table.
type TablePayload struct {
	FileID       string   `json:"file_id" validate:"required"`
	Caption      string   `json:"caption,omitempty"`
	HasHeaderRow bool     `json:"has_header_row,omitempty"`
	Striped      bool     `json:"striped,omitempty"`
	MaxRows      int      `json:"max_rows,omitempty" validate:"min=0"`
	Columns      []string `json:"columns,omitempty"`
}

type TwitterPayload struct {
	TweetID      string   `json:"tweet_id" validate:"required"`
	URL          string   `json:"url,omitempty" validate:"omitempty,url"`
	AuthorHandle string   `json:"author_handle,omitempty"`
	Text         string   `json:"text,omitempty"`
	FileIDs      []string `json:"file_ids,omitempty" validate:"omitempty,dive,required"`
}

type InstagramPayload struct {
	PostURL   string     `json:"post_url" validate:"required,url"`
	Shortcode string     `json:"shortcode,omitempty"`
	Username  string     `json:"username,omitempty"`
	Caption   string     `json:"caption,omitempty"`
	MediaType string     `json:"media_type,omitempty" validate:"omitempty,oneof=image video carousel"`
	FileIDs   []string   `json:"file_ids,omitempty" validate:"omitempty,dive,required"`
	TakenAt   *time.Time `json:"taken_at,omitempty"`
}

// ChartSeries is one named data series of a chart.
type ChartSeries struct {
	Name   string    `json:"name" validate:"required"`
	Values []float64 `json:"values" validate:"required,min=1"`
	Labels []string  `json:"labels,omitempty"`
}

// ChartPayload is drawn either from inline series or from an uploaded data file.
type ChartPayload struct {
	ChartType  string        `json:"chart_type" validate:"required,oneof=bar line pie area scatter"`
	Title      string        `json:"title,omitempty"`
	FileID     string        `json:"file_id,omitempty"`
	Series     []ChartSeries `json:"series,omitempty" validate:"omitempty,dive"`
	XAxisLabel string        `json:"x_axis_label,omitempty"`
	YAxisLabel string        `json:"y_axis_label,omitempty"`
}

type PollOption struct {
	Text  string `json:"text" validate:"required"`
	Order int    `json:"order"`
}

type PollingPayload struct {
	Question      string       `json:"question" validate:"required"`
	Options       []PollOption `json:"options" validate:"required,min=2,dive"`
	AllowMultiple bool         `json:"allow_multiple,omitempty"`
	ClosesAt      *time.Time   `json:"closes_at,omitempty"`
}

type HeadingPayload struct {
	Text  string `json:"text" validate:"required"`
	Level int    `json:"level" validate:"min=1,max=6"`
}

type ListItem struct {
	Text    string `json:"text" validate:"required"`
	Checked bool   `json:"checked,omitempty"`
	Order   int    `json:"order"`
}

type ListPayload struct {
	Style string     `json:"style,omitempty" validate:"omitempty,oneof=bullet numbered checklist"`
	Items []ListItem `json:"items" validate:"required,min=1,dive"`
}

func (*TextPayload) BlockKind() Kind      { return KindText }
func (*ImagesPayload) BlockKind() Kind    { return KindImages }
func (*VideoPayload) BlockKind() Kind     { return KindVideo }
func (*QuotePayload) BlockKind() Kind     { return KindQuote }
func (*CalloutPayload) BlockKind() Kind   { return KindCallout }
func (*CodePayload) BlockKind() Kind      { return KindCode }
func (*TablePayload) BlockKind() Kind     { return KindTable }
func (*TwitterPayload) BlockKind() Kind   { return KindTwitter }
func (*InstagramPayload) BlockKind() Kind { return KindInstagram }
func (*ChartPayload) BlockKind() Kind     { return KindChart }
func (*PollingPayload) BlockKind() Kind   { return KindPolling }
func (*HeadingPayload) BlockKind() Kind   { return KindHeading }
func (*ListPayload) BlockKind() Kind      { return KindList }

// defaultHandlers wires one handler per kind. Adding a kind means adding a
// payload type above and one entry here.
func defaultHandlers() []VariantHandler {
	return []VariantHandler{
		&variant[TextPayload, *TextPayload]{
			kind: KindText,
			text: func(p *TextPayload) []string { return []string{p.Body} },
		},
		&variant[ImagesPayload, *ImagesPayload]{
			kind: KindImages,
			normalize: func(p *ImagesPayload) {
				renumber(p.Images, func(img *GalleryImage) *int { return &img.Order })
			},
			text: func(p *ImagesPayload) []string {
				parts := make([]string, 0, len(p.Images))
				for _, img := range p.Images {
					parts = append(parts, img.Caption)
				}
				return parts
			},
			assets: func(p *ImagesPayload) int { return len(p.Images) },
			files: func(p *ImagesPayload) []string {
				ids := make([]string, 0, len(p.Images))
				for _, img := range p.Images {
					ids = append(ids, img.FileID)
				}
				return ids
			},
		},
		&variant[VideoPayload, *VideoPayload]{
			kind: KindVideo,
			check: func(p *VideoPayload) error {
				if p.FileID == "" && p.URL == "" {
					return invalid(KindVideo, "file_id", "either file_id or url is required")
				}
				return nil
			},
			assets: func(*VideoPayload) int { return 1 },
			files:  func(p *VideoPayload) []string { return nonEmpty(p.FileID, p.PosterFileID) },
		},
		&variant[QuotePayload, *QuotePayload]{
			kind: KindQuote,
			text: func(p *QuotePayload) []string { return []string{p.Text, p.Attribution} },
		},
		&variant[CalloutPayload, *CalloutPayload]{
			kind: KindCallout,
			normalize: func(p *CalloutPayload) {
				if p.Tone == "" {
					p.Tone = "info"
				}
			},
			text: func(p *CalloutPayload) []string { return []string{p.Title, p.Text} },
		},
		&variant[CodePayload, *CodePayload]{
			kind: KindCode,
		},
		&variant[TablePayload, *TablePayload]{
			kind:  KindTable,
			text:  func(p *TablePayload) []string { return []string{p.Caption} },
			files: func(p *TablePayload) []string { return nonEmpty(p.FileID) },
		},
		&variant[TwitterPayload, *TwitterPayload]{
			kind:   KindTwitter,
			assets: func(*TwitterPayload) int { return 1 },
			files:  func(p *TwitterPayload) []string { return nonEmpty(p.FileIDs...) },
		},
		&variant[InstagramPayload, *InstagramPayload]{
			kind:   KindInstagram,
			assets: func(*InstagramPayload) int { return 1 },
			files:  func(p *InstagramPayload) []string { return nonEmpty(p.FileIDs...) },
		},
		&variant[ChartPayload, *ChartPayload]{
			kind: KindChart,
			check: func(p *ChartPayload) error {
				if p.FileID == "" && len(p.Series) == 0 {
					return invalid(KindChart, "series", "series or file_id is required")
				}
				return nil
			},
			text:  func(p *ChartPayload) []string { return []string{p.Title} },
			files: func(p *ChartPayload) []string { return nonEmpty(p.FileID) },
		},
		&variant[PollingPayload, *PollingPayload]{
			kind: KindPolling,
			normalize: func(p *PollingPayload) {
				renumber(p.Options, func(o *PollOption) *int { return &o.Order })
			},
			text: func(p *PollingPayload) []string {
				parts := []string{p.Question}
				for _, o := range p.Options {
					parts = append(parts, o.Text)
				}
				return parts
			},
		},
		&variant[HeadingPayload, *HeadingPayload]{
			kind: KindHeading,
			text: func(p *HeadingPayload) []string { return []string{p.Text} },
		},
		&variant[ListPayload, *ListPayload]{
			kind: KindList,
			normalize: func(p *ListPayload) {
				if p.Style == "" {
					p.Style = "bullet"
				}
				renumber(p.Items, func(it *ListItem) *int { return &it.Order })
			},
			text: func(p *ListPayload) []string {
				parts := make([]string, 0, len(p.Items))
				for _, it := range p.Items {
					parts = append(parts, it.Text)
				}
				return parts
			},
		},
	}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
