package models

// Requests for the chart HTTP endpoints. Path ids bind from `param`, bodies
// from `json`, GET options from `query`.

type ChartIDRequest struct {
	ID string `param:"id" json:"-" validate:"required,uuid"`
}

type OpenChartRequest struct {
	Symbol    string `json:"symbol" validate:"required,max=16"`
	Range     string `json:"range" default:"1m" validate:"oneof=1d 1w 1m 3m 6m 1y"`
	Minutes   int    `json:"minutes" validate:"oneof=0 1 5 15 30"`
	ChartType string `json:"chart_type" default:"candle" validate:"oneof=candle line area"`
	Theme     string `json:"theme" default:"light" validate:"oneof=light dark"`
	Width     int    `json:"width" validate:"gte=0,lte=8192"`
	Height    int    `json:"height" validate:"gte=0,lte=8192"`
}

// Granularity returns the requested bucketing rule.
func (r OpenChartRequest) Granularity() Granularity {
	return Granularity{Range: Range(r.Range), Minutes: r.Minutes}
}

type ResizeRequest struct {
	ID     string `param:"id" json:"-" validate:"required,uuid"`
	Width  int    `json:"width" validate:"gt=0,lte=8192"`
	Height int    `json:"height" validate:"gt=0,lte=8192"`
}

type GranularityRequest struct {
	ID      string `param:"id" json:"-" validate:"required,uuid"`
	Range   string `json:"range" validate:"required,oneof=1d 1w 1m 3m 6m 1y"`
	Minutes int    `json:"minutes" validate:"oneof=0 1 5 15 30"`
}

func (r GranularityRequest) Granularity() Granularity {
	return Granularity{Range: Range(r.Range), Minutes: r.Minutes}
}

type ChartTypeRequest struct {
	ID   string `param:"id" json:"-" validate:"required,uuid"`
	Type string `json:"type" validate:"required,oneof=candle line area"`
}

type ThemeRequest struct {
	ID    string `param:"id" json:"-" validate:"required,uuid"`
	Theme string `json:"theme" validate:"required,oneof=light dark"`
}

// MAToggleRequest shows or hides one moving average by its configured index.
type MAToggleRequest struct {
	ID      string `param:"id" json:"-" validate:"required,uuid"`
	Index   *int   `json:"index" validate:"required,gte=0"`
	Visible *bool  `json:"visible" validate:"required"`
}

type IndicatorRequest struct {
	ID      string `param:"id" json:"-" validate:"required,uuid"`
	Kind    string `json:"kind" validate:"required,oneof=rsi macd"`
	Visible *bool  `json:"visible" validate:"required"`
}

type VolumeRequest struct {
	ID      string `param:"id" json:"-" validate:"required,uuid"`
	Visible *bool  `json:"visible" validate:"required"`
}

// ZoomRequest zooms around Focal, a logical bar index.
type ZoomRequest struct {
	ID        string   `param:"id" json:"-" validate:"required,uuid"`
	Direction string   `json:"direction" validate:"required,oneof=in out"`
	Focal     *float64 `json:"focal" validate:"required"`
}

// PanRequest shifts the visible range by Delta bars.
type PanRequest struct {
	ID    string  `param:"id" json:"-" validate:"required,uuid"`
	Delta float64 `json:"delta" validate:"required"`
}

type CrosshairRequest struct {
	ID    string  `param:"id" json:"-" validate:"required,uuid"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Clear bool    `json:"clear"`
}

// ToolRequest arms a drawing tool; an empty tool disarms drawing.
type ToolRequest struct {
	ID   string `param:"id" json:"-" validate:"required,uuid"`
	Tool string `json:"tool" validate:"omitempty,oneof=trendline horizontal fibonacci rectangle"`
}

type PointerRequest struct {
	ID    string  `param:"id" json:"-" validate:"required,uuid"`
	Phase string  `json:"phase" validate:"required,oneof=down move up"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type RenderRequest struct {
	ID   string `param:"id" json:"-" validate:"required,uuid"`
	Pane string `query:"pane" json:"-" default:"main" validate:"oneof=main volume rsi macd"`
}

type IngestBarsRequest struct {
	Bars []Bar `json:"bars" validate:"required,min=1,max=5000"`
}

type IngestBarsResponse struct {
	Accepted int    `json:"accepted"`
	Backend  string `json:"backend"`
}
