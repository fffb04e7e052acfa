package chart

import "FinChart/internal/domain/models"

// Palette holds every color a surface needs. Themes change nothing else.
type Palette struct {
	Background string
	Grid       string
	Text       string
	Up         string
	Down       string
	Line       string
	Area       string
	VolumeUp   string
	VolumeDown string
	MA         []string
	RSI        string
	MACD       string
	Signal     string
}

var palettes = map[models.Theme]Palette{
	models.ThemeLight: {
		Background: "#FFFFFF",
		Grid:       "#F0F3FA",
		Text:       "#131722",
		Up:         "#089981",
		Down:       "#F23645",
		Line:       "#2962FF",
		Area:       "#2962FF",
		VolumeUp:   "#92D2CC",
		VolumeDown: "#F7A9A7",
		MA:         []string{"#FF9800", "#2962FF", "#9C27B0", "#795548"},
		RSI:        "#7E57C2",
		MACD:       "#2962FF",
		Signal:     "#FF6D00",
	},
	models.ThemeDark: {
		Background: "#131722",
		Grid:       "#2A2E39",
		Text:       "#D1D4DC",
		Up:         "#26A69A",
		Down:       "#EF5350",
		Line:       "#5B9CF6",
		Area:       "#5B9CF6",
		VolumeUp:   "#1F6E66",
		VolumeDown: "#8A3432",
		MA:         []string{"#FFB74D", "#64B5F6", "#CE93D8", "#BCAAA4"},
		RSI:        "#B39DDB",
		MACD:       "#5B9CF6",
		Signal:     "#FFA726",
	},
}

// PaletteFor returns the colors of theme; unknown themes fall back to light.
func PaletteFor(theme models.Theme) Palette {
	if p, ok := palettes[theme]; ok {
		return p
	}
	return palettes[models.ThemeLight]
}

func (p Palette) maColor(i int) string {
	if len(p.MA) == 0 {
		return p.Line
	}
	return p.MA[i%len(p.MA)]
}
