package domain

type LayerType string

const (
	LayerTypeBackground LayerType = "background"
	LayerTypeContent    LayerType = "content"
	LayerTypeAnnotation LayerType = "annotation"
	LayerTypeOverlay    LayerType = "overlay"
)

func (t LayerType) Valid() bool {
	switch t {
	case LayerTypeBackground, LayerTypeContent, LayerTypeAnnotation, LayerTypeOverlay:
		return true
	}
	return false
}

type Layer struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Type           LayerType `json:"type"`
	Order          int       `json:"order"`
	Visible        bool      `json:"visible"`
	Locked         bool      `json:"locked"`
	Opacity        float64   `json:"opacity"`
	Color          string    `json:"color,omitempty"`
	ComponentCount int       `json:"componentCount"`
}
