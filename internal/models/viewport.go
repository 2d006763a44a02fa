package models

// Rect is a box in document coordinates.
type Rect struct {
	Top    float64 `json:"top" yaml:"top"`
	Left   float64 `json:"left" yaml:"left"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Viewport is the visible window onto the document.
type Viewport struct {
	ScrollTop float64 `json:"scroll_top" yaml:"scroll_top"`
	Height    float64 `json:"height" yaml:"height"`
	Width     float64 `json:"width" yaml:"width"`
}

// Center returns the vertical document-space center of the viewport.
func (v Viewport) Center() float64 {
	return v.ScrollTop + v.Height/2
}
