package viewer

import (
	"fmt"
	"math"
	"slices"

	"github.com/wsiviewer/backend/internal/domain/shared"
)

// GeometryType is a ROI geometry the draw interaction can produce.
type GeometryType string

const (
	GeometryPoint           GeometryType = "point"
	GeometryCircle          GeometryType = "circle"
	GeometryBox             GeometryType = "box"
	GeometryPolygon         GeometryType = "polygon"
	GeometryLine            GeometryType = "line"
	GeometryFreehandPolygon GeometryType = "freehandpolygon"
	GeometryFreehandLine    GeometryType = "freehandline"
)

// DefaultGeometryTypes are offered for findings that do not restrict them.
func DefaultGeometryTypes() []GeometryType {
	return []GeometryType{
		GeometryPoint,
		GeometryCircle,
		GeometryBox,
		GeometryPolygon,
		GeometryLine,
		GeometryFreehandPolygon,
		GeometryFreehandLine,
	}
}

// IsValid reports whether the geometry type is known.
func (g GeometryType) IsValid() bool {
	return slices.Contains(DefaultGeometryTypes(), g)
}

// MarkupMeasurement is the markup that makes drawn ROIs show measurements.
const MarkupMeasurement = "measurement"

// Default ROI style values
var (
	DefaultRoiStrokeColor = []float64{0, 126, 163}
	DefaultRoiFillColor   = []float64{0, 126, 163, 0.2}
)

const DefaultRoiStrokeWidth = 2.0

// CodedConcept is a coded entry of a coding scheme.
type CodedConcept struct {
	CodeValue              string `json:"value"`
	CodingSchemeDesignator string `json:"scheme_designator"`
	CodingSchemeVersion    string `json:"scheme_version,omitempty"`
	CodeMeaning            string `json:"meaning"`
}

// Key identifies the concept by coding scheme and code value.
func (c CodedConcept) Key() string {
	return c.CodingSchemeDesignator + "-" + c.CodeValue
}

// Equal compares coding scheme and code value.
func (c CodedConcept) Equal(other CodedConcept) bool {
	return c.CodeValue == other.CodeValue && c.CodingSchemeDesignator == other.CodingSchemeDesignator
}

// EvaluationConfig lists the answers allowed for a question about a finding.
type EvaluationConfig struct {
	Name   CodedConcept
	Values []CodedConcept
}

// MeasurementConfig is a measurement recorded for drawn ROIs.
type MeasurementConfig struct {
	Name CodedConcept
	Unit CodedConcept
}

// StrokeConfig overrides the ROI outline. Nil fields keep the defaults.
type StrokeConfig struct {
	Color []float64
	Width *float64
}

// FillConfig overrides the ROI interior.
type FillConfig struct {
	Color []float64
}

// StyleConfig is the configured style of a finding's ROIs.
type StyleConfig struct {
	Stroke *StrokeConfig
	Fill   *FillConfig
	Radius *float64
}

// AnnotationConfig configures the annotation options of one finding.
type AnnotationConfig struct {
	Finding       CodedConcept
	GeometryTypes []GeometryType
	Evaluations   []EvaluationConfig
	Measurements  []MeasurementConfig
	Style         *StyleConfig
}

// Stroke is the outline of a ROI.
type Stroke struct {
	Color []float64 `json:"color"`
	Width float64   `json:"width"`
}

// Fill is the interior of a ROI.
type Fill struct {
	Color []float64 `json:"color"`
}

// CircleStyle is how point ROIs are drawn.
type CircleStyle struct {
	Radius float64 `json:"radius"`
	Stroke Stroke  `json:"stroke"`
	Fill   Fill    `json:"fill"`
}

// RoiStyle is the display style of ROIs of a finding.
type RoiStyle struct {
	Stroke Stroke `json:"stroke"`
	Fill   Fill   `json:"fill"`
	Image  struct {
		Circle CircleStyle `json:"circle"`
	} `json:"image"`
}

// FormatRoiStyle fills in defaults for everything the config leaves out.
// The point radius defaults to max(5 - stroke width, 1).
func FormatRoiStyle(cfg *StyleConfig) RoiStyle {
	stroke := Stroke{
		Color: slices.Clone(DefaultRoiStrokeColor),
		Width: DefaultRoiStrokeWidth,
	}
	fill := Fill{Color: slices.Clone(DefaultRoiFillColor)}
	var radius *float64

	if cfg != nil {
		if cfg.Stroke != nil {
			if cfg.Stroke.Color != nil {
				stroke.Color = slices.Clone(cfg.Stroke.Color)
			}
			if cfg.Stroke.Width != nil {
				stroke.Width = *cfg.Stroke.Width
			}
		}
		if cfg.Fill != nil && cfg.Fill.Color != nil {
			fill.Color = slices.Clone(cfg.Fill.Color)
		}
		radius = cfg.Radius
	}

	style := RoiStyle{Stroke: stroke, Fill: fill}
	style.Image.Circle = CircleStyle{Stroke: stroke, Fill: fill}
	if radius != nil {
		style.Image.Circle.Radius = *radius
	} else {
		style.Image.Circle.Radius = math.Max(5-stroke.Width, 1)
	}
	return style
}

// EvaluationOption is an evaluation question with its allowed answers.
type EvaluationOption struct {
	Name   CodedConcept   `json:"name"`
	Values []CodedConcept `json:"values"`
}

// Measurement is a measurement recorded for drawn ROIs.
type Measurement struct {
	Name CodedConcept `json:"name"`
	Unit CodedConcept `json:"unit"`
}

// AnnotationOptions are the annotation choices offered while configuring a
// ROI, keyed by finding key.
type AnnotationOptions struct {
	Findings      []CodedConcept                `json:"findings"`
	GeometryTypes map[string][]GeometryType     `json:"geometry_types"`
	Evaluations   map[string][]EvaluationOption `json:"evaluations"`
	Measurements  []Measurement                 `json:"measurements"`
	RoiStyles     map[string]RoiStyle           `json:"roi_styles"`
}

// NewAnnotationOptions builds the annotation options from configuration.
func NewAnnotationOptions(configs []AnnotationConfig) (*AnnotationOptions, error) {
	opts := &AnnotationOptions{
		Findings:      make([]CodedConcept, 0, len(configs)),
		GeometryTypes: make(map[string][]GeometryType, len(configs)),
		Evaluations:   make(map[string][]EvaluationOption, len(configs)),
		Measurements:  []Measurement{},
		RoiStyles:     make(map[string]RoiStyle, len(configs)),
	}

	for _, cfg := range configs {
		key := cfg.Finding.Key()
		if _, exists := opts.GeometryTypes[key]; exists {
			return nil, shared.NewDomainError(shared.CodeConfigurationError,
				fmt.Sprintf("Finding %q is configured more than once.", key))
		}
		opts.Findings = append(opts.Findings, cfg.Finding)

		if len(cfg.GeometryTypes) > 0 {
			for _, g := range cfg.GeometryTypes {
				if !g.IsValid() {
					return nil, shared.NewDomainError(shared.CodeConfigurationError,
						fmt.Sprintf("Unknown geometry type %q for finding %q.", g, key))
				}
			}
			opts.GeometryTypes[key] = slices.Clone(cfg.GeometryTypes)
		} else {
			opts.GeometryTypes[key] = DefaultGeometryTypes()
		}

		evaluations := make([]EvaluationOption, 0, len(cfg.Evaluations))
		for _, e := range cfg.Evaluations {
			evaluations = append(evaluations, EvaluationOption{Name: e.Name, Values: slices.Clone(e.Values)})
		}
		opts.Evaluations[key] = evaluations

		for _, m := range cfg.Measurements {
			opts.Measurements = append(opts.Measurements, Measurement{Name: m.Name, Unit: m.Unit})
		}

		opts.RoiStyles[key] = FormatRoiStyle(cfg.Style)
	}

	return opts, nil
}

// FindingByCodeValue looks a configured finding up by its code value.
func (o *AnnotationOptions) FindingByCodeValue(codeValue string) (CodedConcept, bool) {
	for _, f := range o.Findings {
		if f.CodeValue == codeValue {
			return f, true
		}
	}
	return CodedConcept{}, false
}

// AllowsGeometryType reports whether ROIs of the geometry may be drawn for
// the finding.
func (o *AnnotationOptions) AllowsGeometryType(finding CodedConcept, g GeometryType) bool {
	return slices.Contains(o.GeometryTypes[finding.Key()], g)
}

// Evaluation finds an answer to an evaluation question of the finding.
func (o *AnnotationOptions) Evaluation(finding CodedConcept, name CodedConcept, valueCode string) (EvaluationOption, CodedConcept, bool) {
	for _, e := range o.Evaluations[finding.Key()] {
		if !e.Name.Equal(name) {
			continue
		}
		for _, v := range e.Values {
			if v.CodeValue == valueCode {
				return e, v, true
			}
		}
	}
	return EvaluationOption{}, CodedConcept{}, false
}
