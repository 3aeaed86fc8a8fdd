package dicom

import (
	"github.com/wsiviewer/backend/internal/domain/shared"
)

// PaletteColorLUT is a palette color lookup table of a blending item.
// Descriptors hold number of entries, first mapped value and bits per entry.
type PaletteColorLUT struct {
	UID                string   `json:"uid"`
	RedDescriptor      []int    `json:"red_descriptor,omitempty"`
	GreenDescriptor    []int    `json:"green_descriptor,omitempty"`
	BlueDescriptor     []int    `json:"blue_descriptor,omitempty"`
	RedData            []uint16 `json:"red_data,omitempty"`
	GreenData          []uint16 `json:"green_data,omitempty"`
	BlueData           []uint16 `json:"blue_data,omitempty"`
	RedSegmentedData   []uint16 `json:"red_segmented_data,omitempty"`
	GreenSegmentedData []uint16 `json:"green_segmented_data,omitempty"`
	BlueSegmentedData  []uint16 `json:"blue_segmented_data,omitempty"`
}

// VOIWindow is the first item of a Softcopy VOI LUT Sequence.
type VOIWindow struct {
	Center float64 `json:"center"`
	Width  float64 `json:"width"`
}

// LimitValues returns the pixel value range mapped by the window.
func (w VOIWindow) LimitValues() [2]float64 {
	return [2]float64{w.Center - w.Width*0.5, w.Center + w.Width*0.5}
}

// BlendingItem is one item of the Advanced Blending Sequence.
type BlendingItem struct {
	StudyInstanceUID  string `json:"study_instance_uid"`
	SeriesInstanceUID string `json:"series_instance_uid"`
	// ReferencedInstanceUIDs is nil when the item carries neither a
	// Referenced Instance Sequence nor a Referenced Image Sequence.
	ReferencedInstanceUIDs []string         `json:"referenced_instance_uids"`
	PaletteColorLUT        *PaletteColorLUT `json:"palette_color_lut,omitempty"`
	VOIWindow              *VOIWindow       `json:"voi_window,omitempty"`
}

// References reports whether the item references the SOP instance.
func (b BlendingItem) References(sopInstanceUID string) bool {
	for _, uid := range b.ReferencedInstanceUIDs {
		if uid == sopInstanceUID {
			return true
		}
	}
	return false
}

// AdvancedBlendingPresentationState holds the parts of an Advanced Blending
// Presentation State instance needed to style optical paths.
type AdvancedBlendingPresentationState struct {
	SOPInstanceUID     string         `json:"sop_instance_uid"`
	SeriesInstanceUID  string         `json:"series_instance_uid"`
	StudyInstanceUID   string         `json:"study_instance_uid"`
	ContentLabel       string         `json:"content_label,omitempty"`
	ContentDescription string         `json:"content_description,omitempty"`
	BlendingItems      []BlendingItem `json:"blending_items"`
}

// NewAdvancedBlendingPresentationState reads a presentation state from a
// dataset.
func NewAdvancedBlendingPresentationState(ds Dataset) (*AdvancedBlendingPresentationState, error) {
	if ds.String(TagSOPInstanceUID) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Presentation state lacks SOP Instance UID.")
	}
	if !ds.Has(TagAdvancedBlendingSequence) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Presentation state lacks Advanced Blending Sequence.")
	}

	ps := &AdvancedBlendingPresentationState{
		SOPInstanceUID:     ds.String(TagSOPInstanceUID),
		SeriesInstanceUID:  ds.String(TagSeriesInstanceUID),
		StudyInstanceUID:   ds.String(TagStudyInstanceUID),
		ContentLabel:       ds.String(TagContentLabel),
		ContentDescription: ds.String(TagContentDescription),
	}
	for _, item := range ds.Sequence(TagAdvancedBlendingSequence) {
		ps.BlendingItems = append(ps.BlendingItems, newBlendingItem(item))
	}
	return ps, nil
}

// ReferencesAnySeries reports whether any blending item references one of
// the given series.
func (p *AdvancedBlendingPresentationState) ReferencesAnySeries(seriesInstanceUIDs []string) bool {
	for _, item := range p.BlendingItems {
		for _, uid := range seriesInstanceUIDs {
			if item.SeriesInstanceUID == uid {
				return true
			}
		}
	}
	return false
}

func newBlendingItem(ds Dataset) BlendingItem {
	item := BlendingItem{
		StudyInstanceUID:  ds.String(TagStudyInstanceUID),
		SeriesInstanceUID: ds.String(TagSeriesInstanceUID),
	}

	refs := ds.Sequence(TagReferencedInstanceSequence)
	if !ds.Has(TagReferencedInstanceSequence) {
		refs = ds.Sequence(TagReferencedImageSequence)
	}
	if ds.Has(TagReferencedInstanceSequence) || ds.Has(TagReferencedImageSequence) {
		item.ReferencedInstanceUIDs = make([]string, 0, len(refs))
		for _, ref := range refs {
			item.ReferencedInstanceUIDs = append(item.ReferencedInstanceUIDs, ref.String(TagReferencedSOPInstanceUID))
		}
	}

	if luts := ds.Sequence(TagPaletteColorLUTSequence); len(luts) > 0 {
		lut := luts[0]
		item.PaletteColorLUT = &PaletteColorLUT{
			UID:                lut.String(TagPaletteColorLUTUID),
			RedDescriptor:      lut.Ints(TagRedPaletteLUTDescriptor),
			GreenDescriptor:    lut.Ints(TagGreenPaletteLUTDescriptor),
			BlueDescriptor:     lut.Ints(TagBluePaletteLUTDescriptor),
			RedData:            lut.Uint16s(TagRedPaletteLUTData),
			GreenData:          lut.Uint16s(TagGreenPaletteLUTData),
			BlueData:           lut.Uint16s(TagBluePaletteLUTData),
			RedSegmentedData:   lut.Uint16s(TagSegmentedRedPaletteLUTData),
			GreenSegmentedData: lut.Uint16s(TagSegmentedGreenPaletteLUTData),
			BlueSegmentedData:  lut.Uint16s(TagSegmentedBluePaletteLUTData),
		}
	}

	if vois := ds.Sequence(TagSoftcopyVOILUTSequence); len(vois) > 0 {
		center, hasCenter := vois[0].Float(TagWindowCenter)
		width, hasWidth := vois[0].Float(TagWindowWidth)
		if hasCenter && hasWidth {
			item.VOIWindow = &VOIWindow{Center: center, Width: width}
		}
	}

	return item
}
