// Package dicomfile converts Part-10 encoded instances into the DICOM JSON
// dataset model used throughout the viewer.
package dicomfile

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/dicomtag"
	"github.com/suyashkumar/dicom/element"

	wsidicom "github.com/wsiviewer/backend/internal/domain/dicom"
)

// ErrEmptyInstance is returned for an instance without data elements.
var ErrEmptyInstance = errors.New("dicomfile: instance contains no data elements")

// ParseDataset parses a Part-10 encoded instance. Pixel data and the file
// meta information group are dropped.
func ParseDataset(data []byte) (wsidicom.Dataset, error) {
	p, err := dicom.NewParserFromBytes(data, nil)
	if err != nil {
		return nil, fmt.Errorf("dicomfile: failed to open instance: %w", err)
	}

	parsed, err := safelyParse(p, dicom.ParseOptions{DropPixelData: true})
	if err != nil {
		return nil, fmt.Errorf("dicomfile: failed to parse instance: %w", err)
	}
	if parsed == nil || len(parsed.Elements) == 0 {
		return nil, ErrEmptyInstance
	}

	return convertElements(parsed.Elements), nil
}

// safelyParse recovers from panics of the parser on malformed input.
func safelyParse(p dicom.Parser, opts dicom.ParseOptions) (parsed *element.DataSet, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			parsed = nil
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	return p.Parse(opts)
}

func tagKey(t dicomtag.Tag) wsidicom.Tag {
	return wsidicom.Tag(fmt.Sprintf("%04X%04X", t.Group, t.Element))
}

func convertElements(elements []*element.Element) wsidicom.Dataset {
	ds := make(wsidicom.Dataset, len(elements))
	for _, elem := range elements {
		if elem == nil || elem.Tag.Group == 0x0002 || elem.Tag.Group == 0xFFFE {
			continue
		}
		ds[tagKey(elem.Tag)] = convertElement(elem)
	}
	return ds
}

func convertElement(elem *element.Element) wsidicom.Attribute {
	vr := elem.VR
	attr := wsidicom.Attribute{VR: vr}

	switch vr {
	case wsidicom.VRSQ:
		for _, v := range elem.Value {
			item, ok := v.(*element.Element)
			if !ok {
				continue
			}
			var children []*element.Element
			for _, c := range item.Value {
				if child, ok := c.(*element.Element); ok {
					children = append(children, child)
				}
			}
			raw, err := json.Marshal(convertElements(children))
			if err != nil {
				continue
			}
			attr.Value = append(attr.Value, raw)
		}
		return attr
	case wsidicom.VROB, wsidicom.VROW, "OF", "OD", "OL", "UN":
		if len(elem.Value) > 0 {
			if b, ok := elem.Value[0].([]byte); ok {
				attr.InlineBinary = base64.StdEncoding.EncodeToString(b)
				return attr
			}
		}
	}

	for _, v := range elem.Value {
		if raw, ok := convertValue(vr, v); ok {
			attr.Value = append(attr.Value, raw)
		}
	}
	return attr
}

func convertValue(vr string, v interface{}) (json.RawMessage, bool) {
	switch value := v.(type) {
	case string:
		return convertString(vr, value)
	case uint16:
		return json.RawMessage(strconv.FormatUint(uint64(value), 10)), true
	case uint32:
		return json.RawMessage(strconv.FormatUint(uint64(value), 10)), true
	case int16:
		return json.RawMessage(strconv.FormatInt(int64(value), 10)), true
	case int32:
		return json.RawMessage(strconv.FormatInt(int64(value), 10)), true
	case float32:
		return convertFloat(float64(value))
	case float64:
		return convertFloat(value)
	case dicomtag.Tag:
		raw, err := json.Marshal(string(tagKey(value)))
		return raw, err == nil
	default:
		return nil, false
	}
}

func convertString(vr, s string) (json.RawMessage, bool) {
	s = strings.TrimRight(s, " \x00")
	switch vr {
	case wsidicom.VRIS, wsidicom.VRDS:
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return nil, false
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return convertFloat(f)
		}
	case wsidicom.VRPN:
		raw, err := json.Marshal(map[string]string{"Alphabetic": s})
		return raw, err == nil
	}
	raw, err := json.Marshal(s)
	return raw, err == nil
}

func convertFloat(f float64) (json.RawMessage, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return json.RawMessage(strconv.FormatFloat(f, 'g', -1, 64)), true
}
