package dicom

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Attribute is a single element of a DICOM JSON dataset (PS3.18 Annex F).
type Attribute struct {
	VR           string            `json:"vr"`
	Value        []json.RawMessage `json:"Value,omitempty"`
	BulkDataURI  string            `json:"BulkDataURI,omitempty"`
	InlineBinary string            `json:"InlineBinary,omitempty"`
}

// Dataset is a DICOM JSON object keyed by tag. Values are decoded lazily by
// the typed accessors, so unknown or malformed attributes never fail parsing
// of the whole dataset.
type Dataset map[Tag]Attribute

// ParseDatasets decodes a DICOM JSON array as returned by QIDO-RS and the
// WADO-RS metadata resources.
func ParseDatasets(data []byte) ([]Dataset, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return []Dataset{}, nil
	}
	var datasets []Dataset
	if err := json.Unmarshal(data, &datasets); err != nil {
		return nil, fmt.Errorf("failed to decode DICOM JSON: %w", err)
	}
	if datasets == nil {
		datasets = []Dataset{}
	}
	return datasets, nil
}

// Has reports whether the dataset contains the attribute, even if it is empty.
func (d Dataset) Has(tag Tag) bool {
	_, ok := d[tag]
	return ok
}

// VR returns the value representation of the attribute.
func (d Dataset) VR(tag Tag) string {
	return d[tag].VR
}

// String returns the first value of the attribute as a string. Numbers are
// returned in their JSON literal form and person names as their alphabetic
// component group.
func (d Dataset) String(tag Tag) string {
	values := d.Strings(tag)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Strings returns all values of the attribute as strings.
func (d Dataset) Strings(tag Tag) []string {
	attr, ok := d[tag]
	if !ok {
		return nil
	}
	values := make([]string, 0, len(attr.Value))
	for _, raw := range attr.Value {
		values = append(values, rawToString(raw))
	}
	return values
}

// Int returns the first value of the attribute as an integer.
func (d Dataset) Int(tag Tag) (int, bool) {
	values := d.Ints(tag)
	if len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

// Ints returns all values of the attribute that can be read as integers.
func (d Dataset) Ints(tag Tag) []int {
	floats := d.Floats(tag)
	if floats == nil {
		return nil
	}
	values := make([]int, 0, len(floats))
	for _, f := range floats {
		values = append(values, int(f))
	}
	return values
}

// Float returns the first value of the attribute as a float.
func (d Dataset) Float(tag Tag) (float64, bool) {
	values := d.Floats(tag)
	if len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

// Floats returns all values of the attribute that can be read as numbers.
// IS and DS values may be encoded either as JSON numbers or as strings.
func (d Dataset) Floats(tag Tag) []float64 {
	attr, ok := d[tag]
	if !ok {
		return nil
	}
	values := make([]float64, 0, len(attr.Value))
	for _, raw := range attr.Value {
		s := strings.TrimSpace(rawToString(raw))
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		values = append(values, f)
	}
	return values
}

// Sequence returns the items of a sequence attribute.
func (d Dataset) Sequence(tag Tag) []Dataset {
	attr, ok := d[tag]
	if !ok {
		return nil
	}
	items := make([]Dataset, 0, len(attr.Value))
	for _, raw := range attr.Value {
		var item Dataset
		if err := json.Unmarshal(raw, &item); err != nil || item == nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

// Bytes returns the inline binary content of the attribute.
func (d Dataset) Bytes(tag Tag) ([]byte, bool) {
	attr, ok := d[tag]
	if !ok || attr.InlineBinary == "" {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(attr.InlineBinary)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Uint16s returns the attribute as 16 bit words. Inline binary content is
// decoded as little endian, otherwise numeric values are converted.
func (d Dataset) Uint16s(tag Tag) []uint16 {
	if b, ok := d.Bytes(tag); ok {
		words := make([]uint16, len(b)/2)
		for i := range words {
			words[i] = binary.LittleEndian.Uint16(b[i*2:])
		}
		return words
	}
	ints := d.Ints(tag)
	if ints == nil {
		return nil
	}
	words := make([]uint16, len(ints))
	for i, v := range ints {
		words[i] = uint16(v)
	}
	return words
}

// BulkDataURI returns the bulk data reference of the attribute, if any.
func (d Dataset) BulkDataURI(tag Tag) string {
	return d[tag].BulkDataURI
}

// SetStrings sets a string valued attribute and returns the dataset.
func (d Dataset) SetStrings(tag Tag, vr string, values ...string) Dataset {
	raws := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		raw, _ := json.Marshal(v)
		raws = append(raws, raw)
	}
	d[tag] = Attribute{VR: vr, Value: raws}
	return d
}

// SetInts sets an integer valued attribute and returns the dataset.
func (d Dataset) SetInts(tag Tag, vr string, values ...int) Dataset {
	raws := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		raws = append(raws, json.RawMessage(strconv.Itoa(v)))
	}
	d[tag] = Attribute{VR: vr, Value: raws}
	return d
}

// SetFloats sets a decimal valued attribute and returns the dataset.
func (d Dataset) SetFloats(tag Tag, vr string, values ...float64) Dataset {
	raws := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		raws = append(raws, json.RawMessage(strconv.FormatFloat(v, 'g', -1, 64)))
	}
	d[tag] = Attribute{VR: vr, Value: raws}
	return d
}

// SetPersonName sets a PN attribute using the alphabetic component group.
func (d Dataset) SetPersonName(tag Tag, names ...string) Dataset {
	raws := make([]json.RawMessage, 0, len(names))
	for _, name := range names {
		raw, _ := json.Marshal(map[string]string{"Alphabetic": name})
		raws = append(raws, raw)
	}
	d[tag] = Attribute{VR: VRPN, Value: raws}
	return d
}

// SetSequence sets a sequence attribute and returns the dataset.
func (d Dataset) SetSequence(tag Tag, items ...Dataset) Dataset {
	raws := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		raws = append(raws, raw)
	}
	d[tag] = Attribute{VR: VRSQ, Value: raws}
	return d
}

// SetInlineBinary sets a binary attribute and returns the dataset.
func (d Dataset) SetInlineBinary(tag Tag, vr string, data []byte) Dataset {
	d[tag] = Attribute{VR: vr, InlineBinary: base64.StdEncoding.EncodeToString(data)}
	return d
}

func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var pn struct {
		Alphabetic string `json:"Alphabetic"`
	}
	if err := json.Unmarshal(raw, &pn); err == nil && pn.Alphabetic != "" {
		return pn.Alphabetic
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}
