package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Encoder turns NetEvents into wire frames, one JSON object per event.
// Tagged frames carry the kind discriminant so the receiver never has to
// guess between overlapping shapes; untagged frames are the bare packet.
type Encoder struct {
	Tagged bool
}

func (e Encoder) Encode(ev NetEvent) ([]byte, error) {
	if ev.IsZero() {
		return nil, errors.New("encode: empty net event")
	}
	b, err := json.Marshal(ev.Packet().Serialize())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	if !e.Tagged {
		return b, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("encode %s: packet does not serialize to an object", ev.Kind())
	}
	kb, err := json.Marshal(ev.Kind())
	if err != nil {
		return nil, err
	}
	fields[KindField] = kb
	return json.Marshal(fields)
}

// Decoder matches frames against an ordered variant list.
//
// A frame with a "kind" field is matched only against variants of that
// kind. A frame without one falls back to structural matching: variants are
// tried in list order and the first whose shape validates wins.
type Decoder struct {
	variants []Variant
	byKind   map[Kind][]Variant
}

func NewDecoder(variants []Variant) *Decoder {
	d := &Decoder{
		variants: append([]Variant(nil), variants...),
		byKind:   map[Kind][]Variant{},
	}
	for _, v := range d.variants {
		d.byKind[v.Kind] = append(d.byKind[v.Kind], v)
	}
	return d
}

// Variants returns the priority order in use.
func (d *Decoder) Variants() []Variant {
	return append([]Variant(nil), d.variants...)
}

func (d *Decoder) Decode(frame []byte) (NetEvent, error) {
	var raw any
	if err := json.Unmarshal(frame, &raw); err != nil {
		return NetEvent{}, &DecodeError{Code: ErrCodeNotJSON, Detail: err.Error()}
	}
	return d.DecodeValue(raw)
}

func (d *Decoder) DecodeValue(raw any) (NetEvent, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return NetEvent{}, &DecodeError{Code: ErrCodeNotObject, Detail: fmt.Sprintf("%T", raw)}
	}

	if tag, present := obj[KindField]; present {
		s, isStr := tag.(string)
		if !isStr || s == "" {
			return NetEvent{}, &DecodeError{Code: ErrCodeUnknownKind, Detail: fmt.Sprintf("kind=%v", tag)}
		}
		kind := Kind(s)
		candidates := d.byKind[kind]
		if len(candidates) == 0 {
			return NetEvent{}, &DecodeError{Code: ErrCodeUnknownKind, Kind: kind}
		}
		if ev, ok := tryVariants(candidates, obj); ok {
			return ev, nil
		}
		return NetEvent{}, &DecodeError{Code: ErrCodeBadShape, Kind: kind}
	}

	if ev, ok := tryVariants(d.variants, obj); ok {
		return ev, nil
	}
	return NetEvent{}, &DecodeError{Code: ErrCodeNoVariant, Detail: fmt.Sprintf("tried %d variants", len(d.variants))}
}

func tryVariants(vs []Variant, obj map[string]any) (NetEvent, bool) {
	for _, v := range vs {
		if p, ok := v.Deserialize(obj); ok {
			return NetEvent{kind: v.Kind, packet: p}, true
		}
	}
	return NetEvent{}, false
}
