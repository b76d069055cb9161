// Package diff computes which fields a row mutation changed.
package diff

import (
	"reflect"
	"slices"

	"alumni/internal/audit"
)

// Changed returns the sorted names of fields that differ between before and after.
//
// INSERT reports every non-null field of after and DELETE every non-null field
// of before. UPDATE reports fields whose values are not deeply equal, including
// fields present on only one side. Values are compared after JSON
// normalisation so an int and the json.Number it decodes to are equal.
func Changed(op audit.Operation, before, after audit.Image) []string {
	switch op {
	case audit.OpInsert:
		return nonNull(after)
	case audit.OpDelete:
		return nonNull(before)
	}

	b, errB := audit.NormalizeImage(before)
	a, errA := audit.NormalizeImage(after)
	if errB != nil || errA != nil {
		b, a = before, after
	}

	fields := make([]string, 0)
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			fields = append(fields, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			fields = append(fields, k)
		}
	}
	slices.Sort(fields)
	return fields
}

// Apply overlays the named fields of after onto a copy of before.
// Fields absent from after are removed. Apply(before, after, Changed(UPDATE,
// before, after)) equals after.
func Apply(before, after audit.Image, fields []string) audit.Image {
	out := before.Clone()
	if out == nil {
		out = audit.Image{}
	}
	for _, f := range fields {
		v, ok := after[f]
		if !ok {
			delete(out, f)
			continue
		}
		out[f] = v
	}
	return out
}

func nonNull(img audit.Image) []string {
	fields := make([]string, 0, len(img))
	for k, v := range img {
		if v != nil {
			fields = append(fields, k)
		}
	}
	slices.Sort(fields)
	return fields
}
