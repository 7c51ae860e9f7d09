// Package document applies edits to report documents.
//
// Every operation takes the latest document value and returns a new one;
// the input is never modified. Mutations that change content mark the
// result dirty and bump its revision. Only a successful save clears dirty.
package document

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/DukeRupert/fieldreport/internal/domain"
)

// =============================================================================
// Editable Field Index
// =============================================================================

// fieldRef locates an editable field. parent is set for one-level-nested
// paths such as "customer.companyName".
type fieldRef struct {
	parent []int
	index  []int
	typ    reflect.Type
}

var (
	documentFields = buildFieldIndex(
		reflect.TypeOf(domain.ReportDocument{}),
		[]string{"narrativeSummary", "classificationTags", "followUpRecommended"},
		[]string{"customer", "site", "asset", "visit"},
	)
	issueFields = buildFieldIndex(
		reflect.TypeOf(domain.Issue{}),
		[]string{
			"title", "category", "urgency", "resolved", "observationText",
			"rootCause", "fixApplied", "verifiedBy", "notes", "customerFacingSummary",
		},
		[]string{"flags"},
	)
)

func buildFieldIndex(root reflect.Type, scalars, objects []string) map[string]fieldRef {
	fields := make(map[string]fieldRef)
	for _, name := range scalars {
		sf := fieldByJSONName(root, name)
		fields[name] = fieldRef{index: sf.Index, typ: sf.Type}
	}
	for _, name := range objects {
		obj := fieldByJSONName(root, name)
		elem := obj.Type
		if elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		for i := 0; i < elem.NumField(); i++ {
			sf := elem.Field(i)
			fields[name+"."+jsonName(sf)] = fieldRef{parent: obj.Index, index: sf.Index, typ: sf.Type}
		}
	}
	return fields
}

func fieldByJSONName(t reflect.Type, name string) reflect.StructField {
	for i := 0; i < t.NumField(); i++ {
		if jsonName(t.Field(i)) == name {
			return t.Field(i)
		}
	}
	panic(fmt.Sprintf("document: %s has no field %q", t.Name(), name))
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return sf.Name
}

// EditableFields returns the report field paths accepted by ApplyFieldEdit.
func EditableFields() []string {
	return sortedKeys(documentFields)
}

// EditableIssueFields returns the issue field paths accepted by the issue editor.
func EditableIssueFields() []string {
	return sortedKeys(issueFields)
}

func sortedKeys(m map[string]fieldRef) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Field Edits
// =============================================================================

// ApplyFieldEdit returns a copy of doc with the field at path set to value.
// Unrelated fields are carried over untouched. Missing nested objects are
// created on first edit.
func ApplyFieldEdit(doc *domain.ReportDocument, path string, value any) (*domain.ReportDocument, error) {
	const op = "document.apply_field_edit"

	ref, ok := documentFields[path]
	if !ok {
		return nil, domain.Invalid(op, fmt.Sprintf("field %q cannot be edited", path))
	}

	next := doc.Clone()
	if err := setField(reflect.ValueOf(next).Elem(), ref, value); err != nil {
		return nil, domain.Invalid(op, fmt.Sprintf("%s: %v", path, err))
	}
	next.MarkDirty()
	return next, nil
}

// FieldValue reads the current value at path. Nil nested objects read as
// the zero value of the field.
func FieldValue(doc *domain.ReportDocument, path string) (any, error) {
	ref, ok := documentFields[path]
	if !ok {
		return nil, domain.Invalid("document.field_value", fmt.Sprintf("unknown field %q", path))
	}
	return getField(reflect.ValueOf(doc).Elem(), ref), nil
}

func applyIssueFieldEdit(issue *domain.Issue, path string, value any) error {
	const op = "document.apply_issue_field_edit"

	ref, ok := issueFields[path]
	if !ok {
		return domain.Invalid(op, fmt.Sprintf("issue field %q cannot be edited", path))
	}
	if s, isText := value.(string); isText {
		var err error
		switch path {
		case "urgency":
			value, err = domain.ParseUrgency(s)
		case "category":
			value, err = domain.ParseIssueCategory(s)
		}
		if err != nil {
			return err
		}
	}
	if err := setField(reflect.ValueOf(issue).Elem(), ref, value); err != nil {
		return domain.Invalid(op, fmt.Sprintf("%s: %v", path, err))
	}
	return nil
}

func issueFieldValue(issue *domain.Issue, path string) any {
	ref, ok := issueFields[path]
	if !ok {
		return nil
	}
	return getField(reflect.ValueOf(issue).Elem(), ref)
}

func setField(root reflect.Value, ref fieldRef, value any) error {
	holder := root
	if ref.parent != nil {
		holder = root.FieldByIndex(ref.parent)
		if holder.Kind() == reflect.Pointer {
			if holder.IsNil() {
				holder.Set(reflect.New(holder.Type().Elem()))
			}
			holder = holder.Elem()
		}
	}

	v, err := coerce(value, ref.typ)
	if err != nil {
		return err
	}
	holder.FieldByIndex(ref.index).Set(v)
	return nil
}

func getField(root reflect.Value, ref fieldRef) any {
	holder := root
	if ref.parent != nil {
		holder = root.FieldByIndex(ref.parent)
		if holder.Kind() == reflect.Pointer {
			if holder.IsNil() {
				return reflect.Zero(ref.typ).Interface()
			}
			holder = holder.Elem()
		}
	}
	return holder.FieldByIndex(ref.index).Interface()
}

// coerce converts an edit value into the field's type. Strings are accepted
// for every kind so CLI and form input can be passed through unchanged.
func coerce(value any, typ reflect.Type) (reflect.Value, error) {
	switch typ.Kind() {
	case reflect.String:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || rv.Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("expected text, got %T", value)
		}
		return rv.Convert(typ), nil

	case reflect.Bool:
		switch v := value.(type) {
		case bool:
			return reflect.ValueOf(v), nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return reflect.Value{}, fmt.Errorf("expected true or false, got %q", v)
			}
			return reflect.ValueOf(b), nil
		}
		return reflect.Value{}, fmt.Errorf("expected true or false, got %T", value)

	case reflect.Slice:
		if typ.Elem().Kind() != reflect.String {
			break
		}
		var items []string
		switch v := value.(type) {
		case []string:
			items = append(items, v...)
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return reflect.Value{}, fmt.Errorf("expected a list of text, got %T", item)
				}
				items = append(items, s)
			}
		case string:
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
		default:
			return reflect.Value{}, fmt.Errorf("expected a list of text, got %T", value)
		}
		if items == nil {
			items = []string{}
		}
		return reflect.ValueOf(items).Convert(typ), nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported field type %s", typ)
}
