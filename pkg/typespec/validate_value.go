// SPDX-License-Identifier: Apache-2.0

package typespec

import "fmt"

// ValidateValue checks that value has the shape spec describes, returning a
// descriptive error naming the field path on mismatch. It is the row-level
// counterpart to ValidateDocument: ValidateDocument checks that a type_spec
// document itself is well-formed, ValidateValue checks that a row's field
// value conforms to an already-parsed Spec, the check a write path runs
// before appending a change record (an unknown field or a value that
// doesn't match its type_spec is exactly what ontoerrors.ValidationError
// describes).
//
// ref nodes are accepted without recursing: fully validating a
// self-referential typed_dict needs a registry mapping ref names back to
// their defining Spec, which no caller threads through here. refs only mark
// cycles within a single code-defined type, so skipping them trades
// completeness on deeply nested self-references for not having to plumb a
// registry through every call site.
func ValidateValue(path string, spec *Spec, value any) error {
	if spec == nil {
		return nil
	}
	switch spec.Kind {
	case KindPrimitive:
		return validatePrimitive(path, spec.Name, value)

	case KindList:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected a list, got %T", path, value)
		}
		for i, item := range items {
			if err := ValidateValue(fmt.Sprintf("%s[%d]", path, i), spec.Item, item); err != nil {
				return err
			}
		}
		return nil

	case KindDict:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected a dict, got %T", path, value)
		}
		for k, v := range m {
			if err := ValidateValue(fmt.Sprintf("%s[%q]", path, k), spec.Value, v); err != nil {
				return err
			}
		}
		return nil

	case KindUnion:
		var lastErr error
		for _, m := range spec.Members {
			if err := ValidateValue(path, m, value); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		if lastErr == nil {
			return fmt.Errorf("%s: union has no members", path)
		}
		return fmt.Errorf("%s: value matches none of %d union members (%w)", path, len(spec.Members), lastErr)

	case KindTypedDict:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected an object, got %T", path, value)
		}
		for name, v := range m {
			fs, known := spec.Fields[name]
			if !known {
				return fmt.Errorf("%s: unknown field %q", path, name)
			}
			if err := ValidateValue(path+"."+name, fs, v); err != nil {
				return err
			}
		}
		if spec.Total != nil && *spec.Total {
			for name := range spec.Fields {
				if _, present := m[name]; !present {
					return fmt.Errorf("%s: missing required field %q", path, name)
				}
			}
		}
		return nil

	case KindRef:
		return nil

	default:
		return fmt.Errorf("%s: unknown type_spec kind %q", path, spec.Kind)
	}
}

func validatePrimitive(path, name string, value any) error {
	switch name {
	case ScalarAny:
		return nil
	case ScalarNoneType:
		if value != nil {
			return fmt.Errorf("%s: expected null, got %T", path, value)
		}
		return nil
	case ScalarStr:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected a string, got %T", path, value)
		}
		return nil
	case ScalarBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected a bool, got %T", path, value)
		}
		return nil
	case ScalarInt:
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return nil
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("%s: expected an int, got non-integral float %v", path, v)
			}
			return nil
		default:
			return fmt.Errorf("%s: expected an int, got %T", path, value)
		}
	case ScalarFloat:
		switch value.(type) {
		case float32, float64, int, int8, int16, int32, int64:
			return nil
		default:
			return fmt.Errorf("%s: expected a float, got %T", path, value)
		}
	default:
		// A degraded scalar name (Python reflection couldn't resolve the
		// original annotation): accept anything rather than block a write
		// on a type the writer never chose.
		return nil
	}
}
