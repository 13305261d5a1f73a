package feed

import "fmt"

// SchemaError reports a required column that is missing or a value that
// cannot be parsed into its semantic type.
type SchemaError struct {
	Relation string
	Column   string
	Value    string
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s: %s", e.Relation, e.Reason)
	}
	if e.Value == "" {
		return fmt.Sprintf("%s.%s: %s", e.Relation, e.Column, e.Reason)
	}
	return fmt.Sprintf("%s.%s: value %q: %s", e.Relation, e.Column, e.Value, e.Reason)
}

// ReferentialIntegrityError reports a dangling cross-relation reference or a
// required relation that is absent entirely.
type ReferentialIntegrityError struct {
	Relation string
	Ref      string
	ID       string
}

func (e *ReferentialIntegrityError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("required relation %s is absent", e.Relation)
	}
	return fmt.Sprintf("%s references unknown %s %q", e.Relation, e.Ref, e.ID)
}
