// Package columns defines the column registry: the static classification of
// document columns into INPUT and OUTPUT roles that drives change detection
// and the non-destructive merge.
package columns

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Role classifies a column as classifier input or classifier output.
type Role string

// Column role constants.
const (
	// RoleInput marks a column supplied by the upstream source. A change to
	// an INPUT column triggers re-classification.
	RoleInput Role = "INPUT"
	// RoleOutput marks a column produced by the classifier, editable by
	// analysts and protected by the non-destructive merge invariant.
	RoleOutput Role = "OUTPUT"
)

// Layout is one versioned column layout, varying by tax type and year.
type Layout struct {
	Name    string          `yaml:"name"`
	TaxType string          `yaml:"tax_type"`
	Year    int             `yaml:"year"`
	Columns map[string]Role `yaml:"columns"`
}

// Registry resolves column roles for a single loaded layout.
type Registry struct {
	layout Layout
}

// Required INPUT columns the classifier reads and OUTPUT columns it writes.
// Every layout must register these or classification cannot run against it.
var (
	requiredInputs = []string{
		"vendor",
		"description",
		"subtotal",
		"tax_amount",
		"total",
		"invoice_file_reference",
	}
	requiredOutputs = []string{
		"tax_category",
		"refund_basis",
		"methodology",
		"final_decision",
		"confidence",
		"estimated_refund",
		"citation",
		"notes",
	}
)

// DefaultLayout is the standard sales/use-tax review layout.
func DefaultLayout() Layout {
	return Layout{
		Name:    "sales-use-standard",
		TaxType: "sales_use",
		Columns: map[string]Role{
			"vendor":                 RoleInput,
			"invoice_number":         RoleInput,
			"po_number":              RoleInput,
			"description":            RoleInput,
			"subtotal":               RoleInput,
			"tax_amount":             RoleInput,
			"tax_remitted":           RoleInput,
			"total":                  RoleInput,
			"invoice_file_reference": RoleInput,
			"alt_file_reference":     RoleInput,
			"tax_category":           RoleOutput,
			"refund_basis":           RoleOutput,
			"methodology":            RoleOutput,
			"final_decision":         RoleOutput,
			"confidence":             RoleOutput,
			"estimated_refund":       RoleOutput,
			"citation":               RoleOutput,
			"notes":                  RoleOutput,
		},
	}
}

// NewRegistry builds a registry from a layout, validating that every column
// the classifier depends on is registered with the right role.
func NewRegistry(layout Layout) (*Registry, error) {
	if len(layout.Columns) == 0 {
		return nil, fmt.Errorf("layout %q has no columns", layout.Name)
	}

	for _, col := range requiredInputs {
		if layout.Columns[col] != RoleInput {
			return nil, fmt.Errorf("layout %q: column %q must be registered as INPUT", layout.Name, col)
		}
	}
	for _, col := range requiredOutputs {
		if layout.Columns[col] != RoleOutput {
			return nil, fmt.Errorf("layout %q: column %q must be registered as OUTPUT", layout.Name, col)
		}
	}

	return &Registry{layout: layout}, nil
}

// LoadLayout reads a layout definition from a YAML file.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read layout file: %w", err)
	}

	var layout Layout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return Layout{}, fmt.Errorf("failed to parse layout file: %w", err)
	}

	for col, role := range layout.Columns {
		if role != RoleInput && role != RoleOutput {
			return Layout{}, fmt.Errorf("layout %q: column %q has invalid role %q", layout.Name, col, role)
		}
	}

	return layout, nil
}

// Name returns the layout name.
func (r *Registry) Name() string {
	return r.layout.Name
}

// Role returns the role for a column and whether the column is registered.
func (r *Registry) Role(column string) (Role, bool) {
	role, ok := r.layout.Columns[column]
	return role, ok
}

// InputColumns returns all INPUT column names in sorted order.
func (r *Registry) InputColumns() []string {
	return r.columnsWithRole(RoleInput)
}

// OutputColumns returns all OUTPUT column names in sorted order.
func (r *Registry) OutputColumns() []string {
	return r.columnsWithRole(RoleOutput)
}

func (r *Registry) columnsWithRole(role Role) []string {
	cols := make([]string, 0, len(r.layout.Columns))
	for col, colRole := range r.layout.Columns {
		if colRole == role {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}
