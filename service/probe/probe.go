// Package probe detects completed operations from marker resources left
// behind by earlier runs.
package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/opflow/model"
)

// Marker reports an operation done for a configuration when the resource
// expanded from its template exists.  Templates may reference ${operation}
// and ${config}.
type Marker struct {
	fs        afs.Service
	templates map[string]string
}

// Ensure Marker implements model.Probe
var _ model.Probe = (*Marker)(nil)

// Detect checks the marker of the (operation, configuration) pair.  An
// operation without a template never counts as done; an operation outside
// the known set is rejected with model.ErrUnsupportedOperation.
func (m *Marker) Detect(ctx context.Context, operation, config string) (bool, error) {
	template, ok := m.templates[operation]
	if !ok {
		return false, model.NewUnsupportedOperationError(operation, config, model.NoSlot)
	}
	if template == "" {
		return false, nil
	}
	URL := Expand(template, operation, config)
	exists, err := m.fs.Exists(ctx, URL)
	if err != nil {
		return false, fmt.Errorf("failed to check marker %s: %w", URL, err)
	}
	return exists, nil
}

// Expand substitutes ${operation} and ${config} in template
func Expand(template, operation, config string) string {
	return strings.NewReplacer("${operation}", operation, "${config}", config).Replace(template)
}

// NewMarker creates a marker probe; templates maps every known operation to
// its marker template, an empty template disables detection for it.
func NewMarker(fs afs.Service, templates map[string]string) *Marker {
	if fs == nil {
		fs = afs.New()
	}
	copied := make(map[string]string, len(templates))
	for op, template := range templates {
		copied[op] = template
	}
	return &Marker{fs: fs, templates: copied}
}
