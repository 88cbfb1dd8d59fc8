package surface

import (
	"fmt"
	"sort"
)

// Options configures a new surface. Fields the coordinator does not
// recognize travel in Extra and reach the backend untouched.
type Options struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Title  string `json:"title,omitempty"`
	Modal  bool   `json:"modal,omitempty"`

	// Show defaults to true when unset.
	Show *bool `json:"show,omitempty"`

	// Parent names an existing surface. For modal surfaces the coordinator
	// replaces it with its own top-level surface.
	Parent ID `json:"parent,omitempty"`

	Isolation *IsolationOptions `json:"isolation,omitempty"`
	Extra     map[string]any    `json:"extra,omitempty"`
}

// IsolationOptions controls how content inside the surface is sandboxed.
type IsolationOptions struct {
	Preload          string `json:"preload,omitempty"`
	ContextIsolation *bool  `json:"context_isolation,omitempty"`
	Sandbox          *bool  `json:"sandbox,omitempty"`
	NodeIntegration  bool   `json:"node_integration,omitempty"`
}

// ShowOptions is the argument of the show operation.
type ShowOptions struct {
	Focused bool `json:"focused"`
}

// Defaults fills options a peer left unset.
type Defaults struct {
	Width  int
	Height int
}

// Apply returns opts with zero dimensions replaced by the defaults.
func (d Defaults) Apply(opts Options) Options {
	if opts.Width == 0 {
		opts.Width = d.Width
	}
	if opts.Height == 0 {
		opts.Height = d.Height
	}
	return opts
}

// ShouldShow reports whether the surface is visible right after creation.
func (o Options) ShouldShow() bool {
	return o.Show == nil || *o.Show
}

// Validate checks the recognized options.
func (o Options) Validate() error {
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("invalid size %dx%d", o.Width, o.Height)
	}
	if o.Width > maxDimension || o.Height > maxDimension {
		return fmt.Errorf("size %dx%d exceeds %d", o.Width, o.Height, maxDimension)
	}
	if o.Isolation != nil && o.Isolation.NodeIntegration && o.Isolation.Sandbox != nil && *o.Isolation.Sandbox {
		return fmt.Errorf("isolation: node_integration cannot be combined with sandbox")
	}
	return nil
}

// ExtraKeys returns the pass-through option names in sorted order.
func (o Options) ExtraKeys() []string {
	keys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const maxDimension = 16384

var knownOptionKeys = map[string]struct{}{
	"width": {}, "height": {}, "title": {}, "modal": {}, "show": {},
	"parent": {}, "isolation": {}, "extra": {},
}

// CollectExtra moves keys of raw that Options does not recognize into
// opts.Extra, so options a newer peer sends still reach the backend.
func CollectExtra(opts *Options, raw map[string]any) {
	for k, v := range raw {
		if _, known := knownOptionKeys[k]; known {
			continue
		}
		if opts.Extra == nil {
			opts.Extra = make(map[string]any)
		}
		if _, exists := opts.Extra[k]; !exists {
			opts.Extra[k] = v
		}
	}
}
