package certifier

import (
	id "civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// Registry is an immutable lookup table from certifier code to definition.
// It is an explicit constructed value passed into the reconciliation core,
// so tests can run in parallel with different registries.
type Registry struct {
	defs map[id.CertifierCode]Definition
}

// NewRegistry builds a registry from a definition list. Duplicate codes and
// invalid definitions are rejected at construction, never at lookup time.
func NewRegistry(defs []Definition) (*Registry, error) {
	byCode := make(map[id.CertifierCode]Definition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byCode[def.Code]; dup {
			return nil, dErrors.Newf(dErrors.CodeConflict, "duplicate certifier code %q", def.Code)
		}
		byCode[def.Code] = def
	}
	return &Registry{defs: byCode}, nil
}

// Resolve looks up a certifier definition by code. An unknown code is a
// configuration or data-integrity fault, reported as CodeUnknownCertifier;
// callers must not treat it as "uncertified".
func (r *Registry) Resolve(code id.CertifierCode) (Definition, error) {
	def, ok := r.defs[code]
	if !ok {
		return Definition{}, dErrors.Newf(dErrors.CodeUnknownCertifier, "certifier %q is not registered", code)
	}
	return def, nil
}

// Codes returns the registered certifier codes, for diagnostics.
func (r *Registry) Codes() []id.CertifierCode {
	codes := make([]id.CertifierCode, 0, len(r.defs))
	for code := range r.defs {
		codes = append(codes, code)
	}
	return codes
}

// Len returns the number of registered certifiers.
func (r *Registry) Len() int { return len(r.defs) }
