// Package secrets resolves credentials from pluggable providers.
//
// A Manager holds named providers (see providers/env, providers/memory and
// providers/aws). Configuration refers to secrets by SecretRef and values are
// fetched just before use:
//
//	m := secrets.NewManager(&secrets.Config{DefaultProvider: "env", AutoClear: true})
//	_ = m.RegisterProvider(env.New())
//	s, err := m.Resolve(ctx, secrets.SecretRef{Path: "REGISTRY_TOKEN"})
//	token := s.String() // value is zeroed after this call
package secrets

// SecretRef points at a secret without holding its value.
type SecretRef struct {
	// Path identifies the secret, e.g. "ci/registry-token" or an
	// environment variable name.
	Path string

	// Version selects a specific version. Empty means current.
	Version string
}

// Secret is a resolved secret value.
type Secret struct {
	Value   []byte
	Version string

	// AutoClear zeroes Value after String or Bytes is called.
	AutoClear bool
}

// String returns the value as a string.
func (s *Secret) String() string {
	if s == nil || s.Value == nil {
		return ""
	}
	value := string(s.Value)
	if s.AutoClear {
		s.Clear()
	}
	return value
}

// Bytes returns a copy of the value.
func (s *Secret) Bytes() []byte {
	if s == nil || s.Value == nil {
		return nil
	}
	value := make([]byte, len(s.Value))
	copy(value, s.Value)
	if s.AutoClear {
		s.Clear()
	}
	return value
}

// Clear zeroes the value in memory.
func (s *Secret) Clear() {
	if s == nil || s.Value == nil {
		return
	}
	for i := range s.Value {
		s.Value[i] = 0
	}
	s.Value = nil
}
