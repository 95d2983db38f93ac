package tenant

import "smallbiznis-tenancy/pkg/security"

var hashPIN = security.HashSecret

// SetAccessPIN stores a salted one-way hash of raw. An empty raw removes the
// PIN requirement.
func (m *Tenant) SetAccessPIN(raw string) error {
	if raw == "" {
		m.AccessPIN = nil
		return nil
	}

	hash, err := hashPIN(raw)
	if err != nil {
		return err
	}
	m.AccessPIN = &hash
	return nil
}

// CheckAccessPIN reports whether raw matches the stored PIN. A tenant without
// a PIN rejects every input.
func (m *Tenant) CheckAccessPIN(raw string) bool {
	if !m.HasAccessPIN() {
		return false
	}
	return security.VerifySecret(raw, *m.AccessPIN)
}

func (m *Tenant) HasAccessPIN() bool {
	return m.AccessPIN != nil && *m.AccessPIN != ""
}
