package types

import "encoding/json"

// Bundle field names, in the order they are validated and rendered.
const (
	FieldFrontend = "frontend"
	FieldBackend  = "backend"
	FieldDatabase = "database"
)

// BundleFields lists the keys every completion must carry.
var BundleFields = [...]string{FieldFrontend, FieldBackend, FieldDatabase}

// CodeBundle is the normalized result of a generation. An empty field means
// the model decided the part is not applicable. The zero value is a valid
// bundle with all three parts empty; fields are only settable through
// NewCodeBundle so a bundle never changes after it is produced.
type CodeBundle struct {
	frontend string
	backend  string
	database string
}

// NewCodeBundle builds a bundle from its three parts.
func NewCodeBundle(frontend, backend, database string) CodeBundle {
	return CodeBundle{frontend: frontend, backend: backend, database: database}
}

func (b CodeBundle) Frontend() string { return b.frontend }
func (b CodeBundle) Backend() string  { return b.backend }
func (b CodeBundle) Database() string { return b.database }

// Field returns the named part and whether the name is a bundle field.
func (b CodeBundle) Field(name string) (string, bool) {
	switch name {
	case FieldFrontend:
		return b.frontend, true
	case FieldBackend:
		return b.backend, true
	case FieldDatabase:
		return b.database, true
	}
	return "", false
}

// IsEmpty reports whether no part was generated.
func (b CodeBundle) IsEmpty() bool {
	return b.frontend == "" && b.backend == "" && b.database == ""
}

type codeBundleJSON struct {
	Frontend string `json:"frontend"`
	Backend  string `json:"backend"`
	Database string `json:"database"`
}

// MarshalJSON always emits all three keys.
func (b CodeBundle) MarshalJSON() ([]byte, error) {
	return json.Marshal(codeBundleJSON{Frontend: b.frontend, Backend: b.backend, Database: b.database})
}

// UnmarshalJSON decodes a stored bundle. It is not a substitute for the
// completion normalizer: missing keys decode as empty strings.
func (b *CodeBundle) UnmarshalJSON(data []byte) error {
	var v codeBundleJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = NewCodeBundle(v.Frontend, v.Backend, v.Database)
	return nil
}
