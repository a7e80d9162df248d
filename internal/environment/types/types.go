package types

type EnvType int

const (
	EnvTypeUnknown EnvType = iota
	EnvTypeSecret
	EnvTypeDatabase
	EnvTypeConfig
	EnvTypeGenerated // value looks machine generated (uuid, nanoid, jwt)
	EnvTypeURL
	EnvTypeBoolean
	EnvTypeNumeric
	EnvTypePort // the listening port variable
)

func (t EnvType) String() string {
	switch t {
	case EnvTypeSecret:
		return "secret"
	case EnvTypeDatabase:
		return "database"
	case EnvTypeConfig:
		return "config"
	case EnvTypeGenerated:
		return "generated"
	case EnvTypeURL:
		return "url"
	case EnvTypeBoolean:
		return "boolean"
	case EnvTypeNumeric:
		return "numeric"
	case EnvTypePort:
		return "port"
	default:
		return "unknown"
	}
}

func (t EnvType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// EnvResult is one variable found in one file
type EnvResult struct {
	VarName    string
	Value      string // declared value or default, if known
	Type       EnvType
	Sensitive  bool
	Source     string // e.g., "dotenv:.env"
	Confidence int
}

// EnvVar merges every result for one variable name
type EnvVar struct {
	Name      string   `json:"name"`
	Default   string   `json:"default,omitempty"`
	Type      EnvType  `json:"type"`
	Sensitive bool     `json:"sensitive"`
	Sources   []string `json:"sources"`
}
