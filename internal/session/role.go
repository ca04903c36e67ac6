package session

import "encoding/json"

// Role distinguishes the operator's control surface from passive renderers.
type Role int

const (
	Unknown Role = iota
	Control
	Output
)

var roleNames = map[Role]string{
	Unknown: "unknown",
	Control: "control",
	Output:  "output",
}

var roleFromName = map[string]Role{
	"unknown": Unknown,
	"control": Control,
	"output":  Output,
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

// ParseRole maps the role query parameter to a Role. Anything unrecognized
// is Unknown; such clients still relay but get no state replay.
func ParseRole(s string) Role {
	if r, ok := roleFromName[s]; ok {
		return r
	}
	return Unknown
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = ParseRole(s)
	return nil
}
