package provider

// Kind identifies one operator of the provider capability surface.  The
// compiler emits exactly these; a provider implementation supplies an
// operator per kind in each family it supports.
type Kind int

const (
	KindInvalid Kind = iota
	Where
	Project
	Flatten
	Take
	Drop
	Count
	Contains
	ElementAt
	Any
	All
	Min
	Max
	Sum
	Average
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	Where:       "where",
	Project:     "project",
	Flatten:     "flatten",
	Take:        "take",
	Drop:        "drop",
	Count:       "count",
	Contains:    "contains",
	ElementAt:   "element-at",
	Any:         "any",
	All:         "all",
	Min:         "min",
	Max:         "max",
	Sum:         "sum",
	Average:     "average",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// Transform reports whether k yields a sequence rather than a scalar.
func (k Kind) Transform() bool {
	switch k {
	case Where, Project, Flatten, Take, Drop:
		return true
	}
	return false
}
