package cli

import (
	"github.com/spf13/pflag"
)

// QueryFlags are the flags shared by commands that compile a query.  The
// bound values flow into Config through the flag provider, so commands
// read the resolved Config rather than these fields.
type QueryFlags struct {
	schema      string
	suspendable bool
}

func (f *QueryFlags) SetFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.schema, "schema", "s", "", "YAML schema file naming the element type")
	fs.BoolVar(&f.suspendable, "suspendable", false,
		"compile pipeline stages for the suspension-capable operator family")
}
