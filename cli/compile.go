package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsqlang/jsq/compiler"
	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/qfmt"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*Options
	QueryFlags
	AST       bool
	Canonical bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(opts *Options) *cobra.Command {
	copts := &CompileOptions{Options: opts}
	cmd := &cobra.Command{
		Use:   "compile <query>",
		Short: "Compile a query and print its plan",
		Long: `Compile parses the query and prints its compiled plan description.
With --ast the parsed tree prints as JSON instead; with -C the query
prints in canonical form.  Both of those stop before semantic analysis,
so no schema is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(copts, cmd, args[0])
		},
	}
	copts.SetFlags(cmd.Flags())
	cmd.Flags().BoolVar(&copts.AST, "ast", false, "print the parsed tree as JSON")
	cmd.Flags().BoolVarP(&copts.Canonical, "canonical", "C", false, "print the query in canonical form")
	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command, query string) error {
	out := cmd.OutOrStdout()
	if opts.AST || opts.Canonical {
		root, err := compiler.Parse(query)
		if err != nil {
			return err
		}
		if opts.AST {
			data, err := ast.MarshalQuery(root)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, data, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(out, buf.String())
		}
		if opts.Canonical {
			fmt.Fprintln(out, qfmt.Query(root))
		}
		return nil
	}
	elem, err := opts.Config.ElementType()
	if err != nil {
		return err
	}
	plan, err := compiler.Compile(query, elem, opts.Config.Settings())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, plan)
	return nil
}
