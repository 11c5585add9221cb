package cli

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jsqlang/jsq/compiler"
	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/optr"
	"github.com/jsqlang/jsq/pkg/schema"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*Options
	QueryFlags
}

// NewRunCommand creates the run command.
func NewRunCommand(opts *Options) *cobra.Command {
	ropts := &RunOptions{Options: opts}
	cmd := &cobra.Command{
		Use:   "run <query> <input>",
		Short: "Run a query over rows from a YAML or JSON file",
		Long: `Run compiles the query against the configured element schema, decodes
the input file into rows of that type, executes the plan, and prints the
result as YAML on stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(ropts, cmd, args[0], args[1])
		},
	}
	ropts.SetFlags(cmd.Flags())
	return cmd
}

func runRun(opts *RunOptions, cmd *cobra.Command, query, inputPath string) error {
	elem, err := opts.Config.ElementType()
	if err != nil {
		return err
	}
	plan, err := compiler.Compile(query, elem, opts.Config.Settings())
	if err != nil {
		return err
	}
	logger := opts.Logger.With(zap.Stringer("plan", plan.ID()))
	logger.Info("compiled query",
		zap.Int("stages", stageCount(query)),
		zap.Stringer("source", plan.Source()),
		zap.Stringer("result", plan.Result()))

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	rows, err := schema.DecodeRows(data, elem)
	if err != nil {
		return fmt.Errorf("%s: %w", inputPath, err)
	}
	start := time.Now()
	out, err := plan.Run(cmd.Context(), rows)
	if err != nil {
		return err
	}
	logger.Info("query finished",
		zap.Int("rows", reflect.ValueOf(rows).Len()),
		zap.Duration("elapsed", time.Since(start)))

	b, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(b))
	return nil
}

// stageCount counts the pipeline stages of a query known to parse:
// operations chained along source operands from the root body.
func stageCount(query string) int {
	root, err := compiler.Parse(query)
	if err != nil {
		return 0
	}
	n := 0
	for e := root.Body; ; {
		op, ok := e.(*ast.Operation)
		if !ok {
			break
		}
		info, known := optr.Lookup(op.Operator)
		if !known || !info.IsCollection() || len(op.Operands) == 0 {
			break
		}
		n++
		e = op.Operands[0]
	}
	return n
}
