package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/schema"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Output string // output file path
	Source bool   // print the built-in CUE source
}

// AttributeView is the JSON form of one compiled attribute.
type AttributeView struct {
	Name      string `json:"name"`
	OID       string `json:"oid"`
	Kind      string `json:"kind"`
	Access    string `json:"access"`
	Storage   string `json:"storage"`
	Default   string `json:"default,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
	Min       *int64 `json:"min,omitempty"`
	Max       *int64 `json:"max,omitempty"`
	Mirror    string `json:"mirror,omitempty"`
	Source    string `json:"source,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema [file.cue]",
		Short: "Compile and print an attribute schema",
		Long: `Compile a CUE attribute schema and print the resulting definitions.

Without a file the built-in schema is compiled. Use --source to print the
built-in CUE document as a starting point for a custom schema.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runSchema(opts, path, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write compiled definitions as JSON to this file")
	cmd.Flags().BoolVar(&opts.Source, "source", false, "print the built-in CUE schema")

	return cmd
}

func runSchema(opts *SchemaOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Source {
		_, err := formatter.Writer.Write(schema.DefaultSource())
		return err
	}

	defs, err := compileSchema(path)
	if err != nil {
		return outputSchemaError(formatter, err)
	}
	formatter.VerboseLog("Compiled %d attribute(s)", len(defs))

	views := make([]AttributeView, len(defs))
	for i, d := range defs {
		views[i] = viewOf(d)
	}

	if opts.Output != "" {
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal definitions: %w", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(views, "")
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d attribute(s)\n\n", len(views))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tOID\tKIND\tACCESS\tSTORAGE\tDEFAULT")
	for _, v := range views {
		def := v.Default
		if v.Storage == mib.Computed.String() {
			def = "(" + v.Source + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", v.Name, v.OID, v.Kind, v.Access, v.Storage, def)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote definitions to %s\n", opts.Output)
	}
	return nil
}

func compileSchema(path string) ([]mib.Definition, error) {
	if path == "" {
		return schema.Default()
	}
	return schema.Load(path)
}

func viewOf(d mib.Definition) AttributeView {
	v := AttributeView{
		Name:      d.Name,
		OID:       d.OID.String(),
		Kind:      d.Kind.String(),
		Access:    d.Access.String(),
		Storage:   d.Storage.String(),
		MaxLength: d.MaxLength,
		Mirror:    d.Mirror,
		Source:    d.Source,
	}
	if d.Default != nil {
		v.Default = d.Default.String()
	}
	if d.HasRange {
		lo, hi := d.Min, d.Max
		v.Min, v.Max = &lo, &hi
	}
	return v
}

// outputSchemaError reports a compile failure with its source position
// when one is known. Schema errors are command-level errors (exit code 2).
func outputSchemaError(formatter *OutputFormatter, err error) error {
	var ce *schema.CompileError
	if errors.As(err, &ce) && formatter.Format != "json" && ce.Pos.IsValid() {
		fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", ce.Pos.Filename(), ce.Pos.Line(), ce.Pos.Column())
	}
	code := ErrCodeSchema
	if errors.Is(err, os.ErrNotExist) {
		code = ErrCodeNotFound
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, "schema compile failed", err)
}
