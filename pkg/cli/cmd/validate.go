package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/cli/utils"
	"github.com/rzbill/slipway/pkg/tasks"
	"github.com/rzbill/slipway/pkg/types"
	"github.com/spf13/cobra"
)

var (
	validateQuiet     bool
	validateRecursive bool
	validateOutput    string
	validateContext   int
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [file or directory]...",
	Short: "Validate pipeline files",
	Long: `Validate Slipway pipeline files for correctness.

This command checks YAML structure, required fields, job dependency
graphs, trigger and schedule definitions, matrix strategies, and step
configuration.

Examples:
  # Validate the default pipeline file in the current directory
  slipway validate

  # Validate a single file
  slipway validate release.yaml

  # Recursively validate all YAML files in a directory
  slipway validate --recursive ./pipelines/

  # Only show errors, no progress or success messages
  slipway validate --quiet release.yaml

  # Output in JSON format for CI integration
  slipway validate --output json ./pipelines/`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			filename, err := resolvePipelineFile(nil)
			if err != nil {
				return err
			}
			args = []string{filename}
		}

		files, err := utils.ExpandFilePaths(args, validateRecursive)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no YAML files found to validate")
		}

		return runValidate(files)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	// Define flags
	validateCmd.Flags().BoolVar(&validateQuiet, "quiet", false, "Only show errors, no progress or success messages")
	validateCmd.Flags().BoolVarP(&validateRecursive, "recursive", "r", false, "Recursively process directories")
	validateCmd.Flags().StringVar(&validateOutput, "output", "text", "Output format (text, json)")
	validateCmd.Flags().IntVar(&validateContext, "context", 1, "Number of context lines to show around errors")
}

// runValidate performs the actual validation of files
func runValidate(files []string) error {
	hasErrors := false
	totalErrorCount := 0
	pipelineCount := 0
	startTime := time.Now()
	allErrors := []format.ValidationError{}

	for _, filename := range files {
		// Only show per-file progress in verbose mode
		if verbose && !validateQuiet && validateOutput == "text" {
			fmt.Printf("Validating %s...\n", filename)
		}

		data, err := os.ReadFile(filename)
		if err != nil {
			fmt.Printf("Error reading %s: %v\n", filename, err)
			hasErrors = true
			totalErrorCount++
			continue
		}

		// Create an error formatter for this file
		formatter := format.NewErrorFormatter(filename, data)
		formatter.ContextLines = validateContext
		formatter.OutputFormat = validateOutput

		pf, err := types.ParsePipelineFileFromBytes(data)
		if err != nil {
			formatter.PrintErrorHeader()

			// Extract line number if possible
			errStr := err.Error()
			lineNum := formatter.ExtractLineNumber(errStr)
			formatter.PrintError(errStr, lineNum)

			hasErrors = true
			totalErrorCount += formatter.ErrorCount
			allErrors = append(allErrors, formatter.Errors...)

			if validateOutput == "text" {
				formatter.PrintErrorSummary()
			}
			continue
		}

		pipelineCount += len(pf.GetPipelineSpecs())

		if validatePipelineFile(formatter, pf) {
			hasErrors = true
			totalErrorCount += formatter.ErrorCount
			allErrors = append(allErrors, formatter.Errors...)

			// Show error summary for this file
			if validateOutput == "text" {
				formatter.PrintErrorSummary()
			}
			continue
		}

		if !validateQuiet && validateOutput == "text" {
			format.PrintSuccess(fmt.Sprintf("%s is valid", filename))
		}
	}

	// Output in JSON format if requested
	if validateOutput == "json" {
		// Create a combined formatter just for JSON output
		jsonFormatter := format.NewErrorFormatter("", nil)
		jsonFormatter.Errors = allErrors
		jsonFormatter.ErrorCount = totalErrorCount
		fmt.Println(jsonFormatter.FormatAsJSON())
	}

	// Print overall stats
	if validateOutput == "text" && !validateQuiet {
		duration := time.Since(startTime)
		format.PrintValidateSummary(len(files), pipelineCount, totalErrorCount, duration)
	}

	if hasErrors || totalErrorCount > 0 {
		// Return an error to indicate failure but don't add a message
		// since the summary already showed the error count
		return fmt.Errorf("") // Empty error message
	}

	return nil
}

// validatePipelineFile walks every pipeline in a parsed file so errors
// can be attributed to a pipeline name and source line. Returns true if
// any validation errors were found.
func validatePipelineFile(formatter *format.ErrorFormatter, pf *types.PipelineFile) bool {
	hasErrors := false

	if pf.HasParseErrors() {
		formatter.PrintErrorHeader()
		hasErrors = true
		for _, parseErr := range pf.GetParseErrors() {
			errStr := parseErr.Error()
			formatter.PrintError(errStr, formatter.ExtractLineNumber(errStr))
		}
	}

	specs := pf.GetPipelineSpecs()
	if len(specs) == 0 {
		if !pf.HasParseErrors() {
			formatter.PrintErrorHeader()
			formatter.PrintError("no pipelines defined", 0)
			hasErrors = true
		}
		return hasErrors
	}

	seen := make(map[string]bool)
	for _, spec := range specs {
		// Get line info if available
		var lineNum int
		if line, ok := pf.GetLineInfo("Pipeline", spec.GetName()); ok {
			lineNum = line
		}

		if err := spec.Validate(); err != nil {
			formatter.PrintErrorHeader()
			hasErrors = true
			formatter.PrintPipelineError(spec.GetName(), err.Error(), lineNum)
		}

		if spec.Name != "" {
			if seen[spec.Name] {
				formatter.PrintErrorHeader()
				hasErrors = true
				formatter.PrintPipelineError(spec.Name, fmt.Sprintf("duplicate pipeline name %q", spec.Name), lineNum)
			}
			seen[spec.Name] = true
		}

		// Dependency cycles are not part of per-spec validation
		if len(spec.Jobs) > 0 {
			adj := types.BuildJobAdjacency(spec.Jobs)
			for _, cycleErr := range types.DetectJobCycles(adj) {
				formatter.PrintErrorHeader()
				hasErrors = true
				formatter.PrintPipelineError(spec.GetName(), cycleErr.Error(), lineNum)
			}
		}

		// Task names resolve against the built-in registry; catch
		// unknown names here instead of mid-run.
		if checkTaskNames(formatter, spec, lineNum) {
			hasErrors = true
		}
	}

	return hasErrors
}

// checkTaskNames reports steps that reference a task name missing from
// the built-in registry. Returns true if any were found.
func checkTaskNames(formatter *format.ErrorFormatter, spec *types.PipelineSpec, lineNum int) bool {
	hasErrors := false

	report := func(jobName string, step *types.StepSpec) {
		if step.Task == "" {
			return
		}
		if _, ok := tasks.Lookup(step.Task); ok {
			return
		}
		formatter.PrintErrorHeader()
		hasErrors = true
		msg := fmt.Sprintf("unknown task %q (available: %s)", step.Task, strings.Join(tasks.Names(), ", "))
		if jobName != "" {
			msg = fmt.Sprintf("unknown task %q in job %q (available: %s)", step.Task, jobName, strings.Join(tasks.Names(), ", "))
		}
		formatter.PrintPipelineError(spec.GetName(), msg, lineNum)
	}

	for ji := range spec.Jobs {
		for si := range spec.Jobs[ji].Steps {
			report(spec.Jobs[ji].Name, &spec.Jobs[ji].Steps[si])
		}
	}
	for si := range spec.Steps {
		report("", &spec.Steps[si])
	}

	return hasErrors
}
