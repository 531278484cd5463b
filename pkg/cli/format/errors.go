package format

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Error types
const (
	ErrorType   = "error"
	WarningType = "warning"
	InfoType    = "info"
)

// Error colors
var (
	ErrorColor     = color.New(color.FgRed, color.Bold)
	WarningColor   = color.New(color.FgYellow, color.Bold)
	SuccessColor   = color.New(color.FgGreen, color.Bold)
	FileColor      = color.New(color.FgCyan)
	LineColor      = color.New(color.FgHiGreen)
	CodeColor      = color.New(color.FgWhite)
	ContextColor   = color.New(color.FgHiBlack)
	HintColor      = color.New(color.FgYellow, color.Italic)
	HeadingColor   = color.New(color.FgHiWhite, color.Bold)
	HighlightColor = color.New(color.FgHiRed)
)

// ValidationError represents a structured validation error
type ValidationError struct {
	FileName     string `json:"file_name"`
	LineNumber   int    `json:"line_number"`
	Message      string `json:"message"`
	ErrorType    string `json:"error_type"`
	Category     string `json:"category,omitempty"`
	Hint         string `json:"hint,omitempty"`
	PipelineName string `json:"pipeline_name,omitempty"`
	Context      string `json:"context,omitempty"`
}

// ErrorFormatter collects and prints validation errors for one file
type ErrorFormatter struct {
	FileName      string
	FileData      []byte
	ContextLines  int
	OutputFormat  string
	Errors        []ValidationError
	StartTime     time.Time
	TerminalWidth int
	ErrorCount    int
	WarningCount  int
}

// ErrorCategoryMapping maps error patterns to categories
var ErrorCategoryMapping = map[string]string{
	"invalid YAML":            "YAML_SYNTAX",
	"yaml:":                   "YAML_SYNTAX",
	"is required":             "MISSING_REQUIRED",
	"must have":               "MISSING_REQUIREMENT",
	"duplicate":               "DUPLICATE_NAME",
	"depends on unknown job":  "REFERENCE_ERROR",
	"dependency cycle":        "DEPENDENCY_CYCLE",
	"invalid cron expression": "CRON_SYNTAX",
	"invalid condition":       "INVALID_CONDITION",
	"invalid trigger":         "TRIGGER_ERROR",
	"matrix leg":              "MATRIX_ERROR",
	"maxParallel":             "STRATEGY_ERROR",
	"unknown task":            "UNKNOWN_TASK",
	"unrecognized":            "UNKNOWN_KEY",
}

// Common YAML indentation error patterns
var indentationPatterns = []string{
	"mapping values are not allowed in this context",
	"did not find expected key",
	"block sequence entries are not allowed",
	"could not find expected ':'",
	"invalid leading UTF-8 octet",
}

// Common hint templates
var hintTemplates = map[string]string{
	"YAML_SYNTAX":      "Check your YAML indentation. Each level should be indented with 2 spaces.\n       Make sure the structure follows the pipeline file format.",
	"MISSING_REQUIRED": "Add the required field to complete the pipeline definition.",
	"MISSING_FIELD":    "Add the required field '%s' to your pipeline definition.",
	"DUPLICATE_NAME":   "Job and leg names must be unique within a pipeline. Rename one of the duplicates.",
	"REFERENCE_ERROR":  "dependsOn entries must name jobs defined in the same pipeline.",
	"DEPENDENCY_CYCLE": "Job dependencies must form a directed acyclic graph. Break the cycle by removing one dependsOn entry.",
	"CRON_SYNTAX":      "Schedules use standard five-field cron expressions, e.g. \"0 3 * * *\" for 3am daily.",
	"INVALID_CONDITION": "Step conditions must be one of: succeeded, failed, always, succeededOrFailed.",
	"TRIGGER_ERROR":    "A trigger is either a branch list (- main) or a mapping with branches.include / branches.exclude.",
	"UNKNOWN_TASK":     "Built-in tasks are use-python, index-auth and publish. Script steps use 'script:' instead.",
}

// NewErrorFormatter creates a new error formatter
func NewErrorFormatter(filename string, data []byte) *ErrorFormatter {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = 80 // Default width if can't detect terminal
	}

	return &ErrorFormatter{
		FileName:      filename,
		FileData:      data,
		ContextLines:  1,
		OutputFormat:  "text",
		StartTime:     time.Now(),
		TerminalWidth: width,
	}
}

// PrintErrorHeader prints a header for errors
func (f *ErrorFormatter) PrintErrorHeader() {
	if f.OutputFormat == "json" {
		return
	}

	// Only print once per file
	if len(f.Errors) > 0 {
		return
	}

	fmt.Println()
	divider := strings.Repeat("─", f.TerminalWidth)
	ErrorColor.Println("× VALIDATION FAILED", FileColor.Sprintf(f.FileName))
	fmt.Println(divider)
	fmt.Println()
}

// ExtractLineNumber tries to extract a line number from an error message
func (f *ErrorFormatter) ExtractLineNumber(errStr string) int {
	lineRegexes := []*regexp.Regexp{
		regexp.MustCompile(`line (\d+)`),
		regexp.MustCompile(`line: (\d+)`),
		regexp.MustCompile(`line:(\d+)`),
	}

	for _, re := range lineRegexes {
		matches := re.FindStringSubmatch(errStr)
		if len(matches) > 1 {
			if num, err := strconv.Atoi(matches[1]); err == nil {
				return num
			}
		}
	}

	return 0
}

// Categorize maps an error message onto a category slug
func (f *ErrorFormatter) Categorize(errStr string) string {
	lower := strings.ToLower(errStr)
	for pattern, category := range ErrorCategoryMapping {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return category
		}
	}
	for _, pattern := range indentationPatterns {
		if strings.Contains(errStr, pattern) {
			return "YAML_SYNTAX"
		}
	}
	return "GENERAL_ERROR"
}

// extractLineContext gets the line and its surrounding context
func (f *ErrorFormatter) extractLineContext(lineNum int) (string, string, string) {
	if f.FileData == nil || lineNum <= 0 {
		return "", "", ""
	}

	scanner := bufio.NewScanner(bytes.NewReader(f.FileData))
	var before []string
	var current string
	var after []string
	lineCount := 0

	for scanner.Scan() {
		lineCount++
		if lineCount < lineNum-f.ContextLines {
			continue
		}
		if lineCount == lineNum {
			current = scanner.Text()
		} else if lineCount > lineNum-f.ContextLines && lineCount < lineNum {
			before = append(before, scanner.Text())
		} else if lineCount > lineNum && lineCount <= lineNum+f.ContextLines {
			after = append(after, scanner.Text())
		} else if lineCount > lineNum+f.ContextLines {
			break
		}
	}

	return strings.Join(before, "\n"), current, strings.Join(after, "\n")
}

// GenerateHint creates a hint based on the error message and category
func (f *ErrorFormatter) GenerateHint(errStr, category string) string {
	if strings.Contains(errStr, "is required") || strings.Contains(errStr, "missing required field") {
		if fieldName := extractFieldName(errStr); fieldName != "" {
			return fmt.Sprintf(hintTemplates["MISSING_FIELD"], fieldName)
		}
		return hintTemplates["MISSING_REQUIRED"]
	}

	if hint, ok := hintTemplates[category]; ok {
		return hint
	}
	return ""
}

// extractFieldName pulls a field name out of common error shapes
func extractFieldName(errStr string) string {
	fieldRegexes := []*regexp.Regexp{
		regexp.MustCompile(`field ([a-zA-Z0-9_.-]+) is`),
		regexp.MustCompile(`field '([a-zA-Z0-9_.-]+)'`),
		regexp.MustCompile(`([a-zA-Z0-9_.-]+) is required`),
	}

	for _, re := range fieldRegexes {
		matches := re.FindStringSubmatch(errStr)
		if len(matches) > 1 {
			return matches[1]
		}
	}
	return ""
}

// AddError adds a new error to the formatter
func (f *ErrorFormatter) AddError(err ValidationError) {
	f.Errors = append(f.Errors, err)
	if err.ErrorType == ErrorType {
		f.ErrorCount++
	} else if err.ErrorType == WarningType {
		f.WarningCount++
	}
}

// PrintError prints an error with source context
func (f *ErrorFormatter) PrintError(errStr string, lineNum int) {
	f.printError("", errStr, lineNum)
}

// PrintPipelineError prints an error attributed to a named pipeline
func (f *ErrorFormatter) PrintPipelineError(pipelineName, errStr string, lineNum int) {
	f.printError(pipelineName, errStr, lineNum)
}

func (f *ErrorFormatter) printError(pipelineName, errStr string, lineNum int) {
	category := f.Categorize(errStr)
	hint := f.GenerateHint(errStr, category)

	before, current, after := f.extractLineContext(lineNum)

	if f.OutputFormat == "json" {
		contextString := ""
		if current != "" {
			if before != "" {
				contextString += before + "\n"
			}
			contextString += current
			if after != "" {
				contextString += "\n" + after
			}
		}

		f.AddError(ValidationError{
			FileName:     f.FileName,
			LineNumber:   lineNum,
			Message:      errStr,
			ErrorType:    ErrorType,
			Category:     category,
			Hint:         hint,
			PipelineName: pipelineName,
			Context:      contextString,
		})
		return
	}

	indent := "  "
	if pipelineName != "" {
		FileColor.Printf("Pipeline '%s':\n", pipelineName)
	}

	if lineNum > 0 {
		LineColor.Printf("► Line %d:\n", lineNum)

		if before != "" {
			lines := strings.Split(before, "\n")
			lineStart := lineNum - len(lines)
			for i, line := range lines {
				ContextColor.Printf("%d │ %s\n", lineStart+i, line)
			}
		}

		CodeColor.Printf("%d │ %s\n", lineNum, current)

		if after != "" {
			lines := strings.Split(after, "\n")
			for i, line := range lines {
				ContextColor.Printf("%d │ %s\n", lineNum+i+1, line)
			}
		}

		fmt.Println()
	}

	ErrorColor.Printf("%sError: %s\n", indent, errStr)
	if hint != "" {
		HintColor.Printf("%sHint: %s\n", indent, hint)
	}
	fmt.Println()

	f.AddError(ValidationError{
		FileName:     f.FileName,
		LineNumber:   lineNum,
		Message:      errStr,
		ErrorType:    ErrorType,
		Category:     category,
		Hint:         hint,
		PipelineName: pipelineName,
	})
}

// FormatAsJSON formats all errors as a JSON string
func (f *ErrorFormatter) FormatAsJSON() string {
	result := map[string]interface{}{
		"filename":      f.FileName,
		"errors":        f.Errors,
		"error_count":   f.ErrorCount,
		"warning_count": f.WarningCount,
		"time":          time.Since(f.StartTime).Seconds(),
		"success":       f.ErrorCount == 0,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"Failed to marshal JSON: %s"}`, err.Error())
	}

	return string(jsonBytes)
}

// PrintErrorSummary prints a summary of all errors grouped by category
func (f *ErrorFormatter) PrintErrorSummary() {
	if f.OutputFormat == "json" || len(f.Errors) == 0 {
		return
	}

	byCategory := make(map[string][]ValidationError)
	for _, err := range f.Errors {
		byCategory[err.Category] = append(byCategory[err.Category], err)
	}

	var categories []string
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	fmt.Println()
	HeadingColor.Printf("Error summary for %s:\n", f.FileName)
	for _, category := range categories {
		errs := byCategory[category]
		fmt.Printf("  %s: %d\n", category, len(errs))
	}
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	SuccessColor.Println(message)
}

// PrintValidateSummary prints the closing stats of a validate pass
func PrintValidateSummary(fileCount, pipelineCount, errorCount int, duration time.Duration) {
	fmt.Println()
	HeadingColor.Println("Validation summary:")
	fmt.Printf("  Files:     %d\n", fileCount)
	fmt.Printf("  Pipelines: %d\n", pipelineCount)
	fmt.Printf("  Errors:    %d\n", errorCount)
	fmt.Printf("  Time:      %.2fs\n", duration.Seconds())
	fmt.Println()

	if errorCount == 0 {
		SuccessColor.Println("✓ All pipeline files passed validation!")
	} else {
		ErrorColor.Printf("✗ Found %d validation errors\n", errorCount)
	}
}
