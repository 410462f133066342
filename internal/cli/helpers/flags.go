package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// AddFormatFlag adds a standard --format/-o flag to a command.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, supportedFormats []OutputFormat) {
	formatNames := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		formatNames[i] = string(f)
	}

	description := fmt.Sprintf("Output format (%s)", strings.Join(formatNames, ", "))
	cmd.Flags().StringVarP(formatVar, "format", "o", string(defaultFormat), description)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatNames, cobra.ShellCompDirectiveNoFileComp
	})
}

// AddDBFlag adds the --db flag selecting the run store file.
func AddDBFlag(cmd *cobra.Command, dbVar *string) {
	cmd.Flags().StringVar(dbVar, "db", "", "Run store database file (.duckdb, .sqlite or .db; default from config store.path)")
	_ = cmd.MarkFlagFilename("db", "duckdb", "sqlite", "sqlite3", "db")
}

// AddDurationKeyFlag adds the --duration-key flag.
func AddDurationKeyFlag(cmd *cobra.Command, keyVar *string) {
	cmd.Flags().StringVar(keyVar, "duration-key", "", "Inclusive duration metric (default from config duration_key)")
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}

	supportedNames := make([]string, len(supported))
	for i, s := range supported {
		supportedNames[i] = string(s)
	}

	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(supportedNames, ", "))
}

// ParseBool parses the true/false command arguments.
func ParseBool(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected true or false, got %q", arg)
	}
}
