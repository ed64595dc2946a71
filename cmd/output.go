package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/goccy/go-yaml"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"

	"github.com/darmiel/taskdeck/pkg/client"
)

var (
	greenCheck = color.GreenString("✔")
	redCross   = color.RedString("✘")

	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
)

// BeQuietError signals that the failure was already reported.
type BeQuietError struct{}

func (BeQuietError) Error() string {
	return "command failed"
}

func logSuccess(format string, args ...any) {
	log.Info().Msgf("%s %s", greenCheck, fmt.Sprintf(format, args...))
}

// logError reports err with its classification and returns BeQuietError.
func logError(err error, msg string) error {
	ev := log.Error().Err(err)
	var cErr *client.Error
	if errors.As(err, &cErr) {
		ev = ev.Str("kind", string(cErr.Kind))
		if cErr.CorrelationID != "" {
			ev = ev.Str("correlation_id", cErr.CorrelationID)
		}
	}
	ev.Msgf("%s %s", redCross, msg)
	return BeQuietError{}
}

func applyTableFormat(t table.Writer) {
	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)
}

const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

// printStructured writes v as yaml or json. It reports false for the table format.
func printStructured(format string, v any) (bool, error) {
	switch format {
	case outputYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return true, fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return true, err
	case outputJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputTable, "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q (expected table, yaml or json)", format)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
