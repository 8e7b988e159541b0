package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var stdout io.Writer = os.Stdout

// printValue writes v in the selected structured format. It returns false
// for text output so the caller can print a human summary instead.
func printValue(v any) (bool, error) {
	switch output {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so hex encoders and json tags apply.
		raw, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(generic)
	}
	return false, nil
}

func printf(format string, args ...any) {
	fmt.Fprintf(stdout, format, args...)
}
