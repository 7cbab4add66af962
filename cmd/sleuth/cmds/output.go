package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-go-golems/sleuth/pkg/datapoints"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WriteDataPoints prints the final state of the data points as text, json
// or yaml.
func WriteDataPoints(w io.Writer, format string, points []datapoints.DataPoint) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(points)

	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(points); err != nil {
			return err
		}
		return enc.Close()

	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "DATA POINT\tVALUE\tREFERENCE")
		for _, p := range points {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, orDash(p.Value), orDash(p.Reference))
		}
		return tw.Flush()

	default:
		return errors.Errorf("unknown output format %s (text, json, yaml)", format)
	}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
