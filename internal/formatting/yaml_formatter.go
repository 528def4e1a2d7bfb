package formatting

import (
	"io"

	"gopkg.in/yaml.v3"
)

func renderYAML(w io.Writer, data Table) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data.Records()); err != nil {
		return err
	}
	return enc.Close()
}
