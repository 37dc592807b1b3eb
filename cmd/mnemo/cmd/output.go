package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"mnemo/internal/domain"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errNotInitialized() error {
	return fmt.Errorf("%w: run 'mnemo init <folder>' first", domain.ErrNotInitialized)
}
