package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/zeebo/errs"

	"mbutil/internal/mbtiles"
)

// Report prints the metadata of the container at input sorted by key, as
// "key: value" lines or, with asJSON, as one JSON object.
func Report(w io.Writer, input string, asJSON bool) (err error) {
	store, err := mbtiles.Open(input, mbtiles.ReadOnly)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, store.Close()) }()

	meta, err := store.AllMetadata()
	if err != nil {
		return err
	}

	if asJSON {
		b, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return errs.Wrap(err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return IOError.Wrap(err)
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s: %s\n", k, meta[k]); err != nil {
			return IOError.Wrap(err)
		}
	}
	return nil
}
