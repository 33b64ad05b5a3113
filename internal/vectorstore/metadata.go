package vectorstore

import (
	"fmt"
	"strconv"

	"github.com/nyc-landmarks/vectordb/internal/models"
)

// Error reports a data-plane operation that failed after the retry
// budget was spent. Err already names the operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "vectorstore: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// normalizeMetadata enforces the flat metadata contract and applies
// the write representation: numeric scalars become strings, booleans
// stay booleans, string lists pass through. Empty values are dropped;
// anything nested aborts the write.
func normalizeMetadata(meta models.FlatMetadata) (models.FlatMetadata, error) {
	out := make(models.FlatMetadata, len(meta))
	for k, v := range meta {
		switch x := v.(type) {
		case nil:
			continue
		case string:
			if x == "" {
				continue
			}
			out[k] = x
		case bool:
			out[k] = x
		case int:
			out[k] = strconv.Itoa(x)
		case int64:
			out[k] = strconv.FormatInt(x, 10)
		case float32:
			out[k] = strconv.FormatFloat(float64(x), 'f', -1, 32)
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case []string:
			if len(x) == 0 {
				continue
			}
			out[k] = x
		default:
			return nil, fmt.Errorf("metadata key %q holds a non-flat %T value", k, v)
		}
	}
	return out, nil
}
