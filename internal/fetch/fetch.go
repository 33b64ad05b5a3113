// Package fetch retrieves landmark source documents: designation report
// PDFs, Wikipedia article bodies, and article quality predictions.
package fetch

import "errors"

// ErrNoText reports that a source document yielded no extractable text
// after cleaning. Processors treat it as an empty source, not a crash.
var ErrNoText = errors.New("fetch: no extractable text")
