package intake

import "errors"

// ErrSchemaUnavailable is returned when the question schema cannot be
// fetched or decoded. Callers must not allow submission until a schema has
// loaded.
var ErrSchemaUnavailable = errors.New("question schema unavailable")
