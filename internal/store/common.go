package store

import (
	"errors"
	"strconv"

	"github.com/google/uuid"
)

var errCapacityExceeded = errors.New("capacity exceeded")

// idNamespace is the fixed UUID namespace checked into configuration (not
// generated at runtime) so identical integer IDs across restarts always
// derive identical UUID v5 values for backends that require UUID point
// IDs.
var idNamespace = uuid.MustParse("6f35f8c0-9b0e-4f1a-8e2c-3a7d6c1b9f20")

// idToUUID derives a deterministic UUID v5 from an integer ID.
func idToUUID(id int64) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(strconv.FormatInt(id, 10)))
}
