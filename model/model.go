package model

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// Entity ids carry their type (txn_, evt_, rfd_, dsp_, frd_, rty_, aud_) so logs
// and audit rows stay readable without a lookup.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}
