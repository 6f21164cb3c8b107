package shared

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DocumentNumber returns a human-facing document number such as DLV-1A2B3C4D.
func DocumentNumber(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(id[:10]))
}

// EntityRef is a stable reference for an entity, used to correlate audit and notification records.
func EntityRef(entity string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", entity, id)))
}
