package chatcore

import (
	"testing"

	"github.com/google/uuid"
)

func newTestUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}
