package memory

import (
	"testing"

	"github.com/JakeFAU/leadcapture/internal/outbox"
	"github.com/JakeFAU/leadcapture/internal/outbox/outboxtest"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	outboxtest.RunContract(t, func(t *testing.T) outbox.Store {
		t.Helper()
		return NewStore()
	})
}
