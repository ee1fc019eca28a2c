package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/genkit"
)

// NewGenkit initializes a Genkit instance with no plugins for offline tests.
func NewGenkit(t *testing.T) *genkit.Genkit {
	t.Helper()
	return genkit.Init(context.Background())
}
