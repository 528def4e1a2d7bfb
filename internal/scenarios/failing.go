package scenarios

import (
	"errors"
	"net/http"

	"conformance/internal/deployment"
	"conformance/internal/ingress"
	"conformance/internal/services"
	"conformance/internal/testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingClass() testing.TestClass {
	return testing.TestClass{
		Name: "Failing",
		Tags: []string{TagFailing},
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.Failing))
		},
		Methods: []testing.TestCase{
			{Name: "terminalErrorIsPropagated", Fn: terminalErrorPropagated},
		},
	}
}

func terminalErrorPropagated(t *testing.T) {
	message := "my-error-" + uuid.NewString()

	err := services.NewFailingClient(t.Ingress(), services.RandomKey()).TerminallyFailingCall(t.Context(), message)
	require.Error(t, err)

	var statusErr *ingress.StatusError
	require.True(t, errors.As(err, &statusErr), "call returned %v", err)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Message, message)
}
