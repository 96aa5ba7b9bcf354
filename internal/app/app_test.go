package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions/internal/platform/config"
)

func memoryConfig() config.Server {
	return config.Server{
		Addr: ":8080",
		Gateway: config.GatewayConfig{
			KeyID:     "rzp_test_key",
			KeySecret: "secret",
			Simulate:  true,
		},
		Payment: config.PaymentConfig{SequenceNode: 1},
		Auth: config.AuthConfig{
			JWTSigningKey: "test-key",
			Issuer:        "admissions",
			TokenTTL:      time.Hour,
			BcryptCost:    4,
		},
		Receipt: config.ReceiptConfig{IssuerName: "Example University"},
	}
}

func TestBuildInMemory(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, memoryConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Relay)
	require.NotNil(t, a.Simulator)
	assert.NoError(t, a.Health(ctx))

	now := time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
	period, err := a.SeedDemo(ctx, now, SeedOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2025-26", period.AcademicYear)

	courses, err := a.Admission.ListCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, courses, 3)
}

func TestSimulatorURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/gateway-sim", simulatorURL(":8080"))
	assert.Equal(t, "http://localhost:9000/gateway-sim", simulatorURL("localhost:9000"))
}

func TestAcademicYear(t *testing.T) {
	assert.Equal(t, "2024-25", academicYear(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-26", academicYear(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
}
