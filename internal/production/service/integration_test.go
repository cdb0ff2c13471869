package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/internal/production/events"
	"github.com/atelier/production-backend/internal/production/repository"
	"github.com/atelier/production-backend/internal/production/service"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/atelier/production-backend/pkg/messaging"
	"github.com/atelier/production-backend/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	ctx := context.Background()

	if !testing.Short() && testutil.DockerAvailable() {
		var err error
		suite, err = testutil.NewIntegrationSuite(ctx, repository.Schema,
			"movement_records", "production_units", "material_batches")
		if err != nil {
			log.Printf("integration suite unavailable: %v", err)
			suite = nil
		}
	}

	code := m.Run()
	suite.Cleanup()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func TestIntegration_ConcurrentAllocationsNeverOversell(t *testing.T) {
	suite.Require(t)
	ctx := context.Background()
	suite.Reset(t, ctx)

	batchRepo := repository.NewBatchRepository(suite.DB)
	for _, qty := range []string{"6", "4"} {
		require.NoError(t, batchRepo.Create(ctx, &domain.MaterialBatch{
			MaterialRef: "SON-200", Category: "lin", Quantity: decimal.RequireFromString(qty), Unit: "m",
		}))
	}

	pub := testutil.NewMockPublisher()
	ledger := service.NewLedgerService(suite.DB, batchRepo, events.New(pub, suite.Logger), suite.Logger)

	// Each request fits the 10 m in stock on its own, both together do not.
	requested := decimal.NewFromInt(7)
	results := make([]error, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = ledger.AllocateMaterial(ctx, "SON-200", requested)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, errors.ErrInsufficientStock) || errors.Is(err, errors.ErrConflict),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	groups, err := ledger.ListMaterialStock(ctx, domain.StockFilter{MaterialRef: "SON-200"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "3", groups[0].Total.String())
	assert.Len(t, pub.Events(messaging.EventMaterialAllocated), 1)
}

func TestIntegration_AllocationMatchesUntrimmedReference(t *testing.T) {
	suite.Require(t)
	ctx := context.Background()
	suite.Reset(t, ctx)

	// Rows written before references were trimmed on intake.
	_, err := suite.DB.ExecContext(ctx,
		`INSERT INTO material_batches (id, material_ref, category, quantity, unit)
		 VALUES ('3c1d2e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f', ' SON-300 ', 'lin', 5, 'm')`)
	require.NoError(t, err)

	ledger := service.NewLedgerService(suite.DB, repository.NewBatchRepository(suite.DB),
		events.New(testutil.NewMockPublisher(), suite.Logger), suite.Logger)

	alloc, err := ledger.AllocateMaterial(ctx, "SON-300", decimal.NewFromInt(2))
	require.NoError(t, err)
	require.Len(t, alloc.Consumed, 1)
	assert.Equal(t, "3", alloc.Consumed[0].Remaining.String())
}
