package service

import (
	"context"
	"sort"
	"strings"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/internal/production/repository"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// Aggregation views accepted by Aggregate.
const (
	ViewByClient   = "byClient"
	ViewByStatus   = "byStatus"
	ViewByCategory = "byCategory"
)

// UncategorizedLabel replaces an empty category in grouped views.
const UncategorizedLabel = "uncategorized"

// Aggregator derives grouped views from a snapshot of units and batches.
type Aggregator interface {
	GroupByClient(units []*domain.ProductionUnit) []ClientGroup
	GroupByStatus(units []*domain.ProductionUnit) map[domain.Status]int
	GroupByCategory(units []*domain.ProductionUnit) map[string]int
	StockByCategory(batches []*domain.MaterialBatch) []CategoryStock
}

// ClientGroup is one client's units, oldest reception first.
type ClientGroup struct {
	Client string                   `json:"client"`
	Count  int                      `json:"count"`
	Units  []*domain.ProductionUnit `json:"units"`
}

// CategoryStock is the available stock of one batch category in one unit of measure.
type CategoryStock struct {
	Category  string          `json:"category"`
	Unit      string          `json:"unit"`
	Total     decimal.Decimal `json:"total"`
	Batches   int             `json:"batches"`
	Materials int             `json:"materials"`
}

// SnapshotAggregator is the Aggregator used by the service. It keeps no state
// between calls.
type SnapshotAggregator struct {
	UnknownClient string
}

var _ Aggregator = SnapshotAggregator{}

// GroupByClient groups units by client name, sorted by name. Units without a
// client are gathered under UnknownClient.
func (a SnapshotAggregator) GroupByClient(units []*domain.ProductionUnit) []ClientGroup {
	index := make(map[string]int)
	groups := []ClientGroup{}
	for _, u := range units {
		client := strings.TrimSpace(u.ClientName)
		if client == "" {
			client = a.UnknownClient
		}
		i, ok := index[client]
		if !ok {
			i = len(groups)
			index[client] = i
			groups = append(groups, ClientGroup{Client: client})
		}
		groups[i].Units = append(groups[i].Units, u)
	}

	for i := range groups {
		g := &groups[i]
		sort.SliceStable(g.Units, func(x, y int) bool {
			ux, uy := g.Units[x], g.Units[y]
			if !ux.ReceivedAt.Equal(uy.ReceivedAt) {
				return ux.ReceivedAt.Before(uy.ReceivedAt)
			}
			return ux.ID < uy.ID
		})
		g.Count = len(g.Units)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Client < groups[j].Client
	})
	return groups
}

// GroupByStatus counts units per status. Every workflow status and LEGACY
// is present, with zero when no unit holds it.
func (a SnapshotAggregator) GroupByStatus(units []*domain.ProductionUnit) map[domain.Status]int {
	counts := make(map[domain.Status]int, len(domain.Statuses)+1)
	for _, s := range domain.Statuses {
		counts[s] = 0
	}
	counts[domain.StatusLegacy] = 0

	for _, u := range units {
		status := u.Status
		if !status.Valid() {
			status = domain.StatusLegacy
		}
		counts[status]++
	}
	return counts
}

// GroupByCategory counts units per product category.
func (a SnapshotAggregator) GroupByCategory(units []*domain.ProductionUnit) map[string]int {
	counts := make(map[string]int)
	for _, u := range units {
		category := strings.TrimSpace(u.Category)
		if category == "" {
			category = UncategorizedLabel
		}
		counts[category]++
	}
	return counts
}

// StockByCategory totals available stock per category and unit of measure.
// It uses the same material grouping as allocation.
func (a SnapshotAggregator) StockByCategory(batches []*domain.MaterialBatch) []CategoryStock {
	type key struct{ category, unit string }
	totals := make(map[key]*CategoryStock)
	materials := make(map[key]map[string]struct{})

	for _, group := range GroupByMaterial(FilterAvailable(batches)) {
		for _, b := range group.Batches {
			category := strings.TrimSpace(b.Category)
			if category == "" {
				category = UncategorizedLabel
			}
			k := key{category, b.Unit}
			entry, ok := totals[k]
			if !ok {
				entry = &CategoryStock{Category: category, Unit: b.Unit, Total: decimal.Zero}
				totals[k] = entry
				materials[k] = make(map[string]struct{})
			}
			entry.Total = entry.Total.Add(b.Quantity)
			entry.Batches++
			materials[k][group.MaterialRef] = struct{}{}
		}
	}

	out := make([]CategoryStock, 0, len(totals))
	for k, entry := range totals {
		entry.Materials = len(materials[k])
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}

// DashboardStats is the workshop overview
type DashboardStats struct {
	TotalUnits   int                   `json:"total_units"`
	InProgress   int                   `json:"in_progress"`
	ToShip       int                   `json:"to_ship"`
	StatusCounts map[domain.Status]int `json:"status_counts"`
	Stock        []CategoryStock       `json:"stock"`
}

// ReportingService computes grouped views fresh from storage on every call.
type ReportingService struct {
	unitRepo   *repository.UnitRepository
	batchRepo  *repository.BatchRepository
	aggregator Aggregator
	logger     *logger.Logger
}

// NewReportingService creates a new reporting service
func NewReportingService(
	unitRepo *repository.UnitRepository,
	batchRepo *repository.BatchRepository,
	aggregator Aggregator,
	log *logger.Logger,
) *ReportingService {
	return &ReportingService{
		unitRepo:   unitRepo,
		batchRepo:  batchRepo,
		aggregator: aggregator,
		logger:     log.WithComponent("reporting"),
	}
}

// Aggregate returns the named view over the units matching filter.
func (s *ReportingService) Aggregate(ctx context.Context, view string, filter domain.UnitFilter) (interface{}, error) {
	switch view {
	case ViewByClient, ViewByStatus, ViewByCategory:
	default:
		return nil, errors.BadRequest("unknown view " + view + ", expected byClient, byStatus or byCategory")
	}

	units, err := s.unitRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch view {
	case ViewByClient:
		return s.aggregator.GroupByClient(units), nil
	case ViewByStatus:
		return s.aggregator.GroupByStatus(units), nil
	default:
		return s.aggregator.GroupByCategory(units), nil
	}
}

// DashboardStats returns status counts and available stock per category
func (s *ReportingService) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	units, err := s.unitRepo.List(ctx, domain.UnitFilter{})
	if err != nil {
		return nil, err
	}

	batches, err := s.batchRepo.ListAvailable(ctx, domain.StockFilter{})
	if err != nil {
		return nil, err
	}

	counts := s.aggregator.GroupByStatus(units)
	stats := &DashboardStats{
		TotalUnits:   len(units),
		ToShip:       counts[domain.StatusToShip],
		StatusCounts: counts,
		Stock:        s.aggregator.StockByCategory(batches),
	}
	for status, n := range counts {
		if status != domain.StatusToDo && status != domain.StatusToShip &&
			status != domain.StatusShipped && status != domain.StatusLegacy {
			stats.InProgress += n
		}
	}
	return stats, nil
}

// PickingList returns the units waiting to ship grouped by client.
func (s *ReportingService) PickingList(ctx context.Context) ([]ClientGroup, error) {
	units, err := s.unitRepo.List(ctx, domain.UnitFilter{Status: domain.StatusToShip})
	if err != nil {
		return nil, err
	}
	return s.aggregator.GroupByClient(units), nil
}
