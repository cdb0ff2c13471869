package handler

import (
	"github.com/go-chi/chi/v5"
)

// Handlers groups every production endpoint handler
type Handlers struct {
	Units   *UnitHandler
	Stock   *StockHandler
	Reports *ReportHandler
}

// Routes mounts the production API on r
func (h Handlers) Routes(r chi.Router) {
	r.Route("/units", func(r chi.Router) {
		r.Get("/", h.Units.List)
		r.Post("/", h.Units.Create)
		r.Post("/stage", h.Units.StartStage)
		r.Post("/ship", h.Units.Ship)
		r.Get("/{id}", h.Units.Get)
		r.Post("/{id}/transition", h.Units.Transition)
		r.Get("/{id}/movements", h.Units.Movements)
	})

	r.Route("/stock", func(r chi.Router) {
		r.Get("/", h.Stock.List)
		r.Post("/batches", h.Stock.CreateBatch)
		r.Post("/allocate", h.Stock.Allocate)
		r.Post("/import", h.Stock.Import)
	})

	r.Get("/aggregate/{view}", h.Reports.Aggregate)
	r.Get("/dashboard/stats", h.Reports.GetStats)
	r.Get("/picking-list.pdf", h.Reports.PickingList)
}
