package sched

import (
	"context"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

const JobOrphans = "orphans"

// OrphanLinker attaches PAID purchases to accounts created after payment.
type OrphanLinker struct {
	linker usecase.LinkerUseCase
}

var _ Job = (*OrphanLinker)(nil)

func NewOrphanLinker(linker usecase.LinkerUseCase) *OrphanLinker {
	return &OrphanLinker{linker: linker}
}

func (w *OrphanLinker) Name() string { return JobOrphans }

func (w *OrphanLinker) Run(ctx context.Context) (int, error) {
	res, err := w.linker.SweepOrphans(ctx)
	return res.Linked, err
}
