package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
)

// ExportCSV writes all reports of the owner, newest first.
// The owner's lock is held across pages so writes cannot shift the offsets.
func (s *Service) ExportCSV(ctx context.Context, owner userctx.Owner) ([]byte, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(string(owner.Kind) + ":" + owner.ID)
	defer unlock()

	var all []ReportDTO
	for page := 1; ; page++ {
		p, err := s.ListReports(ctx, owner, ListParams{Page: page, PageSize: s.maxPage})
		if err != nil {
			return nil, err
		}
		all = append(all, p.Reports...)
		if page >= p.Pages {
			break
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"id", "title", "created_at", "consumption_kwh", "bill", "area_m2",
		"heating_type", "building_type", "tier", "score", "monthly_savings",
		"annual_savings", "percentage", "investment", "roi_years", "co2_reduction_tonnes",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, r := range all {
		row := []string{
			r.ID.String(),
			r.Title,
			r.CreatedAt.UTC().Format(time.RFC3339),
			formatFloat(r.Profile.ConsumptionKWh),
			formatFloat(r.Profile.Bill),
			formatFloat(r.Profile.AreaM2),
			string(r.Profile.HeatingType),
			string(r.Profile.BuildingType),
			string(r.Rating.Tier),
			strconv.Itoa(r.Rating.Score),
			formatFloat(r.Projection.MonthlySavings),
			formatFloat(r.Projection.AnnualSavings),
			strconv.Itoa(r.Projection.Percentage),
			formatFloat(r.Projection.Investment),
			r.ROIDisplay,
			formatFloat(r.Projection.CO2ReductionTonnes),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// минимальная точная запись, как в JSON
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
