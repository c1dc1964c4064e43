package reports

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/scoring"
	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
	"github.com/google/uuid"
)

func sharedAccountReport(t *testing.T) (Report, uuid.UUID) {
	t.Helper()
	accID := uuid.New()
	occupants := 3
	publicID := "5Ub3Wyes3yq"
	created := time.Date(2026, 3, 10, 12, 0, 0, 123456789, time.UTC)

	r := Report{
		ID:        uuid.New(),
		Owner:     userctx.AccountOwner(accID.String()),
		Title:     "Office, 2nd floor",
		IsPublic:  true,
		PublicID:  &publicID,
		CreatedAt: created,
		UpdatedAt: created.Add(90 * time.Minute),
	}
	profile := scoring.EnergyProfile{
		ConsumptionKWh: 1234.56,
		Bill:           123.45,
		AreaM2:         87.3,
		HeatingType:    scoring.HeatingHeatPump,
		BuildingType:   scoring.BuildingOffice,
		Occupants:      &occupants,
	}
	if err := assemble(&r, profile); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if r.Projection.ROIYears == nil {
		t.Fatal("expected a defined payback")
	}
	return r, accID
}

func TestReportJSONRoundTrip(t *testing.T) {
	original, _ := sharedAccountReport(t)

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round trip changed the report:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestReportJSONRoundTripWithExpiry(t *testing.T) {
	original, _ := sharedAccountReport(t)
	original.Owner = userctx.GuestOwner(uuid.NewString())
	original.IsPublic = false
	original.PublicID = nil
	expiry := original.UpdatedAt.Add(24 * time.Hour)
	original.ExpiresAt = &expiry

	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round trip changed the report:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestReportRowRoundTrip(t *testing.T) {
	original, accID := sharedAccountReport(t)

	row, err := toRow(original, accID)
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	if row.AnnualSavings != original.Projection.AnnualSavings || row.CO2Savings != original.Projection.CO2ReductionTonnes {
		t.Fatalf("flat columns differ from the payload: %+v", row)
	}

	back, err := fromRow(row)
	if err != nil {
		t.Fatalf("fromRow: %v", err)
	}
	if !reflect.DeepEqual(original, back) {
		t.Fatalf("row round trip changed the report:\n got %+v\nwant %+v", back, original)
	}
}
