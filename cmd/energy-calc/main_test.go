package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreJSON(t *testing.T) {
	out, err := runCLI(t, "score", "-c", "2000", "-b", "300", "-a", "80", "--building", "office", "-o", "json")
	if err != nil {
		t.Fatalf("score failed: %v\n%s", err, out)
	}

	var result struct {
		Rating struct {
			Tier string `json:"tier"`
		} `json:"rating"`
		Projection struct {
			AnnualSavings float64 `json:"annual_savings"`
		} `json:"projection"`
		ROIDisplay string `json:"roi_display"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if result.Rating.Tier != "critical" {
		t.Fatalf("tier=%s want critical", result.Rating.Tier)
	}
	if result.Projection.AnnualSavings != 1620 {
		t.Fatalf("annual=%v want 1620", result.Projection.AnnualSavings)
	}
	if result.ROIDisplay == "N/A" {
		t.Fatal("expected a defined payback")
	}
}

func TestScoreRejectsUnknownHeating(t *testing.T) {
	if _, err := runCLI(t, "score", "-c", "350", "-b", "150", "-a", "100", "--heating", "coal", "-o", "text"); err == nil {
		t.Fatal("expected error for unknown heating type")
	}
}

func TestTiersText(t *testing.T) {
	out, err := runCLI(t, "tiers", "-o", "text")
	if err != nil {
		t.Fatalf("tiers failed: %v", err)
	}
	for _, tier := range []string{"excellent", "good", "average", "poor", "critical"} {
		if !strings.Contains(out, tier) {
			t.Errorf("output missing %s:\n%s", tier, out)
		}
	}
}
