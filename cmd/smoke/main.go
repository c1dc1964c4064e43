package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	defaultAPIBase = "http://localhost:8080"
)

var (
	apiBase     string
	guestToken  string
	accessToken string
	client      = &http.Client{Timeout: 30 * time.Second}
	guestReport string
	publicID    string
)

var sampleProfile = map[string]any{
	"consumption_kwh": 350,
	"bill":            150,
	"area_m2":         100,
	"heating_type":    "gas",
	"building_type":   "residential",
}

func main() {
	fmt.Println("=== Energy Optimizer E2E Smoke Test ===")
	fmt.Println()

	apiBase = strings.TrimRight(getEnv("API_BASE_URL", defaultAPIBase), "/")
	fmt.Printf("API Base: %s\n", apiBase)
	fmt.Println()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Healthz", testHealthz},
		{"Calculate", testCalculate},
		{"Create Guest Report", testCreateGuestReport},
		{"Guest Status", testGuestStatus},
		{"Register With Guest Token", testRegister},
		{"List Account Reports", testListAccountReports},
		{"Share Report", testShareReport},
		{"Public Report", testPublicReport},
		{"Stats", testStats},
		{"Export CSV", testExportCSV},
		{"Delete Report", testDeleteReport},
	}

	failed := false
	for i, step := range steps {
		fmt.Printf("[%d/%d] %s... ", i+1, len(steps), step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("❌ FAILED\n")
			fmt.Printf("  Error: %v\n\n", err)
			failed = true
			break
		}
		fmt.Printf("✅ OK\n")
	}

	fmt.Println()
	if failed {
		fmt.Println("❌ SMOKE TEST FAILED")
		os.Exit(1)
	}

	fmt.Println("✅ ALL SMOKE TESTS PASSED")
}

func testHealthz() error {
	resp, err := do("GET", "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusOK)
}

func testCalculate() error {
	resp, err := do("POST", "/v1/calculate", sampleProfile)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var result struct {
		Rating struct {
			Tier string `json:"tier"`
		} `json:"rating"`
		ROIDisplay string `json:"roi_display"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if result.Rating.Tier != "excellent" {
		return fmt.Errorf("unexpected tier %q", result.Rating.Tier)
	}
	return nil
}

func testCreateGuestReport() error {
	resp, err := do("POST", "/v1/reports", map[string]any{
		"title":   "Smoke guest report",
		"profile": sampleProfile,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusCreated); err != nil {
		return err
	}

	guestToken = resp.Header.Get("X-Guest-Token")
	if guestToken == "" {
		return fmt.Errorf("X-Guest-Token header missing")
	}

	var report struct {
		ID        string  `json:"id"`
		ExpiresAt *string `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if report.ExpiresAt == nil {
		return fmt.Errorf("guest report has no expires_at")
	}
	guestReport = report.ID
	return nil
}

func testGuestStatus() error {
	resp, err := do("GET", "/v1/guest/status", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var status struct {
		Reports int `json:"reports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if status.Reports != 1 {
		return fmt.Errorf("guest reports=%d want 1", status.Reports)
	}
	return nil
}

func testRegister() error {
	email := fmt.Sprintf("smoke+%d@example.com", time.Now().UnixNano())
	resp, err := do("POST", "/v1/auth/register", map[string]any{
		"email":       email,
		"password":    "smoke-password",
		"name":        "Smoke",
		"guest_token": guestToken,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusCreated); err != nil {
		return err
	}

	var auth struct {
		AccessToken     string `json:"access_token"`
		MigratedReports int    `json:"migrated_reports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if auth.AccessToken == "" {
		return fmt.Errorf("empty access token")
	}
	if auth.MigratedReports != 1 {
		return fmt.Errorf("migrated_reports=%d want 1", auth.MigratedReports)
	}
	accessToken = auth.AccessToken
	return nil
}

func testListAccountReports() error {
	resp, err := do("GET", "/v1/reports?sort_by=created_at&order=desc", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var page struct {
		Reports []struct {
			ID string `json:"id"`
		} `json:"reports"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if page.Total != 1 || len(page.Reports) != 1 || page.Reports[0].ID != guestReport {
		return fmt.Errorf("migrated report not listed: total=%d", page.Total)
	}
	return nil
}

func testShareReport() error {
	resp, err := do("POST", "/v1/reports/"+guestReport+"/share", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var share struct {
		PublicID string `json:"public_id"`
		URL      string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&share); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if share.PublicID == "" || !strings.HasSuffix(share.URL, share.PublicID) {
		return fmt.Errorf("unexpected share result %+v", share)
	}
	publicID = share.PublicID
	return nil
}

func testPublicReport() error {
	req, err := http.NewRequest("GET", apiBase+"/v1/public/reports/"+publicID, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusOK)
}

func testStats() error {
	resp, err := do("GET", "/v1/reports/stats", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	var stats struct {
		TotalReports int64 `json:"total_reports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	if stats.TotalReports != 1 {
		return fmt.Errorf("total_reports=%d want 1", stats.TotalReports)
	}
	return nil
}

func testExportCSV() error {
	resp, err := do("GET", "/v1/reports/export", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := expectStatus(resp, http.StatusOK); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if !bytes.Contains(body, []byte("Smoke guest report")) {
		return fmt.Errorf("export does not contain the report")
	}
	return nil
}

func testDeleteReport() error {
	resp, err := do("DELETE", "/v1/reports/"+guestReport, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return expectStatus(resp, http.StatusNoContent)
}

// do отправляет запрос с текущей гостевой сессией или bearer-токеном
func do(method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, apiBase+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else if guestToken != "" {
		req.Header.Set("X-Guest-Token", guestToken)
	}

	return client.Do(req)
}

func expectStatus(resp *http.Response, want int) error {
	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status=%d want %d body=%s", resp.StatusCode, want, string(body))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
