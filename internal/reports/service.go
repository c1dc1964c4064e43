package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/analytics"
	"github.com/Carnacky79/energy-optimizer-v2/internal/quota"
	"github.com/Carnacky79/energy-optimizer-v2/internal/scoring"
	"github.com/Carnacky79/energy-optimizer-v2/internal/storage"
	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	ErrInvalidArgument      = scoring.ErrInvalidArgument
	ErrReportNotFound       = errors.New("report not found")
	ErrQuotaExceeded        = errors.New("report quota exceeded")
	ErrShareRequiresAccount = errors.New("sharing requires an account")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrOwnerNotFound        = errors.New("account no longer exists")
)

// Store: хранилище аккаунтов и их отчётов
type Store interface {
	storage.ReportsStorage
	storage.AccountsStorage
}

// EventEmitter accepts analytics events without blocking.
type EventEmitter interface {
	Emit(analytics.Event)
}

// Options configures a Service.
type Options struct {
	PublicBaseURL string
	PageSizeMax   int
	SnowflakeNode int64
	GuestMax      int
}

// Service is the report lifecycle manager. Guest owners go to the GuestStore,
// accounts go to durable storage.
type Service struct {
	store    Store
	guests   *GuestStore
	quota    quota.Checker
	events   EventEmitter
	ids      *snowflake.Node
	baseURL  string
	maxPage  int
	maxGuest int
	locks    *keyedMutex
	now      func() time.Time
}

// NewService creates a new reports service
func NewService(store Store, guests *GuestStore, checker quota.Checker, events EventEmitter, opts Options) (*Service, error) {
	node, err := snowflake.NewNode(opts.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	if checker == nil {
		checker = quota.Unlimited{}
	}
	maxPage := opts.PageSizeMax
	if maxPage <= 0 {
		maxPage = 100
	}
	return &Service{
		store:    store,
		guests:   guests,
		quota:    checker,
		events:   events,
		ids:      node,
		baseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		maxPage:  maxPage,
		maxGuest: opts.GuestMax,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func (s *Service) emit(ev analytics.Event) {
	if s.events != nil {
		s.events.Emit(ev)
	}
}

// Calculate runs the scoring engine without persisting anything.
func (s *Service) Calculate(profile scoring.EnergyProfile) (scoring.Assessment, error) {
	return scoring.Evaluate(profile)
}

func accountID(owner userctx.Owner) (uuid.UUID, error) {
	id, err := uuid.Parse(owner.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid account id", ErrInvalidArgument)
	}
	return id, nil
}

func validateOwner(owner userctx.Owner) error {
	if !owner.Valid() {
		return fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}
	return nil
}

func normalizeTitle(title string, now time.Time) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "Report " + now.Format("2006-01-02"), nil
	}
	if len([]rune(title)) > MaxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidArgument, MaxTitleLength)
	}
	return title, nil
}

// assemble пересчитывает все производные значения из профиля
func assemble(r *Report, profile scoring.EnergyProfile) error {
	a, err := scoring.Evaluate(profile)
	if err != nil {
		return err
	}
	r.Profile = profile.Normalize()
	r.Rating = a.Rating
	r.Projection = a.Projection
	r.Recommendations = a.Recommendations
	return nil
}

func toRow(r Report, accountID uuid.UUID) (storage.ReportRow, error) {
	raw, err := json.Marshal(payload{
		Profile:         r.Profile,
		Rating:          r.Rating,
		Projection:      r.Projection,
		Recommendations: r.Recommendations,
	})
	if err != nil {
		return storage.ReportRow{}, fmt.Errorf("encode payload: %w", err)
	}
	return storage.ReportRow{
		ID:             r.ID,
		AccountID:      accountID,
		Title:          r.Title,
		Payload:        raw,
		Score:          r.Rating.Score,
		MonthlySavings: r.Projection.MonthlySavings,
		AnnualSavings:  r.Projection.AnnualSavings,
		CO2Savings:     r.Projection.CO2ReductionTonnes,
		IsPublic:       r.IsPublic,
		PublicID:       r.PublicID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

func fromRow(row storage.ReportRow) (Report, error) {
	var p payload
	if err := json.Unmarshal(row.Payload, &p); err != nil {
		return Report{}, fmt.Errorf("decode payload %s: %w", row.ID, err)
	}
	return Report{
		ID:              row.ID,
		Owner:           userctx.AccountOwner(row.AccountID.String()),
		Title:           row.Title,
		Profile:         p.Profile,
		Rating:          p.Rating,
		Projection:      p.Projection,
		Recommendations: p.Recommendations,
		IsPublic:        row.IsPublic,
		PublicID:        row.PublicID,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

// CreateReport scores the profile and persists the report for its owner.
// Count, quota check and insert run under the owner's lock.
func (s *Service) CreateReport(ctx context.Context, owner userctx.Owner, req CreateReportRequest) (*Report, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	title, err := normalizeTitle(req.Title, now)
	if err != nil {
		return nil, err
	}
	report := Report{
		ID:        uuid.New(),
		Owner:     owner,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := assemble(&report, req.Profile); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(string(owner.Kind) + ":" + owner.ID)
	defer unlock()

	if owner.IsGuest() {
		current, _, err := s.guests.Load(ctx, owner.ID, now)
		if err != nil {
			return nil, unavailable(err)
		}
		if err := s.checkQuota(ctx, owner, len(current)); err != nil {
			return nil, err
		}
		current = append(current, report)
		expiry, err := s.guests.Save(ctx, owner.ID, current, now)
		if err != nil {
			return nil, unavailable(err)
		}
		report.ExpiresAt = &expiry
		return &report, nil
	}

	accID, err := accountID(owner)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountReports(ctx, accID)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := s.checkQuota(ctx, owner, count); err != nil {
		return nil, err
	}

	row, err := toRow(report, accID)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateReport(ctx, &row); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, unavailable(err)
	}
	return &report, nil
}

func (s *Service) checkQuota(ctx context.Context, owner userctx.Owner, current int) error {
	ok, err := s.quota.Allow(ctx, owner, current)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrOwnerNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}

// ListReports returns one page of the owner's reports.
func (s *Service) ListReports(ctx context.Context, owner userctx.Owner, params ListParams) (*Page, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	sortBy := strings.ToLower(strings.TrimSpace(params.SortBy))
	if sortBy == "" {
		sortBy = storage.SortCreatedAt
	}
	if !storage.IsSortKey(sortBy) {
		return nil, fmt.Errorf("%w: unknown sort key %q", ErrInvalidArgument, params.SortBy)
	}
	order := strings.ToLower(strings.TrimSpace(params.Order))
	if order == "" {
		order = OrderDesc
	}
	if order != OrderAsc && order != OrderDesc {
		return nil, fmt.Errorf("%w: order must be asc or desc", ErrInvalidArgument)
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > s.maxPage {
		pageSize = s.maxPage
	}
	offset := (page - 1) * pageSize

	var (
		items []Report
		total int
	)

	if owner.IsGuest() {
		all, _, err := s.guests.Load(ctx, owner.ID, s.now().UTC())
		if err != nil {
			return nil, unavailable(err)
		}
		// гостевых отчётов единицы, сортируем в памяти
		rows := make([]storage.ReportRow, len(all))
		byID := make(map[uuid.UUID]Report, len(all))
		for i, r := range all {
			row, err := toRow(r, uuid.Nil)
			if err != nil {
				return nil, err
			}
			rows[i] = row
			byID[r.ID] = r
		}
		storage.SortRows(rows, sortBy, order == OrderDesc)
		total = len(rows)
		for i := offset; i < len(rows) && i < offset+pageSize; i++ {
			items = append(items, byID[rows[i].ID])
		}
	} else {
		accID, err := accountID(owner)
		if err != nil {
			return nil, err
		}
		rows, n, err := s.store.ListReports(ctx, accID, storage.ListQuery{
			SortBy: sortBy,
			Desc:   order == OrderDesc,
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, unavailable(err)
		}
		total = n
		for _, row := range rows {
			r, err := fromRow(row)
			if err != nil {
				return nil, err
			}
			items = append(items, r)
		}
	}

	out := &Page{
		Reports:  make([]ReportDTO, 0, len(items)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    int(math.Ceil(float64(total) / float64(pageSize))),
	}
	for _, r := range items {
		out.Reports = append(out.Reports, toDTO(r))
	}
	return out, nil
}

// GetReport returns a report of the owner. A foreign report is not found.
func (s *Service) GetReport(ctx context.Context, owner userctx.Owner, id uuid.UUID) (*Report, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	if owner.IsGuest() {
		all, _, err := s.guests.Load(ctx, owner.ID, s.now().UTC())
		if err != nil {
			return nil, unavailable(err)
		}
		for _, r := range all {
			if r.ID == id {
				return &r, nil
			}
		}
		return nil, ErrReportNotFound
	}

	accID, err := accountID(owner)
	if err != nil {
		return nil, err
	}
	row, err := s.store.GetReport(ctx, accID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	r, err := fromRow(*row)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func applyPatch(p scoring.EnergyProfile, patch *ProfilePatch) scoring.EnergyProfile {
	if patch == nil {
		return p
	}
	if patch.ConsumptionKWh != nil {
		p.ConsumptionKWh = *patch.ConsumptionKWh
	}
	if patch.Bill != nil {
		p.Bill = *patch.Bill
	}
	if patch.AreaM2 != nil {
		p.AreaM2 = *patch.AreaM2
	}
	if patch.HeatingType != nil {
		p.HeatingType = *patch.HeatingType
	}
	if patch.BuildingType != nil {
		p.BuildingType = *patch.BuildingType
	}
	if patch.Occupants != nil {
		occ := *patch.Occupants
		p.Occupants = &occ
	}
	return p
}

// UpdateReport changes title, profile (full recompute) or the public flag.
func (s *Service) UpdateReport(ctx context.Context, owner userctx.Owner, id uuid.UUID, req UpdateReportRequest) (*Report, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if req.IsPublic != nil && *req.IsPublic && owner.IsGuest() {
		return nil, ErrShareRequiresAccount
	}

	unlock := s.locks.Lock(string(owner.Kind) + ":" + owner.ID)
	defer unlock()

	now := s.now().UTC()

	apply := func(r *Report) error {
		if req.Title != nil {
			title, err := normalizeTitle(*req.Title, r.CreatedAt)
			if err != nil {
				return err
			}
			r.Title = title
		}
		// производные значения всегда пересчитываются из профиля целиком
		if err := assemble(r, applyPatch(r.Profile, req.Profile)); err != nil {
			return err
		}
		if req.IsPublic != nil {
			r.IsPublic = *req.IsPublic
		}
		r.UpdatedAt = now
		return nil
	}

	if owner.IsGuest() {
		all, _, err := s.guests.Load(ctx, owner.ID, now)
		if err != nil {
			return nil, unavailable(err)
		}
		idx := -1
		for i := range all {
			if all[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrReportNotFound
		}
		updated := all[idx]
		if err := apply(&updated); err != nil {
			return nil, err
		}
		all[idx] = updated
		expiry, err := s.guests.Save(ctx, owner.ID, all, now)
		if err != nil {
			return nil, unavailable(err)
		}
		updated.ExpiresAt = &expiry
		return &updated, nil
	}

	accID, err := accountID(owner)
	if err != nil {
		return nil, err
	}
	current, err := s.GetReport(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	updated := *current
	if err := apply(&updated); err != nil {
		return nil, err
	}

	firstShare := updated.IsPublic && current.PublicID == nil
	if firstShare {
		pid := s.ids.Generate().Base58()
		updated.PublicID = &pid
	}

	row, err := toRow(updated, accID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateReport(ctx, &row); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, unavailable(err)
	}
	updated.PublicID = row.PublicID
	if firstShare && row.PublicID != nil {
		s.emitShare(*row.PublicID, updated.ID, accID)
	}
	return &updated, nil
}

// DeleteReport removes a report; account stats drop by its contribution.
func (s *Service) DeleteReport(ctx context.Context, owner userctx.Owner, id uuid.UUID) error {
	if err := validateOwner(owner); err != nil {
		return err
	}

	unlock := s.locks.Lock(string(owner.Kind) + ":" + owner.ID)
	defer unlock()

	if owner.IsGuest() {
		now := s.now().UTC()
		all, _, err := s.guests.Load(ctx, owner.ID, now)
		if err != nil {
			return unavailable(err)
		}
		kept := all[:0]
		found := false
		for _, r := range all {
			if r.ID == id {
				found = true
				continue
			}
			kept = append(kept, r)
		}
		if !found {
			return ErrReportNotFound
		}
		if _, err := s.guests.Save(ctx, owner.ID, kept, now); err != nil {
			return unavailable(err)
		}
		return nil
	}

	accID, err := accountID(owner)
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteReport(ctx, accID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrReportNotFound
		}
		return unavailable(err)
	}
	return nil
}

func (s *Service) publicURL(publicID string) string {
	return s.baseURL + "/public/reports/" + publicID
}

func (s *Service) emitShare(publicID string, reportID, accID uuid.UUID) {
	s.emit(analytics.Event{
		Type:      analytics.EventShareCreated,
		PublicID:  publicID,
		ReportID:  &reportID,
		AccountID: &accID,
	})
}

// ShareReport assigns a public id on the first call and returns the same one afterwards.
func (s *Service) ShareReport(ctx context.Context, owner userctx.Owner, id uuid.UUID) (*ShareResult, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if owner.IsGuest() {
		return nil, ErrShareRequiresAccount
	}
	accID, err := accountID(owner)
	if err != nil {
		return nil, err
	}

	// тот же замок, что и у UpdateReport, иначе его устаревшая копия затрёт is_public
	unlock := s.locks.Lock(string(owner.Kind) + ":" + owner.ID)
	defer unlock()

	current, err := s.store.GetReport(ctx, accID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	candidate := s.ids.Generate().Base58()
	publicID, err := s.store.SetPublicID(ctx, accID, id, candidate)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if current.PublicID == nil && publicID == candidate {
		s.emitShare(publicID, id, accID)
	}

	return &ShareResult{PublicID: publicID, URL: s.publicURL(publicID)}, nil
}

// GetPublicReport reads a shared report without its owner.
func (s *Service) GetPublicReport(ctx context.Context, publicID string) (*PublicReportDTO, error) {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil, ErrReportNotFound
	}
	row, err := s.store.GetReportByPublicID(ctx, publicID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	r, err := fromRow(*row)
	if err != nil {
		return nil, err
	}

	reportID := r.ID
	s.emit(analytics.Event{
		Type:     analytics.EventLinkClicked,
		PublicID: publicID,
		ReportID: &reportID,
	})

	return &PublicReportDTO{
		PublicID:        publicID,
		Title:           r.Title,
		Profile:         r.Profile,
		Rating:          r.Rating,
		Projection:      r.Projection,
		Recommendations: r.Recommendations,
		ROIDisplay:      r.Projection.ROIDisplay(),
		CreatedAt:       r.CreatedAt,
	}, nil
}

// Stats returns aggregates of the owner. Accounts read the denormalized
// counters; guests have none, so their totals are summed on the fly.
func (s *Service) Stats(ctx context.Context, owner userctx.Owner) (*StatsResponse, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(trendMonths - 1), 0)

	out := &StatsResponse{MonthlyTrend: make([]MonthlyTrend, 0, trendMonths)}
	buckets := make(map[string]*MonthlyTrend, trendMonths)
	for i := 0; i < trendMonths; i++ {
		month := since.AddDate(0, i, 0).Format("2006-01")
		out.MonthlyTrend = append(out.MonthlyTrend, MonthlyTrend{Month: month})
	}
	for i := range out.MonthlyTrend {
		buckets[out.MonthlyTrend[i].Month] = &out.MonthlyTrend[i]
	}

	if owner.IsGuest() {
		all, _, err := s.guests.Load(ctx, owner.ID, now)
		if err != nil {
			return nil, unavailable(err)
		}
		var stats storage.Stats
		for _, r := range all {
			row, err := toRow(r, uuid.Nil)
			if err != nil {
				return nil, err
			}
			c := row.Contribution()
			stats.TotalReports += c.TotalReports
			stats.TotalSavings = stats.TotalSavings.Add(c.TotalSavings)
			stats.CO2Saved = stats.CO2Saved.Add(c.CO2Saved)
			if b, ok := buckets[r.CreatedAt.UTC().Format("2006-01")]; ok {
				b.Reports++
				b.AnnualSavings += r.Projection.AnnualSavings
			}
		}
		out.TotalReports = stats.TotalReports
		out.TotalSavings = stats.TotalSavings.InexactFloat64()
		out.CO2Saved = stats.CO2Saved.InexactFloat64()
		return out, nil
	}

	accID, err := accountID(owner)
	if err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(ctx, accID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	trend, err := s.store.MonthlyTrend(ctx, accID, since)
	if err != nil {
		return nil, unavailable(err)
	}
	for _, t := range trend {
		if b, ok := buckets[t.Month]; ok {
			b.Reports = t.Reports
			b.AnnualSavings = t.AnnualSavings.InexactFloat64()
		}
	}

	out.TotalReports = account.Stats.TotalReports
	out.TotalSavings = account.Stats.TotalSavings.InexactFloat64()
	out.CO2Saved = account.Stats.CO2Saved.InexactFloat64()
	return out, nil
}

// GuestStatus reports how long the guest's reports will live.
func (s *Service) GuestStatus(ctx context.Context, token string) (*GuestStatus, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: guest token is required", ErrInvalidArgument)
	}
	now := s.now().UTC()
	all, expiry, err := s.guests.Load(ctx, token, now)
	if err != nil {
		return nil, unavailable(err)
	}

	out := &GuestStatus{Reports: len(all), MaxReports: s.maxGuest}
	if expiry != nil {
		left := expiry.Sub(now)
		out.ExpiresAt = expiry
		out.RemainingHours = int(left.Hours())
		out.RemainingMinutes = int(left.Minutes()) % 60
	}
	return out, nil
}

// MigrateGuest moves the guest's live reports to the account exactly once
// per token. Guest slots are cleared only after the durable commit.
func (s *Service) MigrateGuest(ctx context.Context, token string, accID uuid.UUID) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}

	unlock := s.locks.Lock(string(userctx.OwnerGuest) + ":" + token)
	defer unlock()

	now := s.now().UTC()
	all, _, err := s.guests.Load(ctx, token, now)
	if err != nil {
		return 0, unavailable(err)
	}
	if len(all) == 0 {
		return 0, nil
	}

	rows := make([]storage.ReportRow, 0, len(all))
	for _, r := range all {
		r.ExpiresAt = nil
		r.Owner = userctx.AccountOwner(accID.String())
		row, err := toRow(r, accID)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	imported, err := s.store.ImportGuestReports(ctx, accID, token, rows)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, ErrReportNotFound
		}
		return 0, unavailable(err)
	}

	if err := s.guests.Clear(ctx, token); err != nil {
		log.Printf("WARN guest: clear after migration token=%s err=%v", token, err)
	}
	log.Printf("INFO guest: migrated %d reports to account %s", imported, accID)
	return imported, nil
}
