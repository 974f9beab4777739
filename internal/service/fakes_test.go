package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"retail-analytics/internal/models"
	"retail-analytics/internal/redisclient"
	"retail-analytics/internal/store"
)

type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]string
	failErr error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireLock(_ context.Context, name, owner string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return false, l.failErr
	}
	if _, ok := l.held[name]; ok {
		return false, nil
	}
	l.held[name] = owner
	return true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, name, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] == owner {
		delete(l.held, name)
	}
	return nil
}

type fakeLoader struct {
	rows      []models.Transaction
	customers []models.CustomerSummary
	chunkSize int
	calls     int
	err       error
}

func (l *fakeLoader) ReplaceAll(_ context.Context, rows []models.Transaction, customers []models.CustomerSummary, chunkSize int) error {
	l.calls++
	if l.err != nil {
		return l.err
	}
	l.rows, l.customers, l.chunkSize = rows, customers, chunkSize
	return nil
}

type fakePublisher struct {
	events []*models.RunCompletedEvent
	err    error
}

func (p *fakePublisher) PublishRunCompleted(_ context.Context, e *models.RunCompletedEvent) error {
	p.events = append(p.events, e)
	return p.err
}

type fakeReporter struct {
	runTS string
	files []string
	err   error
}

func (r *fakeReporter) Generate(_ context.Context, runTS string) (*ReportResult, error) {
	r.runTS = runTS
	if r.err != nil {
		return nil, r.err
	}
	return &ReportResult{RunTimestamp: runTS, Files: r.files}, nil
}

// memoryCache mimics the redis JSON cache, including its encoding
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	sets    int
	readErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.readErr != nil {
		return c.readErr
	}
	data, ok := c.entries[key]
	if !ok {
		return redisclient.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.sets++
	c.entries[key] = data
	return nil
}

var errNotStubbed = errors.New("not stubbed")

// stubStore answers dashboard queries from fixed data and records filters
type stubStore struct {
	bounds    models.DateBounds
	totals    map[string]*models.KPITotals
	coverage  *models.PeriodCoverage
	monthly   []models.MonthlyRevenue
	weekdays  []models.WeekdayRevenue
	heatmap   []models.HeatmapCell
	customers []models.CustomerMonetary
	geography []models.CountryRevenue
	products  []models.ProductSales
	export    []models.Transaction

	filters map[string][]store.Filter
	calls   map[string]int
}

func newStubStore() *stubStore {
	return &stubStore{
		totals:  make(map[string]*models.KPITotals),
		filters: make(map[string][]store.Filter),
		calls:   make(map[string]int),
	}
}

func (s *stubStore) record(name string, f store.Filter) {
	s.calls[name]++
	s.filters[name] = append(s.filters[name], f)
}

func (s *stubStore) Countries(context.Context) ([]string, error) {
	s.calls["Countries"]++
	return []string{"France", "United Kingdom"}, nil
}

func (s *stubStore) Descriptions(context.Context) ([]string, error) {
	s.calls["Descriptions"]++
	return []string{"JUMBO BAG RED RETROSPOT"}, nil
}

func (s *stubStore) DateBounds(context.Context) (*models.DateBounds, error) {
	s.calls["DateBounds"]++
	b := s.bounds
	return &b, nil
}

func (s *stubStore) KPITotals(_ context.Context, f store.Filter) (*models.KPITotals, error) {
	s.record("KPITotals", f)
	if t, ok := s.totals[f.Country]; ok {
		return t, nil
	}
	return nil, errNotStubbed
}

func (s *stubStore) Coverage(_ context.Context, f store.Filter) (*models.PeriodCoverage, error) {
	s.record("Coverage", f)
	if s.coverage == nil {
		return nil, errNotStubbed
	}
	return s.coverage, nil
}

func (s *stubStore) MonthlyRevenue(_ context.Context, f store.Filter) ([]models.MonthlyRevenue, error) {
	s.record("MonthlyRevenue", f)
	return s.monthly, nil
}

func (s *stubStore) SalesByWeekday(_ context.Context, f store.Filter) ([]models.WeekdayRevenue, error) {
	s.record("SalesByWeekday", f)
	return append([]models.WeekdayRevenue(nil), s.weekdays...), nil
}

func (s *stubStore) Heatmap(_ context.Context, f store.Filter) ([]models.HeatmapCell, error) {
	s.record("Heatmap", f)
	return s.heatmap, nil
}

func (s *stubStore) CustomerMonetary(_ context.Context, f store.Filter) ([]models.CustomerMonetary, error) {
	s.record("CustomerMonetary", f)
	return s.customers, nil
}

func (s *stubStore) Geography(_ context.Context, f store.Filter) ([]models.CountryRevenue, error) {
	s.record("Geography", f)
	return s.geography, nil
}

func (s *stubStore) TopProducts(_ context.Context, f store.Filter, _ int) ([]models.ProductSales, error) {
	s.record("TopProducts", f)
	return s.products, nil
}

func (s *stubStore) ExportRows(_ context.Context, f store.Filter) ([]models.Transaction, error) {
	s.record("ExportRows", f)
	return s.export, nil
}
