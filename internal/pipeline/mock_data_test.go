package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
)

const (
	juneURL = "https://example.test/pr_rcp85_land-cpm_uk_2.2km_04_1hr_19810601-19810630.nc"
	julyURL = "https://example.test/pr_rcp85_land-cpm_uk_2.2km_04_1hr_19810701-19810730.nc"
)

// testMask puts both cells of a 1x2 grid in company 0.
var testMask = domain.Mask{NY: 1, NX: 2, WCID: []float64{0, 0}}

var testCells = []domain.Cell{
	{Index: 0, ID: "UK_05100N_00100W", Lat: 51, Lon: -1},
	{Index: 1, ID: "UK_05100N_00200W", Lat: 51, Lon: -2},
}

var testSettings = domain.Settings{
	NumberOfWC:    1,
	Accumulations: []domain.Accumulation{{Duration: 1, StartHour: 23}},
	BinEdges:      map[int][]float64{1: {0, 1, 100}},
	BinDurations:  []int{1},
}

// monthField returns hourly values for every test cell over a 360-day month.
func monthField(year, month int, value float32) *domain.Field {
	f := &domain.Field{Variable: "pr", Cells: testCells, Values: make([][]float32, len(testCells))}
	for day := 1; day <= 30; day++ {
		for hour := 0; hour < 24; hour++ {
			f.Times = append(f.Times, domain.NewDate360(year, month, day, hour, 30))
		}
	}
	for i := range f.Values {
		f.Values[i] = make([]float32, len(f.Times))
		for t := range f.Values[i] {
			f.Values[i][t] = value
		}
	}
	return f
}

func testJob() domain.Job {
	return domain.Job{ProjectionID: 1, Member: 4, Variable: "pr", Year: 1981, Month: 7, URLs: []string{juneURL, julyURL}}
}

// --- mocks ---

type mockFetcher struct {
	mu         sync.Mutex
	errs       map[string]error
	releaseErr error
	fetched    []string
	released   []string
}

func (m *mockFetcher) Fetch(_ context.Context, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[url]; err != nil {
		return "", err
	}
	m.fetched = append(m.fetched, url)
	return "/tmp/" + url[len("https://example.test/"):], nil
}

func (m *mockFetcher) Release(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, path)
	return m.releaseErr
}

// mockReader serves June at 0.2 mm/h and July at 0.5 mm/h.
type mockReader struct{}

func (mockReader) ReadField(_ context.Context, path, variable string, mask domain.Mask) (*domain.Field, error) {
	if variable != "pr" {
		return nil, fmt.Errorf("unexpected variable %q", variable)
	}
	if mask.NX != testMask.NX {
		return nil, errors.New("unexpected mask")
	}
	switch path {
	case "/tmp/pr_rcp85_land-cpm_uk_2.2km_04_1hr_19810601-19810630.nc":
		return monthField(1981, 6, 0.2), nil
	case "/tmp/pr_rcp85_land-cpm_uk_2.2km_04_1hr_19810701-19810730.nc":
		return monthField(1981, 7, 0.5), nil
	}
	return nil, fmt.Errorf("no fixture for %s", path)
}

type mockLoader struct {
	err    error
	loaded []domain.Record
}

func (m *mockLoader) LoadBatch(_ context.Context, records []domain.Record) error {
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, records...)
	return nil
}

type mockLedger struct {
	done   map[string]bool
	marked map[string]string
}

func newMockLedger() *mockLedger {
	return &mockLedger{done: map[string]bool{}, marked: map[string]string{}}
}

func (m *mockLedger) Done(_ context.Context, job domain.Job) (bool, error) {
	return m.done[job.Key()], nil
}

func (m *mockLedger) MarkDone(_ context.Context, job domain.Job, runID string) error {
	m.marked[job.Key()] = runID
	return nil
}
