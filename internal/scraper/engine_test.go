package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fpang/camera-scraper/internal/archive"
	"github.com/fpang/camera-scraper/internal/camconfig"
	"github.com/fpang/camera-scraper/internal/suntimes"
	"github.com/fpang/camera-scraper/internal/watermark"
	"github.com/fpang/camera-scraper/internal/weather"
)

// --- Shared test fakes ---

// fakeArchive is an in-memory archive.Store that records call counts.
type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string

	existsCalls int
	putCalls    int

	existsErr error
	putErr    error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		objects: make(map[string][]byte),
		meta:    make(map[string]map[string]string),
	}
}

func (f *fakeArchive) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeArchive) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = body
	f.meta[key] = metadata
	return nil
}

func (f *fakeArchive) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return body, nil
}

// fakeWeather returns a fixed report or error.
type fakeWeather struct {
	report weather.Report
	err    error
}

func (f *fakeWeather) Fetch(ctx context.Context) (weather.Report, error) {
	return f.report, f.err
}

// fakeSun returns a fixed row or error.
type fakeSun struct {
	row *suntimes.Row
	err error
}

func (f *fakeSun) Lookup(ctx context.Context, station string, day time.Time) (*suntimes.Row, error) {
	return f.row, f.err
}

// cameraSite serves a camera page plus its snapshot images.
type cameraSite struct {
	srv *httptest.Server

	mu         sync.Mutex
	images     []string // paths like /current/east_20240615-140501.jpg
	imageHits  map[string]int
	brokenImgs map[string]bool
}

func newCameraSite(t *testing.T, images ...string) *cameraSite {
	t.Helper()
	site := &cameraSite{
		images:     images,
		imageHits:  make(map[string]int),
		brokenImgs: make(map[string]bool),
	}
	site.srv = httptest.NewServer(http.HandlerFunc(site.handle))
	t.Cleanup(site.srv.Close)
	return site
}

func (s *cameraSite) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.URL.Path == "/" {
		fmt.Fprint(w, "<html><body>")
		for _, img := range s.images {
			fmt.Fprintf(w, `<img id="wimg1" src=%q>`, img)
		}
		fmt.Fprint(w, "</body></html>")
		return
	}
	for _, img := range s.images {
		if r.URL.Path == img {
			if s.brokenImgs[img] {
				http.Error(w, "camera offline", http.StatusBadGateway)
				return
			}
			s.imageHits[img]++
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpegbytes:" + img))
			return
		}
	}
	http.NotFound(w, r)
}

func (s *cameraSite) hits(img string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imageHits[img]
}

func testConfig(site *cameraSite) camconfig.Config {
	return camconfig.Config{
		SourceURL:     site.srv.URL + "/",
		BucketName:    "camera-archive",
		KnownPrefixes: []string{"east", "west"},
		Interval:      5 * time.Minute,
	}
}

func newTestEngine(store *fakeArchive) *Engine {
	return &Engine{
		NewArchive: func(bucket string) archive.Store { return store },
	}
}

// --- Engine tests ---

func TestEngineRun_ArchivesMissingSnapshot(t *testing.T) {
	site := newCameraSite(t, "/current/east_20240615-140501.jpg")
	store := newFakeArchive()
	engine := newTestEngine(store)

	res, err := engine.Run(context.Background(), testConfig(site))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	const wantKey = "east/2024/06/15/140501.jpg"
	if _, ok := store.objects[wantKey]; !ok {
		t.Fatalf("expected object at %q, archive holds %v", wantKey, keysOf(store.objects))
	}
	if store.putCalls != 1 {
		t.Errorf("putCalls = %d, want 1", store.putCalls)
	}
	if len(store.meta[wantKey]) != 0 {
		t.Errorf("metadata = %v, want empty without enrichment providers", store.meta[wantKey])
	}

	wantLatest := time.Date(2024, time.June, 15, 14, 5, 1, 0, time.Local)
	if !res.Latest.Equal(wantLatest) {
		t.Errorf("Latest = %v, want %v", res.Latest, wantLatest)
	}
	if got := res.ByPrefix["east"]; !got.Equal(wantLatest) {
		t.Errorf("ByPrefix[east] = %v, want %v", got, wantLatest)
	}
	if res.Seen != 1 || res.Archived != 1 || res.Skipped != 0 {
		t.Errorf("counters = %+v, want seen 1 archived 1 skipped 0", res)
	}
}

func TestEngineRun_ExistingSnapshotNoFetchNoWrite(t *testing.T) {
	const img = "/current/east_20240615-140501.jpg"
	site := newCameraSite(t, img)
	store := newFakeArchive()
	store.objects["east/2024/06/15/140501.jpg"] = []byte("already there")
	engine := newTestEngine(store)

	res, err := engine.Run(context.Background(), testConfig(site))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if site.hits(img) != 0 {
		t.Errorf("image fetched %d times, want 0 for an archived snapshot", site.hits(img))
	}
	if store.putCalls != 0 {
		t.Errorf("putCalls = %d, want 0", store.putCalls)
	}

	// The watermark candidate still advances: a previous run may have
	// archived the image and crashed before persisting its watermark.
	wantLatest := time.Date(2024, time.June, 15, 14, 5, 1, 0, time.Local)
	if !res.Latest.Equal(wantLatest) {
		t.Errorf("Latest = %v, want %v", res.Latest, wantLatest)
	}
}

func TestEngineRun_Idempotent(t *testing.T) {
	const img = "/current/east_20240615-140501.jpg"
	site := newCameraSite(t, img)
	store := newFakeArchive()
	engine := newTestEngine(store)

	for i := 0; i < 2; i++ {
		if _, err := engine.Run(context.Background(), testConfig(site)); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}
	if store.putCalls != 1 {
		t.Errorf("putCalls = %d after two runs, want 1", store.putCalls)
	}
	if site.hits(img) != 1 {
		t.Errorf("image fetched %d times after two runs, want 1", site.hits(img))
	}
	if len(store.objects) != 1 {
		t.Errorf("archive holds %d objects, want 1", len(store.objects))
	}
}

func TestEngineRun_FetchFailureSkipsCandidateOnly(t *testing.T) {
	const broken = "/current/east_20240615-140501.jpg"
	const healthy = "/current/west_20240615-140502.jpg"
	site := newCameraSite(t, broken, healthy)
	site.brokenImgs[broken] = true
	store := newFakeArchive()
	engine := newTestEngine(store)

	res, err := engine.Run(context.Background(), testConfig(site))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := store.objects["west/2024/06/15/140502.jpg"]; !ok {
		t.Error("healthy snapshot not archived after sibling fetch failure")
	}
	if res.Archived != 1 || res.Skipped != 1 {
		t.Errorf("archived %d skipped %d, want 1 and 1", res.Archived, res.Skipped)
	}
	// The skipped image was not archived, so it must not advance watermarks.
	wantLatest := time.Date(2024, time.June, 15, 14, 5, 2, 0, time.Local)
	if !res.Latest.Equal(wantLatest) {
		t.Errorf("Latest = %v, want %v", res.Latest, wantLatest)
	}
	if _, ok := res.ByPrefix["east"]; ok {
		t.Error("ByPrefix[east] set even though the east snapshot was skipped")
	}
}

func TestEngineRun_UnparseableCandidateDropped(t *testing.T) {
	site := newCameraSite(t, "/current/east_latest.jpg")
	store := newFakeArchive()
	engine := newTestEngine(store)

	res, err := engine.Run(context.Background(), testConfig(site))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.putCalls != 0 {
		t.Errorf("putCalls = %d, want 0", store.putCalls)
	}
	if !res.Latest.Equal(watermark.Epoch) {
		t.Errorf("Latest = %v, want epoch sentinel", res.Latest)
	}
	if res.Seen != 1 || res.Skipped != 1 {
		t.Errorf("counters = %+v, want seen 1 skipped 1", res)
	}
}

func TestEngineRun_EmptyPageYieldsSentinel(t *testing.T) {
	site := newCameraSite(t)
	store := newFakeArchive()
	engine := newTestEngine(store)

	res, err := engine.Run(context.Background(), testConfig(site))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Seen != 0 {
		t.Errorf("Seen = %d, want 0", res.Seen)
	}
	if !res.Latest.Equal(watermark.Epoch) {
		t.Errorf("Latest = %v, want epoch sentinel", res.Latest)
	}
}

func TestEngineRun_ExistenceCheckFailureIsFatal(t *testing.T) {
	site := newCameraSite(t, "/current/east_20240615-140501.jpg")
	store := newFakeArchive()
	store.existsErr = errors.New("backend down")
	engine := newTestEngine(store)

	if _, err := engine.Run(context.Background(), testConfig(site)); err == nil {
		t.Error("Run: expected error when existence check fails")
	}
}

func TestEngineRun_WriteFailureIsFatal(t *testing.T) {
	site := newCameraSite(t, "/current/east_20240615-140501.jpg")
	store := newFakeArchive()
	store.putErr = errors.New("access denied")
	engine := newTestEngine(store)

	res, err := engine.Run(context.Background(), testConfig(site))
	if err == nil {
		t.Fatal("Run: expected error when archive write fails")
	}
	if !res.Latest.Equal(watermark.Epoch) {
		t.Errorf("Latest = %v, failed write must not advance the watermark", res.Latest)
	}
}

func TestEngineRun_EnrichmentFailuresDoNotBlockArchival(t *testing.T) {
	site := newCameraSite(t, "/current/east_20240615-140501.jpg")
	store := newFakeArchive()
	engine := newTestEngine(store)
	engine.Weather = &fakeWeather{err: errors.New("weather service down")}
	engine.Sun = &fakeSun{err: errors.New("table throttled")}
	engine.SunStation = suntimes.DefaultStation

	_, err := engine.Run(context.Background(), testConfig(site))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	meta := store.meta["east/2024/06/15/140501.jpg"]
	if store.putCalls != 1 {
		t.Fatalf("putCalls = %d, want 1", store.putCalls)
	}
	if len(meta) != 0 {
		t.Errorf("metadata = %v, want empty when both enrichments fail", meta)
	}
}

func TestEngineRun_EnrichmentAttached(t *testing.T) {
	site := newCameraSite(t, "/current/east_20240615-140501.jpg")
	store := newFakeArchive()
	engine := newTestEngine(store)
	engine.Weather = &fakeWeather{report: weather.Report{
		Text:      "EDMA 151350Z 24008KT CAVOK 22/14 Q1018",
		ValidFrom: time.Date(2024, time.June, 15, 13, 50, 0, 0, time.Local),
	}}
	engine.Sun = &fakeSun{row: &suntimes.Row{BCMT: "04:38", SR: "05:17", SS: "21:17", ECET: "21:57"}}
	engine.SunStation = suntimes.DefaultStation

	if _, err := engine.Run(context.Background(), testConfig(site)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	meta := store.meta["east/2024/06/15/140501.jpg"]
	want := map[string]string{
		"metar":   "EDMA 151350Z 24008KT CAVOK 22/14 Q1018",
		"bcmt":    "04:38",
		"sunrise": "05:17",
		"sunset":  "21:17",
		"ecet":    "21:57",
	}
	for k, v := range want {
		if meta[k] != v {
			t.Errorf("metadata[%s] = %q, want %q", k, meta[k], v)
		}
	}
}

func TestEngineRun_StaleWeatherNotAttached(t *testing.T) {
	site := newCameraSite(t, "/current/east_20240615-140501.jpg")
	store := newFakeArchive()
	engine := newTestEngine(store)
	// Report from over an hour before the capture time.
	engine.Weather = &fakeWeather{report: weather.Report{
		Text:      "EDMA 151250Z 24008KT CAVOK 22/14 Q1018",
		ValidFrom: time.Date(2024, time.June, 15, 12, 50, 0, 0, time.Local),
	}}

	if _, err := engine.Run(context.Background(), testConfig(site)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if meta := store.meta["east/2024/06/15/140501.jpg"]; meta["metar"] != "" {
		t.Errorf("stale report attached: %q", meta["metar"])
	}
}

func keysOf(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
