package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/async"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/document"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/extract"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/extract/extracttest"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/ocr"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/pipeline"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/repository"
)

type fakeRasterizer struct {
	err   error
	calls atomic.Int64
}

func (f *fakeRasterizer) Rasterize(_ context.Context, doc document.RawDocument) (*document.Page, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &document.Page{Image: image.NewRGBA(image.Rect(0, 0, 40, 60)), SourceKind: doc.Kind}, nil
}

// gatedRasterizer holds every call until gate is closed.
type gatedRasterizer struct {
	fakeRasterizer
	started chan struct{}
	once    sync.Once
	gate    chan struct{}
}

func newGatedRasterizer() *gatedRasterizer {
	return &gatedRasterizer{started: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedRasterizer) Rasterize(ctx context.Context, doc document.RawDocument) (*document.Page, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fakeRasterizer.Rasterize(ctx, doc)
}

type fakeRecognizer struct {
	res   ocr.TextResult
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeRecognizer) BackendName() string { return "fake" }

func (f *fakeRecognizer) Recognize(ctx context.Context, _ *document.Page) (ocr.TextResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ocr.TextResult{}, ctx.Err()
		}
	}
	return f.res, f.err
}

func newLedger(t *testing.T) repository.ExtractJobRepository {
	t.Helper()
	db, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewSQLiteExtractJobRepository(db, nil)
}

func newPool(t *testing.T) *async.Pool {
	t.Helper()
	p := async.NewPool(nil, async.WithWorkers(2), async.WithQueueSize(8))
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func answers() map[constants.FieldName]string {
	return map[constants.FieldName]string{
		constants.ProductName:   "Kindle Paperwhite",
		constants.OrderID:       "112-5550-1",
		constants.InvoiceNumber: "INV-9",
		constants.TotalAmount:   "139.99",
		constants.PurchaseDate:  "2024-11-29",
		constants.Retailer:      "Amazon",
	}
}

func TestExtractText_RecordsLedgerAndRounds(t *testing.T) {
	jobs := newLedger(t)
	rec := &fakeRecognizer{res: ocr.TextResult{Text: "ACME\nTotal 5.00", Confidence: 0.912345}}
	p := pipeline.NewProcessor(nil, pipeline.Config{}, &fakeRasterizer{}, rec, nil, newPool(t), pipeline.WithJobs(jobs))

	res, err := p.ExtractText(context.Background(), document.RawDocument{Bytes: []byte("img"), Kind: constants.IMAGE})
	require.NoError(t, err)
	assert.Equal(t, "ACME\nTotal 5.00", res.Text)
	assert.Equal(t, 0.9123, res.Confidence)

	list, err := jobs.List(context.Background(), repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, string(constants.JobStatusTextOK), list[0].Status)
	assert.Equal(t, string(constants.JobKindText), list[0].Kind)
	assert.False(t, list[0].NeedsReview)
	assert.Equal(t, pipeline.ContentHash([]byte("img")), list[0].ContentHash)
}

func TestExtractText_LowConfidenceNeedsReview(t *testing.T) {
	jobs := newLedger(t)
	rec := &fakeRecognizer{res: ocr.TextResult{Text: "smudge", Confidence: 0.3}}
	p := pipeline.NewProcessor(nil, pipeline.Config{}, &fakeRasterizer{}, rec, nil, newPool(t), pipeline.WithJobs(jobs))

	_, err := p.ExtractText(context.Background(), document.RawDocument{Bytes: []byte("x"), Kind: constants.IMAGE})
	require.NoError(t, err)

	list, err := jobs.List(context.Background(), repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].NeedsReview)
}

func TestExtractText_DecodeFailureRecorded(t *testing.T) {
	jobs := newLedger(t)
	raster := &fakeRasterizer{err: common.DecodeError("not an image", nil)}
	rec := &fakeRecognizer{}
	p := pipeline.NewProcessor(nil, pipeline.Config{}, raster, rec, nil, newPool(t), pipeline.WithJobs(jobs))

	_, err := p.ExtractText(context.Background(), document.RawDocument{Bytes: []byte("garbage"), Kind: constants.IMAGE})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.Zero(t, rec.calls.Load())

	list, err := jobs.List(context.Background(), repository.ListFilter{Status: constants.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].ErrorMessage)
}

func TestExtractText_CacheHit(t *testing.T) {
	raster := &fakeRasterizer{}
	rec := &fakeRecognizer{res: ocr.TextResult{Text: "hello", Confidence: 0.9}}
	p := pipeline.NewProcessor(nil, pipeline.Config{}, raster, rec, nil, newPool(t), pipeline.WithCache(time.Minute))
	defer p.Close()

	doc := document.RawDocument{Bytes: []byte("same"), Kind: constants.PDF}
	for i := 0; i < 3; i++ {
		res, err := p.ExtractText(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, "hello", res.Text)
	}
	assert.Equal(t, int64(1), rec.calls.Load())

	_, err := p.ExtractText(context.Background(), document.RawDocument{Bytes: []byte("other"), Kind: constants.PDF})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.calls.Load())
}

func TestExtractText_ConcurrentIdenticalRequestsShareWork(t *testing.T) {
	rec := &fakeRecognizer{res: ocr.TextResult{Text: "shared", Confidence: 0.9}, delay: 100 * time.Millisecond}
	p := pipeline.NewProcessor(nil, pipeline.Config{}, &fakeRasterizer{}, rec, nil, newPool(t), pipeline.WithCache(time.Minute))
	defer p.Close()

	doc := document.RawDocument{Bytes: []byte("dup"), Kind: constants.IMAGE}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.ExtractText(context.Background(), doc)
			assert.NoError(t, err)
			assert.Equal(t, "shared", res.Text)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), rec.calls.Load())
}

func TestExtractText_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	raster := newGatedRasterizer()
	rec := &fakeRecognizer{res: ocr.TextResult{Text: "shared", Confidence: 0.9}}
	p := pipeline.NewProcessor(nil, pipeline.Config{}, raster, rec, nil, newPool(t), pipeline.WithCache(time.Minute))
	defer p.Close()

	doc := document.RawDocument{Bytes: []byte("same upload"), Kind: constants.IMAGE}
	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.ExtractText(firstCtx, doc)
		firstErr <- err
	}()
	<-raster.started

	type result struct {
		res ocr.TextResult
		err error
	}
	second := make(chan result, 1)
	go func() {
		res, err := p.ExtractText(context.Background(), doc)
		second <- result{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(raster.gate)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "shared", got.res.Text)
	assert.Equal(t, int64(1), rec.calls.Load())
}

func TestExtractFields_FirstCallerCancelDoesNotFailOthers(t *testing.T) {
	raster := newGatedRasterizer()
	m := &extracttest.Model{Answers: answers()}
	fx := extract.NewFieldExtractor(&extracttest.Provider{Handle: extracttest.NewHandle(m)}, extract.Config{}, nil)
	p := pipeline.NewProcessor(nil, pipeline.Config{}, raster, &fakeRecognizer{}, fx, newPool(t), pipeline.WithCache(time.Minute))
	defer p.Close()

	doc := document.RawDocument{Bytes: []byte("same invoice"), Kind: constants.PDF}
	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.ExtractFields(firstCtx, doc)
		firstErr <- err
	}()
	<-raster.started

	type result struct {
		res extract.FieldsResult
		err error
	}
	second := make(chan result, 1)
	go func() {
		res, err := p.ExtractFields(context.Background(), doc)
		second <- result{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(raster.gate)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Amazon", got.res.Get(constants.Retailer))
	assert.Empty(t, got.res.Failures())
	assert.Equal(t, int64(6), m.Calls())
}

func TestExtractText_CallerCancelStopsWaitingOnly(t *testing.T) {
	raster := newGatedRasterizer()
	rec := &fakeRecognizer{res: ocr.TextResult{Text: "late", Confidence: 0.9}}
	p := pipeline.NewProcessor(nil, pipeline.Config{}, raster, rec, nil, newPool(t), pipeline.WithCache(time.Minute))
	defer p.Close()

	doc := document.RawDocument{Bytes: []byte("slow"), Kind: constants.IMAGE}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.ExtractText(ctx, doc)
		done <- err
	}()
	<-raster.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// the detached computation still completes and fills the cache
	close(raster.gate)
	require.Eventually(t, func() bool { return rec.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		res, err := p.ExtractText(context.Background(), doc)
		return err == nil && res.Text == "late"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), rec.calls.Load())
}

func TestExtractFields_RecordsLedger(t *testing.T) {
	jobs := newLedger(t)
	m := &extracttest.Model{Answers: answers()}
	fx := extract.NewFieldExtractor(&extracttest.Provider{Handle: extracttest.NewHandle(m)}, extract.Config{}, nil)
	p := pipeline.NewProcessor(nil, pipeline.Config{ModelName: "test/donut"}, &fakeRasterizer{}, &fakeRecognizer{}, fx, newPool(t), pipeline.WithJobs(jobs))

	res, err := p.ExtractFields(context.Background(), document.RawDocument{Bytes: []byte("pdf"), Kind: constants.PDF})
	require.NoError(t, err)
	assert.Equal(t, "Amazon", res.Get(constants.Retailer))
	assert.Len(t, res.Map(), 6)

	list, err := jobs.List(context.Background(), repository.ListFilter{Kind: constants.JobKindFields})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, string(constants.JobStatusFieldsOK), list[0].Status)
	assert.False(t, list[0].NeedsReview)
	require.NotNil(t, list[0].ModelName)
	assert.Equal(t, "test/donut", *list[0].ModelName)
}

func TestExtractFields_PartialFailureFlagsReviewAndSkipsCache(t *testing.T) {
	jobs := newLedger(t)
	m := &extracttest.Model{
		Answers:  answers(),
		Failures: map[constants.FieldName]error{constants.TotalAmount: errors.New("oom")},
	}
	fx := extract.NewFieldExtractor(&extracttest.Provider{Handle: extracttest.NewHandle(m)}, extract.Config{}, nil)
	p := pipeline.NewProcessor(nil, pipeline.Config{}, &fakeRasterizer{}, &fakeRecognizer{}, fx, newPool(t),
		pipeline.WithJobs(jobs), pipeline.WithCache(time.Minute))
	defer p.Close()

	doc := document.RawDocument{Bytes: []byte("pdf"), Kind: constants.PDF}
	res, err := p.ExtractFields(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "", res.Map()[string(constants.TotalAmount)])

	_, err = p.ExtractFields(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, int64(12), m.Calls(), "failed results are not cached")

	list, err := jobs.List(context.Background(), repository.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].NeedsReview)
	var fieldErrs map[string]string
	require.NoError(t, json.Unmarshal(list[0].FieldErrors, &fieldErrs))
	assert.Len(t, fieldErrs, 1)
	assert.Contains(t, fieldErrs[string(constants.TotalAmount)], "oom")
}

func TestExtractFields_ModelLoadFailure(t *testing.T) {
	jobs := newLedger(t)
	fx := extract.NewFieldExtractor(&extracttest.Provider{Err: common.ModelLoadError("no weights", nil)}, extract.Config{}, nil)
	p := pipeline.NewProcessor(nil, pipeline.Config{}, &fakeRasterizer{}, &fakeRecognizer{}, fx, newPool(t), pipeline.WithJobs(jobs))

	_, err := p.ExtractFields(context.Background(), document.RawDocument{Bytes: []byte("x"), Kind: constants.IMAGE})
	assert.ErrorIs(t, err, common.ErrModelLoad)

	list, err := jobs.List(context.Background(), repository.ListFilter{Status: constants.JobStatusFailed})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestContentHash(t *testing.T) {
	a := pipeline.ContentHash([]byte("abc"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, pipeline.ContentHash([]byte("abc")))
	assert.NotEqual(t, a, pipeline.ContentHash([]byte("abd")))
}
