package evidence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
)

type fakeCapturer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *fakeCapturer) Screenshot(_ context.Context, _, _ string, _ int) ([]byte, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failures {
		return nil, nil, errors.New("render timeout")
	}
	return []byte("png-bytes"), []string{"pay merchant@upi"}, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	enabled bool
	err     error
	uploads int
}

func (u *fakeUploader) PutScreenshot(_ context.Context, taskID, _ string, _ []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.uploads++
	return "http://minio/evidence/screenshots/" + taskID + "/x.png", nil
}

func (u *fakeUploader) Enabled() bool { return u.enabled }

type fakeAttacher struct {
	mu       sync.Mutex
	misses   int
	calls    int
	attached []string
}

func (a *fakeAttacher) AttachScreenshot(_ context.Context, _, _, keyword, path string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.calls <= a.misses {
		return false, nil
	}
	a.attached = append(a.attached, keyword+"="+path)
	return true, nil
}

type captureDLQ struct {
	mu    sync.Mutex
	shots []domain.FailedScreenshot
}

func (d *captureDLQ) PushHit(context.Context, domain.FailedHit) error { return nil }

func (d *captureDLQ) PushScreenshot(_ context.Context, failed domain.FailedScreenshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shots = append(d.shots, failed)
	return nil
}

func newTestScreenshotWorkers(t *testing.T, capturer Capturer, store Uploader, repo Attacher, dlq DeadLetter) (*ScreenshotWorkers, chan domain.ScreenshotJob) {
	t.Helper()

	jobs := make(chan domain.ScreenshotJob, 10)
	metrics := telemetry.NewWith(prometheus.NewRegistry())
	s, err := NewScreenshotWorkers(1, capturer, store, repo, jobs, dlq, 5, metrics, logger.NewNop())
	require.NoError(t, err)
	s.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		s.Stop(context.Background())
		cancel()
	})

	return s, jobs
}

func TestScreenshotHappyPath(t *testing.T) {
	capturer := &fakeCapturer{}
	store := &fakeUploader{enabled: true}
	repo := &fakeAttacher{}
	dlq := &captureDLQ{}
	_, jobs := newTestScreenshotWorkers(t, capturer, store, repo, dlq)

	jobs <- domain.ScreenshotJob{TaskID: "t1", SubURL: "https://shop.example/pay", Keyword: "merchant@upi"}

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.attached) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, dlq.shots)
}

func TestScreenshotRetriesRenderThenSucceeds(t *testing.T) {
	capturer := &fakeCapturer{failures: 2}
	store := &fakeUploader{enabled: true}
	repo := &fakeAttacher{}
	dlq := &captureDLQ{}
	_, jobs := newTestScreenshotWorkers(t, capturer, store, repo, dlq)

	jobs <- domain.ScreenshotJob{TaskID: "t1", SubURL: "https://shop.example/pay", Keyword: "merchant@upi"}

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.attached) == 1
	}, time.Second, 5*time.Millisecond)

	capturer.mu.Lock()
	defer capturer.mu.Unlock()
	assert.Equal(t, 3, capturer.calls)
}

func TestScreenshotRenderExhaustionGoesToDLQ(t *testing.T) {
	capturer := &fakeCapturer{failures: 10}
	store := &fakeUploader{enabled: true}
	repo := &fakeAttacher{}
	dlq := &captureDLQ{}
	_, jobs := newTestScreenshotWorkers(t, capturer, store, repo, dlq)

	jobs <- domain.ScreenshotJob{TaskID: "t1", SubURL: "https://shop.example/pay", Keyword: "merchant@upi"}

	require.Eventually(t, func() bool {
		dlq.mu.Lock()
		defer dlq.mu.Unlock()
		return len(dlq.shots) == 1
	}, time.Second, 5*time.Millisecond)

	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	assert.Contains(t, dlq.shots[0].Error, "render:")
}

func TestScreenshotUploadDisabledSkipsAttach(t *testing.T) {
	capturer := &fakeCapturer{}
	store := &fakeUploader{enabled: false}
	repo := &fakeAttacher{}
	dlq := &captureDLQ{}
	s, jobs := newTestScreenshotWorkers(t, capturer, store, repo, dlq)

	jobs <- domain.ScreenshotJob{TaskID: "t1", SubURL: "https://shop.example/pay", Keyword: "merchant@upi"}

	require.Eventually(t, func() bool {
		capturer.mu.Lock()
		defer capturer.mu.Unlock()
		return capturer.calls == 1
	}, time.Second, 5*time.Millisecond)

	s.Stop(context.Background())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Zero(t, repo.calls)
	assert.Empty(t, dlq.shots)
}

func TestScreenshotAttachRetriesUntilRowLands(t *testing.T) {
	capturer := &fakeCapturer{}
	store := &fakeUploader{enabled: true}
	repo := &fakeAttacher{misses: 2}
	dlq := &captureDLQ{}
	_, jobs := newTestScreenshotWorkers(t, capturer, store, repo, dlq)

	jobs <- domain.ScreenshotJob{TaskID: "t1", SubURL: "https://shop.example/pay", Keyword: "merchant@upi"}

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.attached) == 1
	}, time.Second, 5*time.Millisecond)
}
