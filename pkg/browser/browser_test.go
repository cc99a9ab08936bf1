package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igfetch/pkg/config"
	"igfetch/pkg/logger"
	"igfetch/pkg/pacing"
	"igfetch/pkg/session"
)

type fakeScroller struct {
	height    int
	heightErr error
	failAt    int
	positions []int
}

func (f *fakeScroller) ScrollHeight() (int, error) { return f.height, f.heightErr }

func (f *fakeScroller) ScrollTo(y int) error {
	if f.failAt > 0 && len(f.positions)+1 == f.failAt {
		return errors.New("target closed")
	}
	f.positions = append(f.positions, y)
	return nil
}

func TestHumanScrollReachesBottom(t *testing.T) {
	target := &fakeScroller{height: 1000}
	delay := pacing.NewSequence(0)

	steps, err := HumanScroll(context.Background(), target, pacing.IntRange{Min: 100, Max: 300}, delay)
	require.NoError(t, err)

	require.NotEmpty(t, target.positions)
	assert.Equal(t, len(target.positions), steps)
	assert.Equal(t, 1000, target.positions[len(target.positions)-1])
	assert.Equal(t, steps, delay.Calls(), "one pause per step")

	prev := 0
	for _, y := range target.positions {
		inc := y - prev
		assert.Greater(t, inc, 0)
		if y < 1000 {
			assert.GreaterOrEqual(t, inc, 100)
			assert.LessOrEqual(t, inc, 300)
		}
		prev = y
	}
}

func TestHumanScrollFixedSteps(t *testing.T) {
	target := &fakeScroller{height: 450}
	steps, err := HumanScroll(context.Background(), target, pacing.IntRange{Min: 200, Max: 200}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
	assert.Equal(t, []int{200, 400, 450}, target.positions)
}

func TestHumanScrollEmptyPage(t *testing.T) {
	target := &fakeScroller{height: 0}
	steps, err := HumanScroll(context.Background(), target, pacing.IntRange{Min: 100, Max: 300}, nil)
	require.NoError(t, err)
	assert.Zero(t, steps)
}

func TestHumanScrollErrors(t *testing.T) {
	_, err := HumanScroll(context.Background(), &fakeScroller{heightErr: errors.New("no body")}, pacing.IntRange{Min: 1, Max: 1}, nil)
	assert.ErrorContains(t, err, "scroll height")

	target := &fakeScroller{height: 1000, failAt: 2}
	steps, err := HumanScroll(context.Background(), target, pacing.IntRange{Min: 100, Max: 100}, nil)
	assert.ErrorContains(t, err, "target closed")
	assert.Equal(t, 1, steps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = HumanScroll(ctx, &fakeScroller{height: 1000}, pacing.IntRange{Min: 100, Max: 100}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHumanScrollGuardsZeroStep(t *testing.T) {
	target := &fakeScroller{height: 3}
	steps, err := HumanScroll(context.Background(), target, pacing.IntRange{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
}

type fakeCookiePage struct {
	openErr   error
	reloadErr error
	rejected  map[string]bool
	cancel    context.CancelFunc

	set     []string
	reloads int
}

func (f *fakeCookiePage) Open(context.Context, string) error {
	if f.cancel != nil {
		f.cancel()
	}
	return f.openErr
}

func (f *fakeCookiePage) SetCookie(_ context.Context, c session.Cookie) error {
	if f.rejected[c.Name] {
		return errors.New("invalid cookie fields")
	}
	f.set = append(f.set, c.Name)
	return nil
}

func (f *fakeCookiePage) Reload(context.Context) error {
	f.reloads++
	return f.reloadErr
}

func TestInjectSessionToleratesFailures(t *testing.T) {
	sess, err := session.Bootstrap("sessionid=s; csrftoken=c; ds_user_id=1", "")
	require.NoError(t, err)

	tests := []struct {
		name         string
		page         *fakeCookiePage
		wantInjected int
		wantSet      []string
		wantWarning  string
	}{
		{
			name:         "all cookies set",
			page:         &fakeCookiePage{},
			wantInjected: 3,
			wantSet:      []string{"sessionid", "csrftoken", "ds_user_id"},
		},
		{
			name:         "rejected cookie is skipped",
			page:         &fakeCookiePage{rejected: map[string]bool{"csrftoken": true}},
			wantInjected: 2,
			wantSet:      []string{"sessionid", "ds_user_id"},
			wantWarning:  "Failed to inject cookie",
		},
		{
			name:        "home page does not load",
			page:        &fakeCookiePage{openErr: errors.New("home page navigation timeout")},
			wantWarning: "Could not open home page, continuing unauthenticated",
		},
		{
			name:         "reload fails",
			page:         &fakeCookiePage{reloadErr: errors.New("target closed")},
			wantInjected: 3,
			wantSet:      []string{"sessionid", "csrftoken", "ds_user_id"},
			wantWarning:  "Reload after cookie injection failed, continuing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logger.NewTestLogger()
			n, err := injectSession(context.Background(), tt.page, "https://www.instagram.com/", sess.Cookies(), pacing.None, log)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInjected, n)
			assert.Equal(t, tt.wantSet, tt.page.set)
			if tt.wantWarning != "" {
				msg, ok := log.FindMessage(tt.wantWarning)
				require.True(t, ok, log.String())
				assert.Equal(t, "WARN", msg.Level)
			}
		})
	}
}

func TestInjectSessionReportsRejectedCookie(t *testing.T) {
	sess, err := session.Bootstrap("sessionid=s; csrftoken=c", "")
	require.NoError(t, err)

	log := logger.NewTestLogger()
	page := &fakeCookiePage{rejected: map[string]bool{"csrftoken": true}}
	_, err = injectSession(context.Background(), page, "https://www.instagram.com/", sess.Cookies(), pacing.None, log)
	require.NoError(t, err)

	warn, ok := log.FindMessage("Failed to inject cookie")
	require.True(t, ok)
	assert.Equal(t, "csrftoken", warn.Fields["cookie"])

	summary, ok := log.FindMessage("Cookies injected")
	require.True(t, ok)
	assert.Equal(t, 1, summary.Fields["injected"])
	assert.Equal(t, 2, summary.Fields["total"])
	assert.Equal(t, 1, page.reloads)
}

func TestInjectSessionWithoutCookies(t *testing.T) {
	page := &fakeCookiePage{}
	n, err := injectSession(context.Background(), page, "https://www.instagram.com/", nil, pacing.None, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, page.reloads, "no navigation without cookies")
}

func TestInjectSessionStopsOnCancel(t *testing.T) {
	sess, err := session.Bootstrap("sessionid=s", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	page := &fakeCookiePage{openErr: errors.New("navigation aborted"), cancel: cancel}
	_, err = injectSession(ctx, page, "https://www.instagram.com/", sess.Cookies(), pacing.None, logger.NewTestLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimingFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Browser
	timing := TimingFromConfig(cfg)

	for i := 0; i < 50; i++ {
		d := timing.Human.Next()
		assert.GreaterOrEqual(t, d, cfg.HumanDelay.Min)
		assert.LessOrEqual(t, d, cfg.HumanDelay.Max)

		step := timing.ScrollStep.Next()
		assert.GreaterOrEqual(t, step, cfg.ScrollStep.Min)
		assert.LessOrEqual(t, step, cfg.ScrollStep.Max)

		pause := timing.ScrollDelay.Next()
		assert.LessOrEqual(t, pause, 300*time.Millisecond)
	}
}

func TestCloseNilSession(t *testing.T) {
	var s *Session
	assert.NotPanics(t, s.Close)
}
