package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/config"
	notifymemory "github.com/JakeFAU/bbdc-slot-bot/internal/notify/memory"
	"github.com/JakeFAU/bbdc-slot-bot/internal/server"
	"github.com/JakeFAU/bbdc-slot-bot/internal/worker"
)

type fakeApp struct {
	result   worker.Result
	slots    booking.Slots
	users    []*booking.User
	recorded []notifymemory.Message

	scannedFor string
	closed     int
}

func (f *fakeApp) Run(context.Context) error { return nil }

func (f *fakeApp) RunOnce(context.Context) (worker.Result, error) { return f.result, nil }

func (f *fakeApp) Scan(_ context.Context, username string) (booking.Slots, error) {
	f.scannedFor = username
	return f.slots, nil
}

func (f *fakeApp) Users() []*booking.User { return f.users }

func (f *fakeApp) Recorded() []notifymemory.Message { return f.recorded }

func (f *fakeApp) Close(context.Context) error {
	f.closed++
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Interval:    5,
		CourseType:  "3A",
		QueryMonths: []string{"202407"},
		Accounts: []config.AccountConfig{
			{Username: "S1234567A", Password: "hunter2", ChatID: "111"},
		},
		Telegram: config.TelegramConfig{Token: "123:secret-token"},
	}
}

// stubDeps swaps the config loader and app factory for the duration of a test.
func stubDeps(t *testing.T, app *fakeApp, buildErr error) *server.Options {
	t.Helper()
	var seen server.Options
	prevLoad, prevNew := loadConfig, newApp
	loadConfig = func(string) (config.Config, error) { return testConfig(), nil }
	newApp = func(_ context.Context, _ *config.Config, _ *zap.Logger, opts server.Options) (App, error) {
		seen = opts
		if buildErr != nil {
			return nil, buildErr
		}
		return app, nil
	}
	t.Cleanup(func() {
		loadConfig, newApp = prevLoad, prevNew
	})
	return &seen
}

func mustSlot(t *testing.T, day string, session int) booking.Slot {
	t.Helper()
	d, err := time.Parse(booking.DateLayout, day)
	require.NoError(t, err)
	slot, err := booking.NewSlot(booking.SlotTypePractical, d, session)
	require.NoError(t, err)
	return slot
}

func TestOnceRendersOutcomeAndRecordedMessages(t *testing.T) {
	booked := mustSlot(t, "2024-07-02", 3)
	spare := mustSlot(t, "2024-07-03", 1)
	app := &fakeApp{
		result: worker.Result{
			TickID:    "tick-1",
			Account:   "S1234567A",
			Found:     booking.Slots{"101": booked, "102": spare},
			Booked:    map[string]booking.Slots{"S1234567A": {"101": booked}},
			Remaining: booking.Slots{"102": spare},
		},
		recorded: []notifymemory.Message{{ChatID: notifymemory.BroadcastChat, Text: "Slot found:\n" + spare.String()}},
	}
	opts := stubDeps(t, app, nil)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"once", "--dry-run"}, &out))

	assert.True(t, opts.DryRun)
	text := out.String()
	assert.Contains(t, text, "booked")
	assert.Contains(t, text, "unclaimed")
	assert.Contains(t, text, "2 found, 1 booked")
	assert.Contains(t, text, notifymemory.BroadcastChat)
	assert.Equal(t, 1, app.closed)
}

func TestOnceWithoutSlots(t *testing.T) {
	app := &fakeApp{result: worker.Result{TickID: "tick-2", Account: "S1234567A"}}
	stubDeps(t, app, nil)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"once"}, &out))
	assert.Contains(t, out.String(), "No Slot Found")
	assert.NotContains(t, out.String(), "not sent")
}

func TestSlotsShowsWhoWantsEachSlot(t *testing.T) {
	wanted := mustSlot(t, "2024-07-02", 3)
	other := mustSlot(t, "2024-07-04", 6)
	app := &fakeApp{
		slots: booking.Slots{"101": wanted, "205": other},
		users: []*booking.User{booking.NewUser("S7654321Z", "pw", "", []booking.Slot{wanted})},
	}
	opts := stubDeps(t, app, nil)

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"slots", "--account", "S7654321Z"}, &out))

	assert.False(t, opts.DryRun)
	assert.Equal(t, "S7654321Z", app.scannedFor)
	text := out.String()
	assert.Contains(t, text, "2024-07-02")
	assert.Contains(t, text, "17:10-18:50")
	assert.Contains(t, text, "S7654321Z")
	assert.Contains(t, text, "2 slot(s) released")
}

func TestConfigPrintsRedactedYAML(t *testing.T) {
	stubDeps(t, nil, errors.New("must not build"))

	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"config"}, &out))

	text := out.String()
	assert.Contains(t, text, "S1234567A")
	assert.Contains(t, text, "query_months")
	assert.NotContains(t, text, "hunter2")
	assert.NotContains(t, text, "secret-token")
}

func TestBuildFailureIsReported(t *testing.T) {
	stubDeps(t, nil, errors.New("boom"))

	err := execute(context.Background(), []string{"once"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestConfigLoadFailureIsReported(t *testing.T) {
	stubDeps(t, &fakeApp{}, nil)
	loadConfig = func(string) (config.Config, error) {
		return config.Config{}, errors.New("no interval")
	}

	err := execute(context.Background(), []string{"run"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
