package ratelimit_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derekakrasi/callguard/internal/models"
	"github.com/derekakrasi/callguard/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestKey_AxesNeverCollide(t *testing.T) {
	assert.Equal(t, "ratelimit:attempts:alice@example.com",
		ratelimit.Key("alice@example.com", "attempts", ratelimit.ByIdentifier))
	assert.Equal(t, "ipratelimit:attempts:192.168.1.50",
		ratelimit.Key("192.168.1.50", "attempts", ratelimit.ByIP))
	assert.NotEqual(t,
		ratelimit.Key("10.0.0.1", "log", ratelimit.ByIdentifier),
		ratelimit.Key("10.0.0.1", "log", ratelimit.ByIP))
}

func TestLedger_CountMissingKeyIsZero(t *testing.T) {
	ledger := ratelimit.NewLedger(newFakeStore(), time.Hour, testLogger())

	count, err := ledger.Count(context.Background(), "nobody@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestLedger_IncrementSetsExpiryOnlyOnce(t *testing.T) {
	st := newFakeStore()
	ledger := ratelimit.NewLedger(st, time.Hour, testLogger())
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		count, err := ledger.Increment(ctx, "alice@example.com", ratelimit.ByIdentifier)
		require.NoError(t, err)
		assert.Equal(t, int64(i), count)
	}

	// The window stays anchored to the first attempt
	key := ratelimit.Key("alice@example.com", "attempts", ratelimit.ByIdentifier)
	assert.Equal(t, 1, st.expireCalls[key])
}

func TestLedger_SecondsToResetTracksWindow(t *testing.T) {
	st := newFakeStore()
	ledger := ratelimit.NewLedger(st, time.Hour, testLogger())
	ctx := context.Background()

	// No window open yet
	seconds, err := ledger.SecondsToReset(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seconds)

	_, err = ledger.Increment(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)

	seconds, err = ledger.SecondsToReset(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), seconds)

	st.advance(600)
	seconds, err = ledger.SecondsToReset(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), seconds)
}

func TestLedger_WindowExpiryClearsCounter(t *testing.T) {
	st := newFakeStore()
	ledger := ratelimit.NewLedger(st, time.Hour, testLogger())
	ctx := context.Background()

	_, err := ledger.Increment(ctx, "carol@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)

	st.advance(3601)

	count, err := ledger.Count(ctx, "carol@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestLedger_AppendAndReadLog(t *testing.T) {
	ledger := ratelimit.NewLedger(newFakeStore(), time.Hour, testLogger())
	ctx := context.Background()

	first := models.AttemptRecord{
		Identifier:    "alice@example.com",
		IP:            "10.0.0.1",
		UserAgent:     "curl/8.0",
		Success:       false,
		AttemptNumber: 1,
	}
	second := first
	second.AttemptNumber = 2
	second.Success = true

	require.NoError(t, ledger.AppendLog(ctx, "alice@example.com", ratelimit.ByIdentifier, first))
	require.NoError(t, ledger.AppendLog(ctx, "alice@example.com", ratelimit.ByIdentifier, second))

	records, err := ledger.ReadLog(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].AttemptNumber)
	assert.False(t, records[0].Success)
	assert.Equal(t, int64(2), records[1].AttemptNumber)
	assert.True(t, records[1].Success)
}

func TestLedger_AppendLogRefreshesExpiry(t *testing.T) {
	st := newFakeStore()
	ledger := ratelimit.NewLedger(st, time.Hour, testLogger())
	ctx := context.Background()

	rec := models.AttemptRecord{IP: "10.0.0.1", AttemptNumber: 1}
	require.NoError(t, ledger.AppendLog(ctx, "alice@example.com", ratelimit.ByIdentifier, rec))

	st.advance(3000)
	rec.AttemptNumber = 2
	require.NoError(t, ledger.AppendLog(ctx, "alice@example.com", ratelimit.ByIdentifier, rec))

	// The rolling expiry means the first record is still readable after the
	// original window would have lapsed
	st.advance(1000)
	records, err := ledger.ReadLog(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLedger_ReadLogRejectsMalformedRecord(t *testing.T) {
	st := newFakeStore()
	ledger := ratelimit.NewLedger(st, time.Hour, testLogger())
	ctx := context.Background()

	key := ratelimit.Key("alice@example.com", "log", ratelimit.ByIdentifier)
	require.NoError(t, st.RPushWithExpiry(ctx, key, "{not json", time.Hour))

	_, err := ledger.ReadLog(ctx, "alice@example.com", ratelimit.ByIdentifier)
	assert.Error(t, err)
}

func TestLedger_ScanIdentifiers(t *testing.T) {
	st := newFakeStore()
	ledger := ratelimit.NewLedger(st, time.Hour, testLogger())
	ctx := context.Background()

	_, err := ledger.Increment(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	_, err = ledger.Increment(ctx, "bob@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	_, err = ledger.Increment(ctx, "10.0.0.1", ratelimit.ByIP)
	require.NoError(t, err)

	identifiers, err := ledger.ScanIdentifiers(ctx, ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, identifiers)

	ips, err := ledger.ScanIdentifiers(ctx, ratelimit.ByIP)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.0.0.1"}, ips)
}

func TestLedger_DeleteCounterKeepsLog(t *testing.T) {
	st := newFakeStore()
	ledger := ratelimit.NewLedger(st, time.Hour, testLogger())
	ctx := context.Background()

	_, err := ledger.Increment(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	rec := models.AttemptRecord{IP: "10.0.0.1", AttemptNumber: 1}
	require.NoError(t, ledger.AppendLog(ctx, "alice@example.com", ratelimit.ByIdentifier, rec))

	require.NoError(t, ledger.DeleteCounter(ctx, "alice@example.com", ratelimit.ByIdentifier))

	count, err := ledger.Count(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	records, err := ledger.ReadLog(ctx, "alice@example.com", ratelimit.ByIdentifier)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLedger_StoreFailurePropagates(t *testing.T) {
	st := newFakeStore()
	st.failing = true
	ledger := ratelimit.NewLedger(st, time.Hour, testLogger())
	ctx := context.Background()

	_, err := ledger.Count(ctx, "alice@example.com", ratelimit.ByIdentifier)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	_, err = ledger.Increment(ctx, "alice@example.com", ratelimit.ByIdentifier)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}
