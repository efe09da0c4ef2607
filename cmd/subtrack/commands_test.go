package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/subtrack/billing"
)

const netflixExport = `{
	"version": 1,
	"subscriptions": [{
		"id": "netflix", "name": "Netflix", "price": 199, "currency": "₹",
		"billingCycle": "monthly", "nextPaymentDate": "2025-01-31",
		"category": "Entertainment"
	}]
}`

// testEnv points config and data dirs at a temp dir and returns a db path.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("SUBTRACK_LOG_LEVEL", "error")
	return filepath.Join(dir, "data", "subtrack.db")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func importNetflix(t *testing.T, db string) {
	t.Helper()
	out, err := run(t, "--db", db, "import", writeFile(t, "netflix.json", netflixExport))
	require.NoError(t, err, out)
	require.Contains(t, out, "Imported 1 subscriptions")
}

func TestSeedThenSummary(t *testing.T) {
	db := testEnv(t)

	out, err := run(t, "--db", db, "seed")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Seeded 9 subscriptions")

	out, err = run(t, "--db", db, "summary")
	require.NoError(t, err, out)
	assert.Contains(t, out, "8 active, 1 cancelled, 9 total")
	assert.Contains(t, out, "By category (monthly):")
}

func TestExportThenImport(t *testing.T) {
	db := testEnv(t)
	_, err := run(t, "--db", db, "seed")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "backup.json")
	out, err := run(t, "--db", db, "export", file)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Exported 9 subscriptions")

	other := filepath.Join(filepath.Dir(db), "other.db")
	out, err = run(t, "--db", other, "import", "--replace", file)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Imported 9 subscriptions")

	out, err = run(t, "--db", other, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "9 total")
}

func TestExport_ToStdout(t *testing.T) {
	db := testEnv(t)
	importNetflix(t, db)

	out, err := run(t, "--db", db, "export")

	require.NoError(t, err)
	assert.Contains(t, out, `"version": 1`)
	assert.Contains(t, out, `"name": "Netflix"`)
}

func TestImport_InvalidFile(t *testing.T) {
	db := testEnv(t)

	_, err := run(t, "--db", db, "import", writeFile(t, "bad.json", `[{"name":"Broken"}]`))

	assert.ErrorIs(t, err, billing.ErrInvalidSubscription)
}

func TestRenewals(t *testing.T) {
	db := testEnv(t)
	importNetflix(t, db)

	out, err := run(t, "--db", db, "renewals", "netflix", "--from", "2025-01-01", "--to", "2025-04-30")

	require.NoError(t, err, out)
	assert.Contains(t, out, "2025-02-28")
	assert.Contains(t, out, "2025-04-30")
	assert.Contains(t, out, "4 renewals, total ₹796.00")
}

func TestRenewals_RolloverPolicy(t *testing.T) {
	db := testEnv(t)
	importNetflix(t, db)

	out, err := run(t, "--db", db, "--month-end", "rollover", "renewals", "netflix", "--from", "2025-01-01", "--to", "2025-04-30")

	require.NoError(t, err, out)
	assert.Contains(t, out, "2025-03-03")
	assert.NotContains(t, out, "2025-02-28")
	assert.Contains(t, out, "3 renewals")
}

func TestRenewals_Errors(t *testing.T) {
	db := testEnv(t)
	importNetflix(t, db)

	_, err := run(t, "--db", db, "renewals", "missing")
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	_, err = run(t, "--db", db, "renewals", "netflix", "--from", "2025-05-01", "--to", "2025-04-01")
	assert.ErrorIs(t, err, billing.ErrInvalidWindow)

	_, err = run(t, "--db", db, "renewals", "netflix", "--from", "yesterday")
	assert.Error(t, err)

	_, err = run(t, "--db", db, "--month-end", "nearest", "renewals", "netflix")
	assert.Error(t, err)
}

func TestCalendar(t *testing.T) {
	db := testEnv(t)
	importNetflix(t, db)

	out, err := run(t, "--db", db, "calendar", "--year", "2025", "--month", "2")

	require.NoError(t, err, out)
	assert.Contains(t, out, "February 2025")
	assert.Contains(t, out, "Feb 28")
	assert.Contains(t, out, "Total:    ₹199.00")

	_, err = run(t, "--db", db, "calendar", "--month", "13")
	assert.Error(t, err)
}

func TestAdvance(t *testing.T) {
	// GIVEN: Netflix's next payment is long past
	db := testEnv(t)
	importNetflix(t, db)

	// WHEN: The advancer runs
	out, err := run(t, "--db", db, "advance")

	// THEN: The subscription moves forward; a second run finds nothing
	require.NoError(t, err, out)
	assert.Contains(t, out, "Checked 1, advanced 1")

	out, err = run(t, "--db", db, "advance")
	require.NoError(t, err)
	assert.Contains(t, out, "advanced 0")
}

func TestReminders_Empty(t *testing.T) {
	db := testEnv(t)
	importNetflix(t, db)

	out, err := run(t, "--db", db, "reminders", "--days", "7")

	require.NoError(t, err)
	assert.Contains(t, out, "No reminders in the next 7 days")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "subtrack dev")
}

func TestDBDir(t *testing.T) {
	assert.Equal(t, "", dbDir(":memory:"))
	assert.Equal(t, "", dbDir("local.db"))
	assert.Equal(t, "/var/lib/subtrack", dbDir("/var/lib/subtrack/subtrack.db"))
}
