package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestScheduleCmd_PrintsRows(t *testing.T) {
	// GIVEN: A quarterly contract file
	path := filepath.Join(t.TempDir(), "contract.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"id": "c-1",
		"property_id": "prop-1",
		"tenants": [{"name": "Dana"}],
		"start_date": "2024-01-01",
		"end_date": "2024-12-31",
		"rent_amount": 6000,
		"currency": "ILS",
		"payment_frequency": "quarterly",
		"payment_day": 1,
		"status": "active"
	}`), 0o600))

	// WHEN: The schedule is printed
	out, err := runRoot(t, "schedule", "-f", path)

	// THEN: Four quarterly rows and the yearly total
	require.NoError(t, err, out)
	assert.Contains(t, out, "2024-01-01")
	assert.Contains(t, out, "2024-04-01")
	assert.Contains(t, out, "2024-07-01")
	assert.Contains(t, out, "2024-10-01")
	assert.NotContains(t, out, "2025-01-01")
	assert.Contains(t, out, "24000.00")
}

func TestScheduleCmd_InvalidContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contract.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": "c-1", "start_date": "2024-01-01"}`), 0o600))

	_, err := runRoot(t, "schedule", "-f", path)
	assert.Error(t, err)
}

func TestScheduleCmd_ReadsConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contract.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"property_id": "prop-1", "tenants": [{"name": "Dana"}],
		"start_date": "2024-01-01", "rent_amount": 5000, "payment_frequency": "monthly", "payment_day": 1}`), 0o600))

	// an unsupported currency in the config file fails the command
	cfgPath := filepath.Join(dir, "lease.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("currency: USD\n"), 0o600))
	_, err := runRoot(t, "--config", cfgPath, "schedule", "-f", path)
	assert.ErrorContains(t, err, "currency")

	// the default config fills the one-year end date
	out, err := runRoot(t, "schedule", "-f", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2024-12-01")
	assert.Contains(t, out, "60000.00")
}

func TestResolveIndexCmd(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		subType string
		want    string
	}{
		{"known before publication day", "2024-03-10", "known", "2024-01-15"},
		{"known after publication day", "2024-03-20", "known", "2024-02-15"},
		{"respect of", "2024-03-10", "respect_of", "2024-03-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runRoot(t, "resolve-index", "--date", tt.date, "--sub-type", tt.subType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))
		})
	}
}

func TestResolveIndexCmd_BadDate(t *testing.T) {
	_, err := runRoot(t, "resolve-index", "--date", "10/03/2024")
	assert.Error(t, err)
}
