package doctor_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/macropower/dotup/pkg/doctor"
)

func TestConstructors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		want doctor.Result
		got  doctor.Result
	}{
		"pass": {
			got: doctor.Pass("config", "loaded 4 entries"),
			want: doctor.Result{
				Name:    "config",
				Status:  doctor.StatusPass,
				Message: "loaded 4 entries",
			},
		},
		"fail": {
			got: doctor.Fail("source dir", "no such directory"),
			want: doctor.Result{
				Name:    "source dir",
				Status:  doctor.StatusFail,
				Message: "no such directory",
			},
		},
		"fail with fix": {
			got: doctor.FailWithFix("shell integration", "not installed", "dotup shell install"),
			want: doctor.Result{
				Name:    "shell integration",
				Status:  doctor.StatusFail,
				Message: "not installed",
				FixHint: "dotup shell install",
			},
		},
		"warn": {
			got: doctor.Warn("manager brew", "binary not found"),
			want: doctor.Result{
				Name:    "manager brew",
				Status:  doctor.StatusWarn,
				Message: "binary not found",
			},
		},
		"skip": {
			got: doctor.Skip("age identity", "no encrypted entries"),
			want: doctor.Result{
				Name:    "age identity",
				Status:  doctor.StatusSkip,
				Message: "no encrypted entries",
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, tc.got)
		})
	}
}

func TestPrintChecklist(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		results      []doctor.Result
		wantContains []string
		wantOK       bool
	}{
		"all passing": {
			results: []doctor.Result{
				doctor.Pass("config", "loaded 4 entries"),
				doctor.Pass("journal", "writable"),
			},
			wantOK: true,
			wantContains: []string{
				"[PASS ]",
				"config",
				"loaded 4 entries",
				"All checks passed.",
			},
		},
		"with failure": {
			results: []doctor.Result{
				doctor.Pass("config", "loaded 4 entries"),
				doctor.FailWithFix("shell integration", "not installed", "dotup shell install"),
			},
			wantOK: false,
			wantContains: []string{
				"[FAIL ]",
				"shell integration",
				"fix: dotup shell install",
				"Some checks failed.",
			},
		},
		"warnings do not fail": {
			results: []doctor.Result{
				doctor.Warn("manager brew", "binary not found"),
				doctor.Skip("age identity", "no encrypted entries"),
			},
			wantOK: true,
			wantContains: []string{
				"[WARN ]",
				"[SKIP ]",
				"All checks passed.",
			},
		},
		"failure without hint": {
			results: []doctor.Result{
				doctor.Fail("source dir", "no such directory"),
			},
			wantOK: false,
			wantContains: []string{
				"[FAIL ]",
				"no such directory",
				"Some checks failed.",
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			ok := doctor.PrintChecklist(&buf, tc.results)

			assert.Equal(t, tc.wantOK, ok)
			for _, want := range tc.wantContains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestNewReport(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		results []doctor.Result
		wantOK  bool
	}{
		"empty": {
			results: nil,
			wantOK:  true,
		},
		"passing": {
			results: []doctor.Result{
				doctor.Pass("config", "ok"),
				doctor.Warn("manager apt", "binary not found"),
			},
			wantOK: true,
		},
		"failing": {
			results: []doctor.Result{
				doctor.Pass("config", "ok"),
				doctor.Fail("journal", "not writable"),
			},
			wantOK: false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			report := doctor.NewReport(tc.results)

			assert.Equal(t, tc.wantOK, report.OK)
			assert.Equal(t, tc.results, report.Checks)
		})
	}
}
