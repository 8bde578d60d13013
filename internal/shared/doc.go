// Package shared holds helpers used by more than one package.
//
// The testutil subpackage captures slog output in tests and writes small
// retail workbooks with excelize so loader, pipeline and export tests share
// the same fixtures:
//
//	logger, logs := testutil.NewTestLogger(t)
//	path := testutil.WriteWorkbook(t, testutil.ThreeRowWorkbook())
//	...
//	testutil.AssertLogContains(t, logs, slog.LevelInfo, "workbook loaded")
package shared
