// Package bootstrap is the entry point of egg-mock child processes: the cluster started by the
// cluster package and the helper that forwards a single call to it. Both are the test binary
// started again with EGG_MOCK_BOOTSTRAP=1, so test packages hand control to Main in TestMain.
package bootstrap
