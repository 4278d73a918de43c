// Package harness is a small mocha-style test runner: suites of tests with before/after hooks,
// run in declaration order.
//
// The general model is:
//
// 1. Tests are declared as a tree of Suites, each with BeforeAll, AfterAll, BeforeEach and
// AfterEach hooks.
//
// 2. There is a test Context which is similar to Go's *testing.T, allowing pieces of test logic
// to be associated with a test identifier and to accumulate success/failure results.
//
// 3. The functions that execute a suite and a single test can be wrapped, so that other packages
// can run them inside a scope of their own. egg-mock uses this to give every test a mocked
// request context.
package harness
