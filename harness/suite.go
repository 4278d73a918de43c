package harness

// Hook is a BeforeAll, AfterAll, BeforeEach or AfterEach function.
type Hook func(c *Context)

// Test is a single test case of a Suite.
type Test struct {
	Name  string
	Fn    func(c *Context)
	suite *Suite
}

// Suite returns the suite the test belongs to.
func (t *Test) Suite() *Suite {
	return t.suite
}

// ID returns the full identifier of the test.
func (t *Test) ID() TestID {
	return t.suite.ID().Plus(t.Name)
}

// Suite is a named group of tests and nested suites.
type Suite struct {
	Name       string
	parent     *Suite
	children   []interface{}
	beforeAll  []Hook
	afterAll   []Hook
	beforeEach []Hook
	afterEach  []Hook
}

// Parent returns the enclosing suite, or nil for the root suite.
func (s *Suite) Parent() *Suite {
	return s.parent
}

// ID returns the path of suite names from the root. The root suite has an empty path.
func (s *Suite) ID() TestID {
	if s.parent == nil {
		return TestID{}
	}
	return s.parent.ID().Plus(s.Name)
}

// Describe adds a nested suite and calls fn to declare its contents.
func (s *Suite) Describe(name string, fn func(s *Suite)) *Suite {
	child := &Suite{Name: name, parent: s}
	s.children = append(s.children, child)
	if fn != nil {
		fn(child)
	}
	return child
}

// It adds a test.
func (s *Suite) It(name string, fn func(c *Context)) *Test {
	t := &Test{Name: name, Fn: fn, suite: s}
	s.children = append(s.children, t)
	return t
}

func (s *Suite) BeforeAll(h Hook)  { s.beforeAll = append(s.beforeAll, h) }
func (s *Suite) AfterAll(h Hook)   { s.afterAll = append(s.afterAll, h) }
func (s *Suite) BeforeEach(h Hook) { s.beforeEach = append(s.beforeEach, h) }
func (s *Suite) AfterEach(h Hook)  { s.afterEach = append(s.afterEach, h) }

// PrependBeforeAll adds a BeforeAll hook that runs before the ones already added.
func (s *Suite) PrependBeforeAll(h Hook) {
	s.beforeAll = append([]Hook{h}, s.beforeAll...)
}

// Tests returns the tests directly in s, not those of nested suites.
func (s *Suite) Tests() []*Test {
	var ret []*Test
	for _, child := range s.children {
		if t, ok := child.(*Test); ok {
			ret = append(ret, t)
		}
	}
	return ret
}

// Suites returns the suites directly nested in s.
func (s *Suite) Suites() []*Suite {
	var ret []*Suite
	for _, child := range s.children {
		if sub, ok := child.(*Suite); ok {
			ret = append(ret, sub)
		}
	}
	return ret
}

// eachHooks returns the BeforeEach hooks of s and its ancestors, outermost first, and the
// AfterEach hooks, innermost first.
func (s *Suite) eachHooks() (before, after []Hook) {
	var chain []*Suite
	for cur := s; cur != nil; cur = cur.parent {
		chain = append([]*Suite{cur}, chain...)
	}
	for _, cur := range chain {
		before = append(before, cur.beforeEach...)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		after = append(after, chain[i].afterEach...)
	}
	return before, after
}
