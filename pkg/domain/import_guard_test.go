package domain_test

import (
	"testing"

	"experimentcore/testutil"
)

// The published domain model stays free of dependencies on the internal
// adapters, directly and transitively.
func TestDomainHasNoInternalImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ImportsInternal,
		"pkg/domain must not depend on internal packages")
}

func TestDomainHasNoTransitiveInternalDependencies(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, ".", testutil.ImportsInternal,
		"pkg/domain must not depend on internal packages")
}
