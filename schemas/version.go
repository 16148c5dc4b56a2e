package schema

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion is the current schema version. Configurations declare the
// version they were written for in forgeVersion.
const SchemaVersion = "1.0.0"

// IsCompatible reports whether userVersion satisfies ^SchemaVersion.
// An unparsable version is an error; an incompatible one is not.
func IsCompatible(userVersion string) (bool, error) {
	constraint, err := semver.NewConstraint("^" + SchemaVersion)
	if err != nil {
		return false, fmt.Errorf("invalid schema version: %w", err)
	}
	v, err := semver.NewVersion(userVersion)
	if err != nil {
		return false, fmt.Errorf("invalid forgeVersion %q: %w", userVersion, err)
	}
	return constraint.Check(v), nil
}
