// Package all imports all supported registry implementations.
//
// Import this package for its side effects to register both ecosystems:
//
//	import (
//		"github.com/asof-dev/asof"
//		_ "github.com/asof-dev/asof/all"
//	)
//
//	ecosystems := asof.SupportedEcosystems()
//	// ["conda", "pypi"]
package all

import (
	_ "github.com/asof-dev/asof/internal/conda"
	_ "github.com/asof-dev/asof/internal/pypi"
)
