package model

import _ "embed"

//go:embed assets/baseline_model.json
var baselineArtifact []byte

//go:embed assets/locations.json
var defaultLocations []byte

// BaselineArtifact returns the embedded logistic baseline.
func BaselineArtifact() []byte { return baselineArtifact }
