// Package plugins hosts plugin implementation subpackages. It intentionally
// contains no production runtime code itself; this file exists to satisfy
// tooling (go vet, import guards) for the architectural guard tests that
// live alongside it.
//
// Plugin packages build exclusively against the stable surfaces in
// pkg/pluginapi, pkg/hook, and pkg/domain. They must never import the engine
// internals: a plugin compiled today keeps working when the pipeline
// implementation changes underneath it.
package plugins
