// Package meaning implements the Meaning Engine: a fixed-order repo-lens
// pipeline that turns a project's structure into an evidence-backed
// Cognitive Pack describing what the repo is, how to run it, and where its
// boundaries are.
package meaning

// Evidence anchors a Claim to something concrete a reader can go look at.
type Evidence struct {
	Path      string
	StartLine int
	EndLine   int
	Snippet   string
}

// ClaimKind enumerates what a lens asserted.
type ClaimKind string

const (
	ClaimAnchor        ClaimKind = "anchor"
	ClaimCanonStep     ClaimKind = "canon_step"
	ClaimBoundary      ClaimKind = "boundary"
	ClaimContract      ClaimKind = "contract"
	ClaimArtifactStore ClaimKind = "artifact_store"
)

// AnchorKind narrows an "anchor" claim (spec.md §4.9).
type AnchorKind string

const (
	AnchorCanon    AnchorKind = "canon"
	AnchorHowto    AnchorKind = "howto"
	AnchorInfra    AnchorKind = "infra"
	AnchorSkeleton AnchorKind = "skeleton"
)

// BoundaryKind narrows a "boundary" claim.
type BoundaryKind string

const (
	BoundaryBuild BoundaryKind = "build"
	BoundaryRun   BoundaryKind = "run"
	BoundaryTest  BoundaryKind = "test"
	BoundaryServe BoundaryKind = "serve"
)

// Claim is one lens's deterministic, evidence-backed assertion. A lens
// that can't find evidence emits no claim at all (fail-soft).
type Claim struct {
	Kind         ClaimKind
	AnchorKind   AnchorKind
	BoundaryKind BoundaryKind
	Title        string
	Summary      string
	Evidence     []Evidence
	Confidence   float64 // 0..1
	Steps        []string // populated only for canon_step chains
}

// ArchetypeSignals are the Archetype detector's stable, claim-free output —
// every later lens may read these but none of them are themselves Claims.
type ArchetypeSignals struct {
	TopDirFileCounts map[string]int
	HasChangelog     bool
	HasReadme        bool
	HasAgentsDoc     bool
	HasPhilosophyDoc bool
	BuildManifests   []string // go.mod, package.json, Cargo.toml, ...
	CIConfigs        []string
	ContractDirs     []string
	ArtifactDirs     []string
	LanguageMix      map[string]int // language -> file count
}

// AnchorNodeKind is one of the Anchor Graph's fixed node kinds.
type AnchorNodeKind string

const (
	NodeStartHere  AnchorNodeKind = "StartHere"
	NodeCanon      AnchorNodeKind = "Canon"
	NodeHowToRun   AnchorNodeKind = "HowToRun"
	NodeOutputs    AnchorNodeKind = "Outputs"
	NodeInterfaces AnchorNodeKind = "Interfaces"
	NodeCore       AnchorNodeKind = "Core"
)

// AnchorNode is one fixed-kind node in the Anchor Graph, carrying the
// claims that composed it.
type AnchorNode struct {
	Kind   AnchorNodeKind
	Claims []Claim
}

// AnchorGraph is the fixed-shape composition of every lens's claims.
type AnchorGraph struct {
	Nodes []AnchorNode
}

// CognitivePack is the serialized engine output, in the fixed section
// order spec.md §4.9 mandates.
type CognitivePack struct {
	Anchors    []Claim // S ANCHORS, 3-7 items
	Canon      []Claim // S CANON
	Boundaries []Claim // S BOUNDARIES
	Outputs    []Claim // S OUTPUTS
	Map        MapSection // S MAP
	Evidence   []Evidence // S EVIDENCE, referenced-first
	NBA        []string   // next best action, never dropped
	Truncated  bool
}

// MapSection is the noise-budgeted structure map; artifact dirs are
// suppressed from it entirely, never merely truncated.
type MapSection struct {
	TopModules  []string
	Entrypoints []string
}
