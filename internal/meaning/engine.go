package meaning

// Input bundles everything the fixed lens pipeline needs. Archetype
// detection runs first and its signals feed the Skeleton Lens; every
// other lens is independent and order among them only matters for the
// Anchor Graph's node assembly order (spec.md §4.9).
type Input struct {
	Files     []FileInfo
	CanonDocs []CanonDoc
}

// Run executes the fixed seven-lens pipeline in order and assembles the
// Anchor Graph. The order is load-bearing: Archetype never emits claims
// but its signals shape the Skeleton Lens's output, and the Anchor Graph's
// node order mirrors this call order so a StartHere claim always precedes
// Core claims in the assembled graph.
func Run(in Input) AnchorGraph {
	sig := DetectArchetype(in.Files)

	canon := RunCanonLens(in.CanonDocs)
	howto := RunHowToRunLens(in.Files)
	infra := RunInfraLens(in.Files)
	contracts := RunContractsLens(in.Files)
	artifacts := RunArtifactsLens(in.Files)
	skeleton := RunSkeletonLens(in.Files, sig)

	return assembleAnchorGraph(sig, canon, howto, infra, contracts, artifacts, skeleton)
}

// assembleAnchorGraph buckets every lens's claims into the Anchor Graph's
// six fixed node kinds. A claim lands in exactly one node by its Kind
// (AnchorKind distinguishes among "anchor" claims; boundary/contract/
// artifact_store claims go to Interfaces or Outputs by convention).
func assembleAnchorGraph(sig ArchetypeSignals, lensClaims ...[]Claim) AnchorGraph {
	nodes := map[AnchorNodeKind][]Claim{
		NodeStartHere:  nil,
		NodeCanon:      nil,
		NodeHowToRun:   nil,
		NodeOutputs:    nil,
		NodeInterfaces: nil,
		NodeCore:       nil,
	}

	for _, claims := range lensClaims {
		for _, c := range claims {
			switch {
			case c.Kind == ClaimAnchor && c.AnchorKind == AnchorCanon:
				nodes[NodeCanon] = append(nodes[NodeCanon], c)
			case c.Kind == ClaimAnchor && c.AnchorKind == AnchorHowto:
				nodes[NodeHowToRun] = append(nodes[NodeHowToRun], c)
			case c.Kind == ClaimAnchor && c.AnchorKind == AnchorInfra:
				nodes[NodeOutputs] = append(nodes[NodeOutputs], c)
			case c.Kind == ClaimAnchor && c.AnchorKind == AnchorSkeleton:
				nodes[NodeCore] = append(nodes[NodeCore], c)
			case c.Kind == ClaimCanonStep:
				nodes[NodeCanon] = append(nodes[NodeCanon], c)
			case c.Kind == ClaimContract:
				nodes[NodeInterfaces] = append(nodes[NodeInterfaces], c)
			case c.Kind == ClaimArtifactStore:
				nodes[NodeOutputs] = append(nodes[NodeOutputs], c)
			case c.Kind == ClaimBoundary:
				nodes[NodeHowToRun] = append(nodes[NodeHowToRun], c)
			}
		}
	}

	nodes[NodeStartHere] = startHereClaims(sig, nodes[NodeCanon], nodes[NodeHowToRun])

	order := []AnchorNodeKind{NodeStartHere, NodeCanon, NodeHowToRun, NodeOutputs, NodeInterfaces, NodeCore}
	graph := AnchorGraph{Nodes: make([]AnchorNode, 0, len(order))}
	for _, kind := range order {
		graph.Nodes = append(graph.Nodes, AnchorNode{Kind: kind, Claims: nodes[kind]})
	}
	return graph
}

// startHereClaims synthesizes the StartHere node from the single
// highest-confidence Canon claim and, failing that, the first HowToRun
// claim — the reader's entry point always exists even when no README
// was found, as long as SOME lens produced evidence.
func startHereClaims(sig ArchetypeSignals, canon, howto []Claim) []Claim {
	var best *Claim
	for i := range canon {
		if best == nil || canon[i].Confidence > best.Confidence {
			best = &canon[i]
		}
	}
	if best != nil {
		c := *best
		c.Title = "start here: " + c.Title
		return []Claim{c}
	}
	if len(howto) > 0 {
		c := howto[0]
		c.Title = "start here: " + c.Title
		return []Claim{c}
	}
	if sig.HasReadme {
		return []Claim{{Kind: ClaimAnchor, AnchorKind: AnchorCanon, Title: "start here: README", Confidence: 0.3}}
	}
	return nil
}
