package meaning

import (
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// RunContractsLens surfaces OpenAPI/proto/JSON-Schema contracts (spec.md
// §4.9 #5). OpenAPI documents are parsed and validated with kin-openapi so
// a malformed spec fails soft (no claim) rather than surfacing noise;
// proto/JSON-Schema files are recognised by extension alone since the
// engine doesn't need their full grammar to anchor a contract claim.
func RunContractsLens(files []FileInfo) []Claim {
	var claims []Claim
	for _, f := range files {
		switch {
		case isOpenAPIPath(f.Path):
			if c, ok := contractFromOpenAPI(f.Path); ok {
				claims = append(claims, c)
			}
		case strings.HasSuffix(f.Path, ".proto"):
			claims = append(claims, Claim{
				Kind: ClaimContract, Title: "protobuf contract", Summary: f.Path,
				Confidence: 0.75, Evidence: []Evidence{{Path: f.Path}},
			})
		case strings.HasSuffix(f.Path, ".schema.json"):
			claims = append(claims, Claim{
				Kind: ClaimContract, Title: "JSON Schema contract", Summary: f.Path,
				Confidence: 0.7, Evidence: []Evidence{{Path: f.Path}},
			})
		}
	}
	return claims
}

func isOpenAPIPath(path string) bool {
	lower := strings.ToLower(path)
	if !(strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".json")) {
		return false
	}
	return strings.Contains(lower, "openapi") || strings.Contains(lower, "swagger")
}

// contractFromOpenAPI loads and validates path as an OpenAPI document.
// Returns ok=false (never an error) on any parse/validation failure —
// the lens's fail-soft contract.
func contractFromOpenAPI(path string) (Claim, bool) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return Claim{}, false
	}
	if err := doc.Validate(loader.Context); err != nil {
		return Claim{}, false
	}

	title := path
	if doc.Info != nil && doc.Info.Title != "" {
		title = doc.Info.Title
	}
	return Claim{
		Kind:       ClaimContract,
		Title:      title,
		Summary:    "OpenAPI contract with " + opCount(doc) + " operations",
		Confidence: 0.85,
		Evidence:   []Evidence{{Path: path}},
	}, true
}

func opCount(doc *openapi3.T) string {
	n := 0
	if doc.Paths != nil {
		for _, item := range doc.Paths.Map() {
			n += len(item.Operations())
		}
	}
	return strconv.Itoa(n)
}
