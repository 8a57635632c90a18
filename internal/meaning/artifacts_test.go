package meaning

import "testing"

func TestRunArtifactsLens_FlagsVendorAndBuildDirs(t *testing.T) {
	files := []FileInfo{
		{Path: "vendor/foo.go"},
		{Path: "dist/bundle.js"},
		{Path: "src/main.go"},
	}
	claims := RunArtifactsLens(files)
	if len(claims) != 1 {
		t.Fatalf("expected exactly 1 artifact_store claim, got %d", len(claims))
	}
	if claims[0].Kind != ClaimArtifactStore {
		t.Fatalf("expected ClaimArtifactStore, got %v", claims[0].Kind)
	}
	if len(claims[0].Evidence) != 2 {
		t.Fatalf("expected 2 distinct matched top dirs as evidence, got %d: %+v", len(claims[0].Evidence), claims[0].Evidence)
	}
}

func TestRunArtifactsLens_NoMatchesEmitsNil(t *testing.T) {
	claims := RunArtifactsLens([]FileInfo{{Path: "src/main.go"}, {Path: "README.md"}})
	if claims != nil {
		t.Fatalf("expected nil, got %v", claims)
	}
}

func TestMatchesAnyArtifactPattern_LockfileGlob(t *testing.T) {
	if !matchesAnyArtifactPattern("yarn.lock") {
		t.Error("expected yarn.lock to match *.lock glob")
	}
	if matchesAnyArtifactPattern("src/handler.go") {
		t.Error("expected ordinary source file to not match")
	}
}
