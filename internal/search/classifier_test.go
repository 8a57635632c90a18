package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// WeightsForQueryType Tests
// =============================================================================

func TestWeightsForQueryType(t *testing.T) {
	tests := []struct {
		name         string
		queryType    QueryType
		wantBM25     float64
		wantSemantic float64
	}{
		{
			name:         "identifier query type",
			queryType:    QueryTypeIdentifier,
			wantBM25:     0.70,
			wantSemantic: 0.30,
		},
		{
			name:         "short query type",
			queryType:    QueryTypeShort,
			wantBM25:     0.50,
			wantSemantic: 0.50,
		},
		{
			name:         "conceptual query type",
			queryType:    QueryTypeConceptual,
			wantBM25:     0.30,
			wantSemantic: 0.70,
		},
		{
			name:         "unknown query type defaults to short",
			queryType:    QueryType("unknown"),
			wantBM25:     0.50,
			wantSemantic: 0.50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := WeightsForQueryType(tt.queryType)
			assert.InDelta(t, tt.wantBM25, weights.BM25, 0.001)
			assert.InDelta(t, tt.wantSemantic, weights.Semantic, 0.001)
		})
	}
}

// =============================================================================
// PatternClassifier Tests
// =============================================================================

func TestPatternClassifier_FilePaths(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{"Go file", "internal/auth/handler.go", QueryTypeIdentifier},
		{"TypeScript file", "src/components/Button.tsx", QueryTypeIdentifier},
		{"JavaScript file", "app/utils/helpers.js", QueryTypeIdentifier},
		{"Python file", "scripts/deploy.py", QueryTypeIdentifier},
		{"JSON file", "package.json", QueryTypeIdentifier},
		{"YAML file", "config.yaml", QueryTypeIdentifier},
		{"Markdown file", "README.md", QueryTypeIdentifier},
		{"bare path, no extension", "internal/search/engine", QueryTypeIdentifier},
		{"qualified name", "Engine::classifyQueryType", QueryTypeIdentifier},
	}

	classifier := NewPatternClassifier()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qt, weights, err := classifier.Classify(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, qt)
			assert.Equal(t, WeightsForQueryType(tt.want), weights)
		})
	}
}

func TestPatternClassifier_TechnicalIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{"camelCase", "getUserById", QueryTypeIdentifier},
		{"camelCase long", "handleAuthenticationRequest", QueryTypeIdentifier},
		{"PascalCase", "SearchEngine", QueryTypeIdentifier},
		{"PascalCase long", "HttpResponseHandler", QueryTypeIdentifier},
		{"snake_case", "get_user_by_id", QueryTypeIdentifier},
		{"snake_case long", "handle_auth_request", QueryTypeIdentifier},
		{"SCREAMING_SNAKE", "MAX_RETRY_COUNT", QueryTypeIdentifier},
		{"SCREAMING_SNAKE long", "DEFAULT_TIMEOUT_MS", QueryTypeIdentifier},
	}

	classifier := NewPatternClassifier()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qt, weights, err := classifier.Classify(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, qt)
			assert.Equal(t, WeightsForQueryType(tt.want), weights)
		})
	}
}

func TestPatternClassifier_ShortQueries(t *testing.T) {
	// Short is for <=2 word queries that don't match the identifier shape.
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{"two prose words", "useEffect cleanup", QueryTypeShort},
		{"single word", "authentication", QueryTypeShort},
		{"two words generic", "error handling", QueryTypeShort},
		{"empty after trim", "   ", QueryTypeShort},
	}

	classifier := NewPatternClassifier()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qt, weights, err := classifier.Classify(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, qt)
			assert.Equal(t, WeightsForQueryType(tt.want), weights)
		})
	}
}

func TestPatternClassifier_ConceptualQueries(t *testing.T) {
	// Queries with 3+ words that don't match the identifier shape are conceptual.
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{"how question", "how does authentication work", QueryTypeConceptual},
		{"what question", "what is the purpose of this function", QueryTypeConceptual},
		{"three words conceptual", "database connection pooling", QueryTypeConceptual},
		{"four words", "error handling best practices", QueryTypeConceptual},
		{"five words", "how to optimize search queries", QueryTypeConceptual},
	}

	classifier := NewPatternClassifier()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qt, weights, err := classifier.Classify(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, qt)
			assert.Equal(t, WeightsForQueryType(tt.want), weights)
		})
	}
}

// =============================================================================
// CachedClassifier Tests
// =============================================================================

func TestCachedClassifier_Classify(t *testing.T) {
	classifier := NewCachedClassifier()

	qt, weights, err := classifier.Classify(context.Background(), "ERR_CONNECTION_REFUSED")

	require.NoError(t, err)
	assert.Equal(t, QueryTypeIdentifier, qt)
	assert.Equal(t, WeightsForQueryType(QueryTypeIdentifier), weights)
}

func TestCachedClassifier_CacheHit(t *testing.T) {
	classifier := NewCachedClassifier()

	qt1, w1, err1 := classifier.Classify(context.Background(), "how does auth work")
	qt2, w2, err2 := classifier.Classify(context.Background(), "how does auth work")

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, qt1, qt2)
	assert.Equal(t, w1, w2)
}

func TestCachedClassifier_CacheNormalization(t *testing.T) {
	classifier := NewCachedClassifier()

	qt1, _, _ := classifier.Classify(context.Background(), "HOW does auth work")
	qt2, _, _ := classifier.Classify(context.Background(), "how does auth work")
	qt3, _, _ := classifier.Classify(context.Background(), "  how does auth work  ")

	assert.Equal(t, qt1, qt2)
	assert.Equal(t, qt2, qt3)
}

func TestCachedClassifier_ThreadSafety(t *testing.T) {
	classifier := NewCachedClassifier()

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func(i int) {
			queries := []string{
				"how does auth work",
				"ERR_CONNECTION_REFUSED",
				"getUserById",
				"internal/search/engine.go",
			}
			_, _, _ = classifier.Classify(context.Background(), queries[i%len(queries)])
			done <- true
		}(i)
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestNewCachedClassifierWithConfig_DefaultCacheSize(t *testing.T) {
	config := ClassifierConfig{CacheSize: 0}

	classifier := NewCachedClassifierWithConfig(config)

	assert.NotNil(t, classifier)
	qt, _, err := classifier.Classify(context.Background(), "how does auth work")
	require.NoError(t, err)
	assert.Equal(t, QueryTypeConceptual, qt)
}

func TestNewCachedClassifierWithConfig_CustomCacheSize(t *testing.T) {
	config := ClassifierConfig{CacheSize: 100}

	classifier := NewCachedClassifierWithConfig(config)

	assert.NotNil(t, classifier)
	qt, _, err := classifier.Classify(context.Background(), "ERR_123")
	require.NoError(t, err)
	assert.Equal(t, QueryTypeIdentifier, qt)
}

func TestNewCachedClassifierWithConfig_NegativeCacheSize(t *testing.T) {
	config := ClassifierConfig{CacheSize: -10}

	classifier := NewCachedClassifierWithConfig(config)

	assert.NotNil(t, classifier)
	qt, _, err := classifier.Classify(context.Background(), "getUserById")
	require.NoError(t, err)
	assert.Equal(t, QueryTypeIdentifier, qt)
}

func TestCachedClassifier_Classify_EmptyQuery(t *testing.T) {
	classifier := NewCachedClassifier()

	qt, weights, err := classifier.Classify(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, QueryTypeShort, qt)
	assert.Equal(t, WeightsForQueryType(QueryTypeShort), weights)
}

// =============================================================================
// Engine Integration Tests
// =============================================================================

func TestEngine_Search_WithClassifier(t *testing.T) {
	// This test verifies that the engine uses the classifier when no explicit weights are provided.
	mockClassifier := &mockClassifier{
		classifyFn: func(ctx context.Context, query string) (QueryType, Weights, error) {
			return QueryTypeIdentifier, WeightsForQueryType(QueryTypeIdentifier), nil
		},
	}

	var _ Classifier = mockClassifier

	qt, weights, err := mockClassifier.Classify(context.Background(), "any query")
	require.NoError(t, err)
	assert.Equal(t, QueryTypeIdentifier, qt)
	assert.Equal(t, 0.70, weights.BM25)
	assert.Equal(t, 0.30, weights.Semantic)
}

func TestEngine_Search_ExplicitWeightsOverrideClassifier(t *testing.T) {
	// This test verifies that explicit weights in SearchOptions override the classifier.
	mockClassifier := &mockClassifier{
		classifyFn: func(ctx context.Context, query string) (QueryType, Weights, error) {
			return QueryTypeIdentifier, WeightsForQueryType(QueryTypeIdentifier), nil
		},
	}

	explicitWeights := Weights{BM25: 0.50, Semantic: 0.50}
	opts := SearchOptions{Weights: &explicitWeights}

	assert.Equal(t, 0.50, opts.Weights.BM25)
	assert.Equal(t, 0.50, opts.Weights.Semantic)

	qt, weights, _ := mockClassifier.Classify(context.Background(), "test")
	assert.Equal(t, QueryTypeIdentifier, qt)
	assert.Equal(t, 0.70, weights.BM25)
}

// mockClassifier is a test helper that implements Classifier.
type mockClassifier struct {
	classifyFn func(ctx context.Context, query string) (QueryType, Weights, error)
}

func (m *mockClassifier) Classify(ctx context.Context, query string) (QueryType, Weights, error) {
	if m.classifyFn != nil {
		return m.classifyFn(ctx, query)
	}
	return QueryTypeShort, WeightsForQueryType(QueryTypeShort), nil
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkPatternClassifier(b *testing.B) {
	classifier := NewPatternClassifier()
	ctx := context.Background()
	queries := []string{
		"ERR_CONNECTION_REFUSED",
		"how does authentication work",
		"getUserById",
		"internal/search/engine.go",
		"useEffect cleanup",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = classifier.Classify(ctx, queries[i%len(queries)])
	}
}

func BenchmarkCachedClassifier_CacheHit(b *testing.B) {
	classifier := NewCachedClassifier()
	ctx := context.Background()

	_, _, _ = classifier.Classify(ctx, "how does authentication work")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = classifier.Classify(ctx, "how does authentication work")
	}
}

func BenchmarkCachedClassifier_CacheMiss(b *testing.B) {
	classifier := NewCachedClassifier()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = classifier.Classify(ctx, "query_"+string(rune(i%26+'a')))
	}
}
