package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beacon-intel/aiviz-cli/internal/analyzer"
	"github.com/beacon-intel/aiviz-cli/internal/fingerprint"
	"github.com/beacon-intel/aiviz-cli/internal/gateway"
	"github.com/beacon-intel/aiviz-cli/internal/model"
	"github.com/beacon-intel/aiviz-cli/internal/processor"
	"github.com/beacon-intel/aiviz-cli/internal/prompts"
)

type fakeGateway struct {
	content string
	err     error
	calls   int
}

func (f *fakeGateway) Query(ctx context.Context, q model.Query) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Response{Content: f.content, TokensUsed: 120, Model: q.Model}, nil
}

func (f *fakeGateway) QueryParallel(ctx context.Context, queries []model.Query) ([]gateway.Outcome, error) {
	f.calls++
	outcomes := make([]gateway.Outcome, len(queries))
	for i, q := range queries {
		resp, err := f.Query(ctx, q)
		outcomes[i] = gateway.Outcome{Response: resp, Err: err}
	}
	return outcomes, nil
}

func newFingerprintService(gw gateway.Client) *FingerprintService {
	proc := processor.New(processor.Config{
		Models:    []string{"claude-sonnet", "gpt-4o"},
		WavePause: 1, // nanosecond, keeps tests fast
	}, gw, analyzer.New(), prompts.Default())
	return NewFingerprinter(proc, fingerprint.New(fingerprint.DefaultWeights()))
}

func TestFingerprintService_ProducesAnalysis(t *testing.T) {
	gw := &fakeGateway{content: "Acme Plumbing is an excellent and trusted plumber in Austin."}
	svc := newFingerprintService(gw)

	analysis, err := svc.Fingerprint(context.Background(), model.BusinessContext{
		Name: "Acme Plumbing", URL: "https://acme.example.com", Category: "plumber", Location: "Austin",
	})
	require.NoError(t, err)
	require.NotNil(t, analysis)

	// 2 models x 3 prompt types.
	assert.Equal(t, 6, analysis.TotalQueries)
	assert.Equal(t, 6, analysis.SuccessfulQueries)
	assert.Len(t, analysis.Results, 6)
	assert.InDelta(t, 1.0, analysis.MentionRate, 0.001)
	assert.GreaterOrEqual(t, analysis.VisibilityScore, 1.0)
	assert.LessOrEqual(t, analysis.VisibilityScore, 100.0)
	assert.Equal(t, 6*120, analysis.TotalTokens)
}

func TestFingerprintService_AllQueriesFailed(t *testing.T) {
	gw := &fakeGateway{err: eris.New("upstream unavailable")}
	svc := newFingerprintService(gw)

	analysis, err := svc.Fingerprint(context.Background(), model.BusinessContext{
		Name: "Acme Plumbing", URL: "https://acme.example.com",
	})
	require.Error(t, err)
	assert.Nil(t, analysis)
	assert.Contains(t, err.Error(), "all queries failed")
}

func TestFingerprintService_NoQueries(t *testing.T) {
	gw := &fakeGateway{content: "irrelevant"}
	proc := processor.New(processor.Config{}, gw, analyzer.New(), prompts.Default())
	svc := NewFingerprinter(proc, fingerprint.New(fingerprint.DefaultWeights()))

	// No models configured means an empty query matrix.
	analysis, err := svc.Fingerprint(context.Background(), model.BusinessContext{Name: "Acme"})
	require.Error(t, err)
	assert.Nil(t, analysis)
	assert.Contains(t, err.Error(), "no queries built")
	assert.Zero(t, gw.calls)
}
