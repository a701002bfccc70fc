package browser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/thoth-discovery/internal/browserengine"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
)

func TestAdapter_Validate(t *testing.T) {
	t.Parallel()
	a := New(nil, nil)

	require.Error(t, a.Validate(adapter.Query{}))

	workflow := browserengine.Workflow{
		Steps: []browserengine.Step{{Kind: browserengine.StepNavigate, Value: "https://example.com"}},
	}
	require.Error(t, a.Validate(adapter.Query{Parameters: map[string]any{"workflow": workflow}}))

	workflow.StartURL = "https://example.com"
	require.NoError(t, a.Validate(adapter.Query{Parameters: map[string]any{"workflow": workflow}}))
}

func TestRecordToPaper(t *testing.T) {
	t.Parallel()

	p, err := recordToPaper(map[string]any{"text": "  A Scraped Title  ", "href": "https://example.com/p.pdf"})
	require.NoError(t, err)
	require.Equal(t, "A Scraped Title", p.Title)
	require.Equal(t, "https://example.com/p.pdf", p.OpenAccessURL)

	_, err = recordToPaper(map[string]any{"text": "   "})
	require.Error(t, err)
}

func TestWorkflowFromParameters(t *testing.T) {
	t.Parallel()

	_, err := workflowFromParameters(map[string]any{})
	require.Error(t, err)

	_, err = workflowFromParameters(map[string]any{"workflow": "not-a-workflow"})
	require.Error(t, err)

	workflow := browserengine.Workflow{StartURL: "https://example.com"}
	got, err := workflowFromParameters(map[string]any{"workflow": workflow})
	require.NoError(t, err)
	require.Equal(t, workflow, got)
}

func TestAdapter_RateLimitID(t *testing.T) {
	t.Parallel()
	a := New(nil, nil)
	require.Equal(t, "browser", string(a.RateLimitID()))
}
