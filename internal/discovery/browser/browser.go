// Package browser implements the Browser source adapter: it delegates to
// the browser workflow engine, injecting the query's keywords into any
// parameterized TYPE step, and normalizes extracted records into papers.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/browserengine"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
	"github.com/jonesrussell/thoth-discovery/internal/discoveryerr"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
)

const sourceName = "browser"

// Adapter implements adapter.Adapter by delegating to a browserengine.Engine.
type Adapter struct {
	engine *browserengine.Engine
	logger logger.Interface
}

// New builds a Browser adapter over a shared workflow engine.
func New(engine *browserengine.Engine, log logger.Interface) *Adapter {
	return &Adapter{engine: engine, logger: log}
}

// RateLimitID implements adapter.Adapter. Acquisition happens inside the
// engine itself (against the same bucket), this is reported for callers
// that inspect adapter metadata before invoking Discover.
func (a *Adapter) RateLimitID() ratelimiter.EndpointID { return ratelimiter.EndpointBrowser }

// Validate implements adapter.Adapter.
func (a *Adapter) Validate(query adapter.Query) error {
	workflow, err := workflowFromParameters(query.Parameters)
	if err != nil {
		return err
	}
	if workflow.StartURL == "" {
		return fmt.Errorf("browser: %w: workflow start_url is required", discoveryerr.ConfigError)
	}
	if len(workflow.Steps) == 0 {
		return fmt.Errorf("browser: %w: workflow must have at least one step", discoveryerr.ConfigError)
	}
	return nil
}

// Discover implements adapter.Adapter.
func (a *Adapter) Discover(ctx context.Context, query adapter.Query, maxResults int) (<-chan adapter.Result, error) {
	if maxResults < 1 {
		return nil, fmt.Errorf("browser: %w: max_results must be >= 1", discoveryerr.ConfigError)
	}
	if err := a.Validate(query); err != nil {
		return nil, err
	}
	workflow, err := workflowFromParameters(query.Parameters)
	if err != nil {
		return nil, err
	}

	stepResults, err := a.engine.Execute(ctx, workflow, query.Keywords)
	if err != nil {
		return nil, err
	}

	out := make(chan adapter.Result)
	go a.drain(ctx, stepResults, maxResults, out)
	return out, nil
}

func (a *Adapter) drain(ctx context.Context, stepResults <-chan browserengine.StepResult, maxResults int, out chan<- adapter.Result) {
	defer close(out)

	yielded := 0
	for result := range stepResults {
		if result.Status == browserengine.StepFailed && result.Err != nil {
			select {
			case out <- adapter.Result{Err: result.Err}:
			case <-ctx.Done():
				return
			}
			continue
		}
		for _, record := range result.Records {
			if yielded >= maxResults {
				return
			}
			p, convErr := recordToPaper(record)
			if convErr == nil {
				convErr = p.Validate(time.Now().Year())
			}
			if convErr != nil {
				select {
				case out <- adapter.Result{Err: discoveryerr.New(discoveryerr.KindParse, sourceName, convErr)}:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case out <- adapter.Result{Paper: p}:
				yielded++
			case <-ctx.Done():
				return
			}
		}
	}
}

func recordToPaper(record map[string]any) (*paper.Paper, error) {
	title, _ := record["text"].(string)
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("browser: extracted record has no title text")
	}
	openAccessURL, _ := record["href"].(string)

	return &paper.Paper{
		Title:            title,
		OpenAccessURL:    openAccessURL,
		SourceProvenance: paper.ProvenanceBrowser,
		FetchedAt:        time.Now(),
	}, nil
}

func workflowFromParameters(parameters map[string]any) (browserengine.Workflow, error) {
	raw, ok := parameters["workflow"]
	if !ok {
		return browserengine.Workflow{}, fmt.Errorf("browser: %w: adapter_params.workflow is required", discoveryerr.ConfigError)
	}
	workflow, ok := raw.(browserengine.Workflow)
	if !ok {
		return browserengine.Workflow{}, fmt.Errorf("browser: %w: adapter_params.workflow must be a browserengine.Workflow", discoveryerr.ConfigError)
	}
	return workflow, nil
}
