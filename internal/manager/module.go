package manager

import (
	"net/http"

	"go.uber.org/fx"

	"github.com/jonesrussell/thoth-discovery/internal/config"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/arxiv"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/browser"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/crossref"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/openalex"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/pubmed"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/semanticscholar"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"

	"github.com/jonesrussell/thoth-discovery/internal/browserengine"
)

// Module provides the adapter Registry, the shared paper output channel,
// and the Manager itself.
var Module = fx.Module("manager",
	fx.Provide(
		provideRegistry,
		provideOutput,
		provideManager,
	),
)

// Output is the downstream emission channel every discovery run shares, per
// spec §6's "typed channel of Paper records" interface.
type Output chan *paper.Paper

func provideOutput() Output {
	return make(Output, 256)
}

func provideRegistry(
	cfg *config.Config,
	limiter *ratelimiter.Limiter,
	log logger.Interface,
	engine *browserengine.Engine,
) Registry {
	apiKey := func(kind string) string {
		return cfg.Adapters[kind].APIKey
	}

	httpClient := &http.Client{}

	return Registry{
		sourceconfig.KindArXiv:           arxiv.New(httpClient, limiter, log),
		sourceconfig.KindPubMed:          pubmed.New(httpClient, limiter, log, apiKey("pubmed")),
		sourceconfig.KindCrossRef:        crossref.New(httpClient, limiter, log, cfg.ContactEmail),
		sourceconfig.KindOpenAlex:        openalex.New(httpClient, limiter, log, cfg.ContactEmail),
		sourceconfig.KindSemanticScholar: semanticscholar.New(httpClient, limiter, log, apiKey("semantic_scholar")),
		sourceconfig.KindBrowser:         browser.New(engine, log),
	}
}

func provideManager(registry Registry, store ResultStore, output Output, log logger.Interface) *Manager {
	return New(registry, store, output, log)
}
