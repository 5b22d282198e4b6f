// Command ontorlm runs the recursive-language-model ontology explorer
// against a set of Task YAML files (spec.md §6): it builds the root/sub/
// judge LM providers, loads the ontology index and sense card per task,
// drives the engine for the configured number of trials, and prints a
// pass/fail summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"ontorlm/internal/config"
	"ontorlm/internal/grader"
	"ontorlm/internal/harness"
	"ontorlm/internal/llm"
	"ontorlm/internal/llm/providers"
	"ontorlm/internal/memory"
	"ontorlm/internal/observability"
	"ontorlm/internal/ontology"
	"ontorlm/internal/rlm"
	"ontorlm/internal/sensecard"
	"ontorlm/internal/tools"
	"ontorlm/internal/trajectory"
)

const defaultRunTimeout = 5 * time.Minute

func main() {
	taskGlob := flag.String("tasks", "", "glob of task YAML files to run")
	configPath := flag.String("config", "", "optional YAML config file")
	outputDir := flag.String("output", "", "directory to write trajectory NDJSON files and report.json")
	reportPath := flag.String("report", "", "optional path to write the aggregate report.json")
	flag.Parse()

	if *taskGlob == "" {
		fmt.Fprintln(os.Stderr, "usage: ontorlm -tasks \"tasks/*.yaml\" [-output DIR] [-report FILE]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	if err := run(cfg, *taskGlob, *outputDir, *reportPath); err != nil {
		log.Fatal().Err(err).Msg("ontorlm")
	}
}

func run(cfg *config.Config, taskGlob, outputDir, reportPath string) error {
	tasks, err := harness.LoadTasks(taskGlob)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	httpClient := observability.NewHTTPClient(nil)

	rootProvider, err := providers.Build(cfg.RootLLM, httpClient)
	if err != nil {
		return fmt.Errorf("build root llm: %w", err)
	}
	var rootLM llm.LM = llm.NewProviderLM(rootProvider, modelFor(cfg.RootLLM), "")
	if cfg.DB.RedisDSN != "" {
		if cached, err := llm.NewCachedLM(rootLM, cfg.DB.RedisDSN, modelFor(cfg.RootLLM), time.Hour); err == nil {
			rootLM = cached
			defer cached.Close()
		} else {
			log.Warn().Err(err).Msg("redis completion cache unavailable")
		}
	}

	var subLM llm.LM
	if subProvider, err := providers.Build(cfg.SubLLM, httpClient); err == nil {
		subLM = llm.NewProviderLM(subProvider, modelFor(cfg.SubLLM), "")
	} else {
		log.Warn().Err(err).Msg("sub llm unavailable, llm_query disabled")
	}

	var judgeLM llm.LM
	if judgeProvider, err := providers.Build(cfg.JudgeLLM, httpClient); err == nil {
		judgeLM = llm.NewProviderLM(judgeProvider, modelFor(cfg.JudgeLLM), "")
	} else {
		log.Warn().Err(err).Msg("judge llm unavailable, llm-judge grader disabled")
	}

	var memStore *memory.Store
	if cfg.DB.QdrantDSN != "" {
		// Procedural-memory recall is advisory; engine construction does not
		// fail if Qdrant is unreachable at startup.
		s, err := memory.NewStore(cfg.DB.QdrantDSN, cfg.DB.QdrantColl, cfg.DB.QdrantDim, cfg.DB.QdrantMetric, nil)
		if err != nil {
			log.Warn().Err(err).Msg("procedural memory store unavailable")
		} else {
			memStore = s
			defer memStore.Close()
		}
	}

	ctx := context.Background()
	reports := make([]harness.TaskReport, 0, len(tasks))

	for _, task := range tasks {
		idx, senseCard, toolRegistry, err := prepareOntology(task)
		if err != nil {
			log.Error().Err(err).Str("task", task.ID).Msg("prepare ontology")
			continue
		}

		buildEngine := func(ctx context.Context, task harness.Task, trial int) (*rlm.Engine, string, func() error, error) {
			var recorder *trajectory.Recorder
			var trajPath string
			var file *os.File
			if outputDir != "" {
				trajPath = fmt.Sprintf("%s/%s-trial%d.ndjson", outputDir, task.ID, trial)
				f, err := os.Create(trajPath)
				if err != nil {
					return nil, "", nil, fmt.Errorf("create trajectory file: %w", err)
				}
				file = f
				var sinks []trajectory.Sink
				if cfg.DB.PostgresDSN != "" {
					if pg, err := trajectory.NewPostgresSink(ctx, cfg.DB.PostgresDSN, "trajectories"); err == nil {
						sinks = append(sinks, pg)
					} else {
						log.Warn().Err(err).Msg("postgres trajectory sink unavailable")
					}
				}
				if len(cfg.DB.KafkaBrokerList()) > 0 {
					sinks = append(sinks, trajectory.NewKafkaSink(cfg.DB.KafkaBrokerList(), cfg.DB.KafkaTopic))
				}
				recorder = trajectory.New(file, fmt.Sprintf("%s-%d", task.ID, trial), sinks...)
			}

			var externalContext rlm.ExternalContextFunc
			if memStore != nil {
				externalContext = func(ctx context.Context, query string) string {
					return memStore.Synthesize(ctx, query, 3)
				}
			}

			engine := rlm.New(rlm.Config{
				Index:             idx,
				SenseCard:         senseCard,
				Tools:             toolRegistry,
				RootLM:            rootLM,
				RootModel:         modelFor(cfg.RootLLM),
				SubLM:             subLM,
				ExternalContext:   externalContext,
				Recorder:          recorder,
				MaxIterations:     task.MaxIterations,
				MaxLLMCalls:       cfg.Engine.MaxLLMCalls,
				StdoutTruncateLen: cfg.Engine.StdoutTruncateLen,
				BatchedWorkers:    cfg.Engine.BatchedWorkers,
			})

			closeFn := func() error {
				if file != nil {
					return file.Close()
				}
				return nil
			}
			return engine, trajPath, closeFn, nil
		}

		buildGraders := func(task harness.Task) ([]grader.Grader, grader.Task) {
			return harness.BuildGraders(task, judgeLM)
		}

		runCtx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
		report, err := harness.RunTask(runCtx, task, buildEngine, buildGraders)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("task", task.ID).Msg("run task")
			continue
		}
		reports = append(reports, report)

		if memStore != nil {
			for _, tr := range report.Trials {
				if tr.Err == nil && tr.Output.Converged {
					_ = memStore.Remember(ctx, memory.Exemplar{Query: task.Query, Answer: tr.Output.Answer, Sparql: tr.Output.Sparql})
				}
			}
		}
	}

	allPassed := harness.PrintSummary(os.Stdout, reports)

	if reportPath == "" && outputDir != "" {
		reportPath = fmt.Sprintf("%s/report.json", outputDir)
	}
	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		if err := harness.WriteReportJSON(f, reports); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if !allPassed {
		os.Exit(1)
	}
	return nil
}

// modelFor returns the model name for whichever provider a role config
// selects (spec.md §6 names root/sub/judge LMs as independently
// configurable roles).
func modelFor(cfg config.LLMClientConfig) string {
	switch cfg.Provider {
	case "google":
		return cfg.Google.Model
	case "anthropic":
		return cfg.Anthropic.Model
	default:
		return cfg.OpenAI.Model
	}
}

// prepareOntology builds the ontology index, sense card, and bounded tool
// registry for one task (spec.md §4.1/§4.3/§4.2).
func prepareOntology(task harness.Task) (*ontology.Index, string, *tools.Registry, error) {
	src, err := task.PrimaryOntologySource()
	if err != nil {
		return nil, "", nil, err
	}
	idx, err := ontology.BuildIndex(src, nil)
	if err != nil {
		return nil, "", nil, fmt.Errorf("build ontology index: %w", err)
	}
	card, err := sensecard.Load(src, idx)
	if err != nil {
		return nil, "", nil, fmt.Errorf("load sense card: %w", err)
	}

	registry := tools.NewRegistry()
	registry.Register("search_entity", &tools.SearchEntityTool{Index: idx})
	if task.Context.SparqlEndpoint != "" {
		endpoint := tools.NewHTTPEndpoint(task.Context.SparqlEndpoint, observability.NewHTTPClient(nil))
		registry.Register("sparql_select", &tools.SparqlSelectTool{Endpoint: endpoint, Timeout: 30 * time.Second})
	}
	return idx, card, registry, nil
}
