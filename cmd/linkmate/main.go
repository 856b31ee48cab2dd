package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/luoshen/linkmate/ai/agent"
	"github.com/luoshen/linkmate/ai/core/embedding"
	"github.com/luoshen/linkmate/ai/core/llm"
	"github.com/luoshen/linkmate/ai/evaluate"
	"github.com/luoshen/linkmate/ai/intent"
	"github.com/luoshen/linkmate/ai/metrics"
	"github.com/luoshen/linkmate/ai/preprocess"
	"github.com/luoshen/linkmate/ai/retrieval"
	"github.com/luoshen/linkmate/ai/stats"
	"github.com/luoshen/linkmate/ai/vector"
	"github.com/luoshen/linkmate/internal/profile"
	"github.com/luoshen/linkmate/internal/profileapi"
	"github.com/luoshen/linkmate/internal/version"
	"github.com/luoshen/linkmate/server"
	apiv1 "github.com/luoshen/linkmate/server/router/api/v1"
	"github.com/luoshen/linkmate/store"
	"github.com/luoshen/linkmate/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "linkmate",
	Short: `An AI-powered conversational people-search agent. Describe who you want to meet; LinkMate finds them.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution (not when running as systemd service)
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		assembled, err := assembleAgent(ctx, instanceProfile, storeInstance)
		if err != nil {
			slog.Error("failed to assemble agent", "error", err)
			return
		}

		api := apiv1.NewAPIV1Service(instanceProfile, assembled.scheduler, assembled.counters)
		exporter := assembled.exporter
		s, err := server.NewServer(ctx, instanceProfile, api, exporter)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			s.Shutdown(ctx)
			_ = storeInstance.Close()
			cancel()
		}()

		printGreetings(instanceProfile)
		if err := s.Start(ctx); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
				cancel()
			}
		}

		<-ctx.Done()
	},
}

// assembledAgent bundles the scheduler with the shared infrastructure it
// reports through.
type assembledAgent struct {
	scheduler *agent.Scheduler
	counters  *stats.Counters
	exporter  *metrics.PrometheusExporter
}

// assembleAgent wires the conversation pipeline from the profile. The
// vector store and profile API are required; the scheduler degrades on its
// own when they misbehave at runtime.
func assembleAgent(ctx context.Context, instanceProfile *profile.Profile, storeInstance *store.Store) (*assembledAgent, error) {
	if !instanceProfile.IsAIEnabled() {
		return nil, errors.New("LLM_API_KEY is required")
	}

	counters := stats.New()
	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	llmService, err := llm.NewService(&llm.Config{
		Model:    instanceProfile.LLMModel,
		APIKey:   instanceProfile.LLMAPIKey,
		BaseURL:  instanceProfile.LLMBaseURL,
		Timeout:  instanceProfile.LLMTimeout,
		Counters: counters,
	})
	if err != nil {
		return nil, fmt.Errorf("llm service: %w", err)
	}
	// Warmup is best-effort and runs off the startup path.
	go func() {
		warmupCtx, warmupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer warmupCancel()
		llmService.Warmup(warmupCtx)
	}()

	embeddingService, err := embedding.NewService(ctx, &embedding.Config{
		APIKey:      instanceProfile.EmbeddingAPIKey,
		BaseURL:     instanceProfile.EmbeddingBaseURL,
		Model:       instanceProfile.EmbeddingModel,
		SparseModel: instanceProfile.SparseModel,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}

	vectorStore, err := vector.New(&vector.Config{
		Endpoint:   instanceProfile.VectorDBEndpoint,
		APIKey:     instanceProfile.VectorDBKey,
		Collection: instanceProfile.VectorDBCollection,
		Counters:   counters,
	})
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		slog.Warn("vector collection check failed, continuing", "error", err)
	}

	profileClient, err := profileapi.New(&profileapi.Config{BaseURL: instanceProfile.ProfileAPIBaseURL})
	if err != nil {
		return nil, fmt.Errorf("profile api client: %w", err)
	}

	retriever := retrieval.New(embeddingService, vectorStore, profileClient, nil)
	scheduler := agent.NewScheduler(&agent.Config{
		LLM:          llmService,
		Classifier:   intent.NewClassifier(llmService),
		Preprocessor: preprocess.New(llmService),
		Retriever:    retriever,
		Evaluator:    evaluate.New(llmService),
		Profiles:     profileClient,
		CasualStore:  storeInstance,
		Embedder:     embeddingService,
		Counters:     counters,
		Exporter:     exporter,
	})

	return &assembledAgent{scheduler: scheduler, counters: counters, exporter: exporter}, nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8080)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8080, "port of server")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("linkmate")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("LinkMate %s started successfully!\n", profile.Version)
	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
