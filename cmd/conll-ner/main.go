// conll-ner prepares the CoNLL-2003 named entity recognition dataset for a HuggingFace token
// classification model, scores predictions and verifies fine-tuned checkpoints.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/gomlx/conll-ner/internal/config"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var version = "dev"

// globalFlags are the persistent flags of the root command, overriding the configuration.
type globalFlags struct {
	envFile  string
	hfToken  string
	cacheDir string
	endpoint string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var global globalFlags
	rootCmd := &cobra.Command{
		Use:          "conll-ner",
		Short:        "Prepare, score and verify CoNLL-2003 named entity recognition",
		Version:      version,
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&global.envFile, "env-file", "", "Load configuration from this .env file instead of ./.env")
	pf.StringVar(&global.hfToken, "hf-token", "", "HuggingFace token, overrides HF_TOKEN")
	pf.StringVar(&global.cacheDir, "cache-dir", "", "Hub cache directory, overrides HF_HUB_CACHE and HF_HOME")
	pf.StringVar(&global.endpoint, "endpoint", "", "Hub URL, overrides HF_ENDPOINT")

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	pf.AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(
		showCmd(&global),
		alignCmd(&global),
		evaluateCmd(&global),
		verifyCmd(&global),
	)
	return rootCmd
}

// loadConfig loads the configuration and applies the persistent flags on top of it.
func (g *globalFlags) loadConfig() (*config.Cfg, error) {
	var envFiles []string
	if g.envFile != "" {
		envFiles = append(envFiles, g.envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if g.hfToken != "" {
		cfg.HFToken = g.hfToken
	}
	if g.cacheDir != "" {
		cfg.CacheDir = g.cacheDir
	}
	if g.endpoint != "" {
		cfg.Endpoint = g.endpoint
	}
	klog.V(1).Infof("cache %s, endpoint %s, model %s", cfg.CacheDir, cfg.Endpoint, cfg.Model)
	return cfg, nil
}
