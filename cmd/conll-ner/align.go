package main

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/gomlx/conll-ner/datasets/conll2003"
	"github.com/gomlx/conll-ner/features"
	"github.com/gomlx/conll-ner/internal/config"
	"github.com/gomlx/conll-ner/labels"
	"github.com/gomlx/conll-ner/tokenizers"
	"github.com/gomlx/conll-ner/tokenizers/api"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func alignCmd(global *globalFlags) *cobra.Command {
	var (
		model     string
		splitName string
		outPath   string
		maxLength int
		workers   int
	)
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Tokenize a CoNLL-2003 split and align its NER tags to the sub-word tokens",
		Long: `Tokenize a CoNLL-2003 split with the tokenizer of a HuggingFace model and write one
JSON feature per line, with input_ids, attention_mask, labels and word_ids.
Continuation pieces of a word get its label (inside variant for B- tags), special tokens
get -100.`,
		Example: `  conll-ner align --model bert-base-cased --split train --out train.jsonl
  conll-ner align --model roberta-base --split validation --out validation.jsonl --max-length 128`,
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := conll2003.ParseSplit(splitName)
			if err != nil {
				return err
			}
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			if model == "" {
				model = cfg.Model
			}
			if !cmd.Flags().Changed("max-length") {
				maxLength = cfg.MaxLength
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Workers
			}

			tok, tokConfig, err := tokenizers.NewWithConfig(cfg.Repo(model))
			if err != nil {
				return err
			}
			maxLength = resolveMaxLength(maxLength, tokConfig)
			examples, err := conll2003.Download(cmd.Context(), cfg.Configure(conll2003.NewRepo()), split)
			if err != nil {
				return err
			}
			feats, err := features.BuildAll(cmd.Context(), tok, examples, features.Options{
				MaxLength: maxLength,
				Inside:    labels.CoNLL2003().Rule(),
				Workers:   workers,
			})
			if err != nil {
				return err
			}
			if err := writeJSONL(outPath, feats); err != nil {
				return err
			}
			klog.Infof("wrote %d features of split %q tokenized with %s (max length %d) to %s",
				len(feats), split, model, maxLength, outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model whose tokenizer is used, defaults to CONLL_NER_MODEL or "+
		"bert-base-cased")
	cmd.Flags().StringVar(&splitName, "split", string(conll2003.Train), "Split: train, validation or test")
	cmd.Flags().StringVar(&outPath, "out", "", "Output JSONL file")
	cmd.Flags().IntVar(&maxLength, "max-length", config.UnsetMaxLength, "Truncate to this many tokens, 0 disables "+
		"truncation, -1 uses the model_max_length of the tokenizer")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel tokenization workers, 0 uses one per CPU")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// resolveMaxLength returns the truncation length: maxLength if set, or else the model_max_length
// of the tokenizer config, if any.
func resolveMaxLength(maxLength int, tokConfig *api.Config) int {
	if maxLength >= 0 {
		return maxLength
	}
	if tokConfig != nil {
		return tokConfig.ModelMaxLength
	}
	return 0
}

// writeJSONL writes one JSON value per line to filePath.
func writeJSONL[T any](filePath string, values []T) (err error) {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filePath)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "failed to close %s", filePath)
		}
	}()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for ii := range values {
		if err := enc.Encode(&values[ii]); err != nil {
			return errors.Wrapf(err, "failed to write line %d of %s", ii+1, filePath)
		}
	}
	return errors.Wrapf(w.Flush(), "failed to write %s", filePath)
}
