package main

import (
	"fmt"

	"github.com/gomlx/conll-ner/labels"
	"github.com/gomlx/conll-ner/models/checkpoint"
	"github.com/spf13/cobra"
)

func verifyCmd(global *globalFlags) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:     "verify",
		Short:   "Check that a fine-tuned checkpoint uses the CoNLL-2003 tags, in the same order",
		Example: `  conll-ner verify --model dslim/bert-base-NER`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			ckpt, err := checkpoint.Load(cfg.Repo(model))
			if err != nil {
				return err
			}
			if err := ckpt.Verify(labels.CoNLL2003()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ckpt.HasWeights() {
				numLabels, err := ckpt.NumClassifierLabels()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s: ok, tags %s, classifier with %d outputs\n", model, ckpt.Vocabulary(), numLabels)
				return err
			}
			_, err = fmt.Fprintf(out, "%s: ok, tags %s (config only, no safetensors weights)\n", model, ckpt.Vocabulary())
			return err
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Checkpoint repository, e.g. dslim/bert-base-NER")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
