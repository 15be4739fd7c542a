package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gomlx/conll-ner/labels"
	"github.com/gomlx/conll-ner/metrics"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// predictionLine is one line of the predictions file: token-level codes, with labels set to
// -100 where the token is not scored.
type predictionLine struct {
	Predictions []int `json:"predictions"`
	Labels      []int `json:"labels"`
}

func evaluateCmd(global *globalFlags) *cobra.Command {
	var predictionsPath string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score token-level NER predictions with entity-level precision, recall and F1",
		Example: `  conll-ner evaluate --predictions predictions.jsonl

Each line of the predictions file holds one sentence:
  {"predictions": [0, 3, 4, 0], "labels": [-100, 3, 4, -100]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			predictions, tokenLabels, err := readPredictions(predictionsPath)
			if err != nil {
				return err
			}
			result, err := metrics.Evaluate(predictions, tokenLabels, labels.CoNLL2003())
			if err != nil {
				return errors.WithMessagef(err, "scoring %s", predictionsPath)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), result.String())
			return err
		},
	}
	cmd.Flags().StringVar(&predictionsPath, "predictions", "", "JSONL file with predictions and labels")
	_ = cmd.MarkFlagRequired("predictions")
	return cmd
}

// readPredictions reads a predictions file.
func readPredictions(filePath string) (predictions, tokenLabels [][]int, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %s", filePath)
	}
	defer func() { _ = f.Close() }()
	dec := json.NewDecoder(f)
	for lineNum := 1; ; lineNum++ {
		var line predictionLine
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, errors.Wrapf(err, "failed to parse entry %d of %s", lineNum, filePath)
		}
		predictions = append(predictions, line.Predictions)
		tokenLabels = append(tokenLabels, line.Labels)
	}
	return predictions, tokenLabels, nil
}
