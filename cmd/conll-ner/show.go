package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/conll-ner/datasets/conll2003"
	"github.com/gomlx/conll-ner/labels"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	rowNameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")).PaddingRight(1)
	wordStyle    = lipgloss.NewStyle().Bold(true).PaddingRight(1)
	entityStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).PaddingRight(1)
	tagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).PaddingRight(1)
)

func showCmd(global *globalFlags) *cobra.Command {
	var (
		splitName string
		index     int
		width     int
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one sentence of CoNLL-2003 with its tags aligned in columns",
		Example: `  conll-ner show --split train --index 5
  conll-ner show --split test --index 0 --width 80`,
		RunE: func(cmd *cobra.Command, args []string) error {
			split, err := conll2003.ParseSplit(splitName)
			if err != nil {
				return err
			}
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			examples, err := conll2003.Download(cmd.Context(), cfg.Configure(conll2003.NewRepo()), split)
			if err != nil {
				return err
			}
			if index < 0 || index >= len(examples) {
				return errors.Errorf("index %d out of range, split %q has %d sentences", index, split, len(examples))
			}
			rendered, err := renderExample(&examples[index], width)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s #%d (id %s)\n%s\n", split, index, examples[index].ID, rendered)
			return err
		},
	}
	cmd.Flags().StringVar(&splitName, "split", string(conll2003.Train), "Split: train, validation or test")
	cmd.Flags().IntVar(&index, "index", 0, "Index of the sentence in the split")
	cmd.Flags().IntVar(&width, "width", 120, "Maximum width of the output, longer sentences are wrapped")
	return cmd
}

// renderExample renders the words of ex in columns, each with its NER, POS and chunk tags below.
// Columns are wrapped into blocks no wider than width.
func renderExample(ex *conll2003.Example, width int) (string, error) {
	if err := ex.Validate(); err != nil {
		return "", err
	}
	vocab := labels.CoNLL2003()
	header := lipgloss.JoinVertical(lipgloss.Left,
		rowNameStyle.Render("word"), rowNameStyle.Render("ner"),
		rowNameStyle.Render("pos"), rowNameStyle.Render("chunk"))

	var blocks []string
	row := []string{header}
	rowWidth := lipgloss.Width(header)
	for ii, word := range ex.Tokens {
		ner, err := vocab.Name(ex.NERTags[ii])
		if err != nil {
			return "", err
		}
		nerStyle := tagStyle
		if ner != labels.Outside {
			nerStyle = entityStyle
		}
		column := lipgloss.JoinVertical(lipgloss.Left,
			wordStyle.Render(word), nerStyle.Render(ner),
			tagStyle.Render(tagName(conll2003.POSTags, ex.POSTags, ii)),
			tagStyle.Render(tagName(conll2003.ChunkTags, ex.ChunkTags, ii)))
		columnWidth := lipgloss.Width(column)
		if width > 0 && len(row) > 1 && rowWidth+columnWidth > width {
			blocks = append(blocks, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = []string{header}
			rowWidth = lipgloss.Width(header)
		}
		row = append(row, column)
		rowWidth += columnWidth
	}
	blocks = append(blocks, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	return strings.Join(blocks, "\n\n"), nil
}

// tagName returns the name of the tag of word ii, or "-" if the example has no such column.
func tagName(names []string, codes []int, ii int) string {
	if len(codes) == 0 {
		return "-"
	}
	return names[codes[ii]]
}
