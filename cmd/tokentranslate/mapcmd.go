package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gomlx/tokentranslate/translate"
)

func newMapCmd() *cobra.Command {
	var showMisses int
	cmd := &cobra.Command{
		Use:   "map <source-tokenizer> <target-tokenizer>",
		Short: "Build the source→target translation map and report its coverage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mapHandler(args[0], args[1], showMisses)
		},
	}
	cmd.Flags().IntVar(&showMisses, "show-misses", 0,
		"print up to N source token ids that failed to translate")
	return cmd
}

func mapHandler(sourceSpec, targetSpec string, showMisses int) error {
	source, err := loadTokenizer(sourceSpec)
	if err != nil {
		return err
	}
	target, err := loadTokenizer(targetSpec)
	if err != nil {
		return err
	}

	sess := translate.NewSession()
	m := sess.TranslationMap(source, target)

	covered := m.SourceVocabSize - m.Misses()

	fmt.Println(headerStyle.Render("Translation map"))
	fmt.Printf("  %s %s → %s\n", dimStyle.Render("pair:"), sourceSpec, targetSpec)
	fmt.Printf("  %s %d → %d\n", dimStyle.Render("vocab:"), m.SourceVocabSize, m.TargetVocabSize)
	fmt.Printf("  %s %d / %d (%.2f%%)\n", dimStyle.Render("coverage:"),
		covered, m.SourceVocabSize, 100*float64(covered)/float64(m.SourceVocabSize))
	fmt.Printf("  %s %.2f target tokens per source token\n",
		dimStyle.Render("mean fanout:"), m.MeanFanout())

	if showMisses > 0 && m.Misses() > 0 {
		missed := m.MissedIDs()
		fmt.Println()
		fmt.Println(failStyle.Render("Untranslatable source tokens:"))
		for i, id := range missed {
			if i >= showMisses {
				fmt.Printf("  %s\n", dimStyle.Render(fmt.Sprintf("… and %d more", len(missed)-i)))
				break
			}
			fmt.Printf("  %6d %q\n", id, source.Decode([]int{id}))
		}
	}
	return nil
}
