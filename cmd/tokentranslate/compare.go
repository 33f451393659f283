package main

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gomlx/tokentranslate/tokenizers/api"
	"github.com/gomlx/tokentranslate/translate"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

func newCompareCmd() *cobra.Command {
	var samples []string
	cmd := &cobra.Command{
		Use:   "compare <tokenizer-a> <tokenizer-b>",
		Short: "Check whether two tokenizers are interchangeable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return compareHandler(args[0], args[1], samples)
		},
	}
	cmd.Flags().StringArrayVar(&samples, "sample", nil,
		"extra sample text to compare encodings on (repeatable)")
	return cmd
}

func compareHandler(specA, specB string, samples []string) error {
	tokA, err := loadTokenizer(specA)
	if err != nil {
		return err
	}
	tokB, err := loadTokenizer(specB)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Tokenizer comparison"))
	fmt.Printf("  %s %s\n", dimStyle.Render("a:"), specA)
	fmt.Printf("  %s %s\n", dimStyle.Render("b:"), specB)
	fmt.Println()

	printCheck("vocab size", tokA.VocabSize() == tokB.VocabSize(),
		fmt.Sprintf("%d vs %d", tokA.VocabSize(), tokB.VocabSize()))

	for st := api.SpecialToken(0); st < api.TokSpecialTokensCount; st++ {
		idA, errA := tokA.SpecialTokenID(st)
		idB, errB := tokB.SpecialTokenID(st)
		if errA != nil && errB != nil {
			continue
		}
		ok := errA == nil && errB == nil && idA == idB
		printCheck("special "+st.String(), ok, fmt.Sprintf("%v vs %v", idA, idB))
	}

	for _, sample := range samples {
		idsA := tokA.Encode(sample)
		idsB := tokB.Encode(sample)
		printCheck(fmt.Sprintf("sample %q", truncate(sample, 32)),
			slices.Equal(idsA, idsB),
			fmt.Sprintf("%d vs %d tokens", len(idsA), len(idsB)))
	}

	fmt.Println()
	if translate.CheckTokenizerEquivalence(tokA, tokB) {
		fmt.Println(okStyle.Render("EQUIVALENT") + dimStyle.Render(" — probability translation will use the copy fast path"))
	} else {
		fmt.Println(failStyle.Render("NOT EQUIVALENT") + dimStyle.Render(" — probability translation will redistribute mass"))
	}
	return nil
}

func printCheck(name string, ok bool, detail string) {
	mark := okStyle.Render("✓")
	if !ok {
		mark = failStyle.Render("✗")
	}
	fmt.Printf("  %s %-24s %s\n", mark, name, dimStyle.Render(detail))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
