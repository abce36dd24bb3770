package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weiqilab/katacore/internal/board"
	"github.com/weiqilab/katacore/internal/infer"
	"github.com/weiqilab/katacore/internal/mcts"
	"github.com/weiqilab/katacore/internal/vision"
)

var (
	analyzeModelPath string
	analyzeKomi      float64
	analyzeNextColor string
	analyzeVisits    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [position-file]",
	Short: "Run the inference engine over a position file and print the top suggestions",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeModelPath, "model", "", "path to an ONNX model (required)")
	analyzeCmd.Flags().Float64Var(&analyzeKomi, "komi", 7.5, "komi")
	analyzeCmd.Flags().StringVar(&analyzeNextColor, "next", "black", "side to move: black or white")
	analyzeCmd.Flags().IntVar(&analyzeVisits, "visits", 1, "MCTS visits (1 = single network evaluation, no search)")
	analyzeCmd.MarkFlagRequired("model")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	boardSize, stones, err := vision.ParsePositionFile(string(text))
	if err != nil {
		return fmt.Errorf("parsing position file: %w", err)
	}

	nextToPlay := board.Black
	if analyzeNextColor == "white" {
		nextToPlay = board.White
	}
	pos := board.NewPosition(boardSize, nextToPlay, analyzeKomi)
	for _, s := range stones {
		pos.Set(s.Coord, s.Color)
	}

	modelBytes, err := os.ReadFile(analyzeModelPath)
	if err != nil {
		return fmt.Errorf("reading model %s: %w", analyzeModelPath, err)
	}

	session, err := infer.NewSession(infer.Options{
		ModelBytes: modelBytes,
		BoardSize:  boardSize,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer session.Dispose()

	var result *infer.AnalysisResult
	if analyzeVisits > 1 {
		result, err = mcts.Search(session, pos, analyzeVisits)
	} else {
		result, err = session.Run(pos)
	}
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}

	fmt.Printf("winRate=%.3f scoreLead=%.2f visits=%d\n", result.WinRate, result.ScoreLead, result.Visits)
	for i, sug := range result.MoveSuggestions {
		if i >= 10 {
			break
		}
		fmt.Printf("  %2d. %-4s p=%.4f\n", i+1, sug.Coord.GTP(boardSize), sug.Probability)
	}
	return nil
}
