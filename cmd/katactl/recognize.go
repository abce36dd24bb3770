package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/weiqilab/katacore/internal/vision"
)

var (
	recognizeBoardSize int
	recognizeOutput    string
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize [image]",
	Short: "Detect a board in a photograph and emit a position file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecognize,
}

func init() {
	recognizeCmd.Flags().IntVar(&recognizeBoardSize, "board-size", 19, "board size")
	recognizeCmd.Flags().StringVarP(&recognizeOutput, "output", "o", "", "output position-file path (defaults to stdout)")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}

	result, err := vision.Recognize(img, vision.Options{BoardSize: recognizeBoardSize})
	if err != nil {
		return fmt.Errorf("recognizing: %w", err)
	}
	if !result.CornersDetected {
		return fmt.Errorf("recognize: no board found in %s", args[0])
	}

	if recognizeOutput == "" {
		fmt.Print(result.PositionFile)
		return nil
	}
	if err := os.WriteFile(recognizeOutput, []byte(result.PositionFile), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", recognizeOutput, err)
	}
	fmt.Printf("wrote %s (%d stones)\n", recognizeOutput, len(result.Stones))
	return nil
}
