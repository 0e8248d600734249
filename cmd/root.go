package cmd

import "github.com/spf13/cobra"

var (
	rootCmd = &cobra.Command{
		Use:   "deckbeam",
		Short: "Slideshow playback server with live screen synchronization",
		Long:  `Deckbeam serves slideshow screens to passive viewers and pushes change notifications over server-sent events so every display refreshes within seconds of an edit.`,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
