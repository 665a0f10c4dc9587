package cmd

import (
	"log"

	"github.com/joyn-gg/discord.http/discordhttp"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the interaction endpoint server",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		client, err := discordhttp.New(cfg)
		if err != nil {
			log.Fatalf("error creating client: %s", err.Error())
		}

		if err = client.Run(ctx); err != nil {
			log.Fatalf("error running client: %s", err.Error())
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
